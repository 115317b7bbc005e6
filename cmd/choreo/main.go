package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/choreo/internal/analysis"
	"github.com/san-kum/choreo/internal/automation"
	"github.com/san-kum/choreo/internal/config"
	"github.com/san-kum/choreo/internal/experiment"
	"github.com/san-kum/choreo/internal/expressive"
	"github.com/san-kum/choreo/internal/metrics"
	"github.com/san-kum/choreo/internal/optim"
	"github.com/san-kum/choreo/internal/orchestrator"
	"github.com/san-kum/choreo/internal/planner"
	"github.com/san-kum/choreo/internal/storage"
	"github.com/san-kum/choreo/internal/trajectory"
	"github.com/san-kum/choreo/internal/viz"
)

var (
	dataDir    string
	configFile string
	preset     string
	logLevel   string
	devLog     bool

	runDuration float64
	runSeed     int64
	record      bool

	startPos []float64
	goalPos  []float64

	enhanceDim      int
	enhanceFreq     float64
	enhanceDuration float64
	enhanceSeed     int64
	envelope        string

	gridSize int

	stepsPerFrame int

	exportOut string

	sweepMin      float64
	sweepMax      float64
	sweepSteps    int
	sweepDuration float64

	runs             int
	ensembleSeed     int64
	ensembleDuration float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "choreo",
		Short:         "expressive multi-agent control pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".choreo", "data directory")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "use preset configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&devLog, "dev", false, "human-readable development logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the pipeline headless and store the result",
		RunE:  runPipeline,
	}
	runCmd.Flags().Float64Var(&runDuration, "time", 0, "duration in seconds (0 keeps the config value)")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "random seed (0 keeps the config value)")
	runCmd.Flags().BoolVar(&record, "record", false, "record the control buffer every tick")

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "plan a path through the configured workspace",
		RunE:  planPath,
	}
	planCmd.Flags().Float64SliceVar(&startPos, "start", nil, "start position x,y,z")
	planCmd.Flags().Float64SliceVar(&goalPos, "goal", nil, "goal position x,y,z")

	enhanceCmd := &cobra.Command{
		Use:   "enhance [source] [output.csv]",
		Short: "apply expressive timing to a trajectory and write it as CSV",
		Args:  cobra.ExactArgs(2),
		RunE:  enhanceTrajectory,
	}
	enhanceCmd.Flags().IntVar(&enhanceDim, "dim", 5, "joint count for synthetic sources")
	enhanceCmd.Flags().Float64Var(&enhanceFreq, "freq", config.DefaultBeatFrequency, "frequency for synthetic sources")
	enhanceCmd.Flags().Float64Var(&enhanceDuration, "time", 4, "duration for synthetic sources")
	enhanceCmd.Flags().Int64Var(&enhanceSeed, "seed", 1, "random seed")
	enhanceCmd.Flags().StringVar(&envelope, "envelope", "cosine", "phrase envelope (linear, cosine, gaussian)")

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "search PLL gains for fast, stable lock",
		RunE:  tunePLL,
	}
	tuneCmd.Flags().IntVar(&gridSize, "grid", 9, "grid points per gain")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run the pipeline with a live terminal monitor",
		RunE:  runLive,
	}
	liveCmd.Flags().IntVar(&stepsPerFrame, "steps", 16, "control periods per frame")

	paramsCmd := &cobra.Command{
		Use:   "params",
		Short: "list runtime parameters",
		RunE:  listParams,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Run: func(cmd *cobra.Command, args []string) {
			for _, p := range config.ListPresets() {
				fmt.Printf("  %s\n", p)
			}
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run's telemetry",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a stored run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file.yaml]",
		Short: "run a scripted scenario and store the result",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep [param]",
		Short: "sweep one runtime parameter across its range",
		Args:  cobra.ExactArgs(1),
		RunE:  runSweep,
	}
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0, "first value (default: parameter minimum)")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 0, "last value (default: parameter maximum)")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 5, "number of values")
	sweepCmd.Flags().Float64Var(&sweepDuration, "time", 0, "duration per run")

	ensembleCmd := &cobra.Command{
		Use:   "ensemble",
		Short: "repeat the configuration across seeds",
		RunE:  runEnsemble,
	}
	ensembleCmd.Flags().IntVar(&runs, "runs", 8, "number of runs")
	ensembleCmd.Flags().Int64Var(&ensembleSeed, "seed", 1, "first seed")
	ensembleCmd.Flags().Float64Var(&ensembleDuration, "time", 0, "duration per run")

	rootCmd.AddCommand(runCmd, planCmd, enhanceCmd, tuneCmd, liveCmd, paramsCmd, presetsCmd,
		listCmd, plotCmd, exportCmd, scenarioCmd, sweepCmd, ensembleCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(level string, dev bool) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = lvl
	return cfg.Build()
}

// loadConfig resolves --config, then --preset, then the defaults.
func loadConfig() (*config.Config, error) {
	switch {
	case configFile != "":
		return config.Load(configFile)
	case preset != "":
		cfg := config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func vecFlag(vals []float64, def [3]float64) (r3.Vec, error) {
	if len(vals) == 0 {
		return r3.Vec{X: def[0], Y: def[1], Z: def[2]}, nil
	}
	if len(vals) != 3 {
		return r3.Vec{}, fmt.Errorf("expected x,y,z, got %d values", len(vals))
	}
	return r3.Vec{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(logLevel, devLog)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runDuration > 0 {
		cfg.Sim.Duration = runDuration
	}
	if runSeed != 0 {
		cfg.Sim.Seed = runSeed
	}
	record = record || cfg.Telemetry.Record
	if cfg.Telemetry.OutputDir != "" && !cmd.Flags().Changed("data") {
		dataDir = cfg.Telemetry.OutputDir
	}

	exp, err := experiment.New(cfg, logger)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	agents := make([]string, len(cfg.Agents))
	for i, a := range cfg.Agents {
		agents[i] = a.ID
	}
	run, err := st.Begin(storage.RunMetadata{
		Name:       preset,
		Seed:       cfg.Sim.Seed,
		Dt:         cfg.Dt(),
		Duration:   cfg.Sim.Duration,
		Integrator: cfg.Sim.Integrator,
		Agents:     agents,
		Params:     cfg.Params.Map(),
	}, record)
	if err != nil {
		return err
	}
	var obs *storage.ControlObserver
	if rec := run.Recorder(); rec != nil {
		obs = rec.Observer(exp.Physics().Buffer)
		exp.Host().AddObserver(obs)
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("running %d agents for %.1fs at %.0f Hz...\n", len(cfg.Agents), cfg.Sim.Duration, cfg.Sim.TickRate)
	start := time.Now()
	result, runErr := exp.Run(ctx)
	if err := run.Finish(result); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if obs != nil && obs.Err() != nil {
		return fmt.Errorf("recording controls: %w", obs.Err())
	}

	fmt.Printf("completed in %v\n", time.Since(start))
	fmt.Printf("run id: %s\n", run.ID())
	fmt.Printf("ticks: %d\n", result.Ticks)
	printSnapshot(result.Final)
	return nil
}

func printSnapshot(s metrics.Snapshot) {
	fmt.Println("\ntelemetry:")
	fmt.Printf("  control error:       %.6f\n", s.ControlError)
	fmt.Printf("  phase jitter:        %.6f\n", s.PhaseJitter)
	fmt.Printf("  coordination energy: %.6f\n", s.CoordinationEnergy)
	fmt.Printf("  path efficiency:     %.4f\n", s.PathEfficiency)
	fmt.Printf("  stage errors:        %d\n", s.StageErrors)
	fmt.Printf("  truncated plans:     %d\n", s.TruncatedPlans)
}

func planPath(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(logLevel, devLog)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	def := experiment.StartPosition(cfg)
	start, err := vecFlag(startPos, [3]float64{def.X, def.Y, def.Z})
	if err != nil {
		return fmt.Errorf("--start: %w", err)
	}
	goal, err := vecFlag(goalPos, cfg.Planner.Goal)
	if err != nil {
		return fmt.Errorf("--goal: %w", err)
	}

	opts := orchestrator.OptionsFromConfig(cfg)
	p, err := planner.New(opts.Planner, logger.Named("planner"))
	if err != nil {
		return err
	}
	if err := p.InitializeField(opts.Bounds); err != nil {
		return err
	}
	for _, o := range opts.Obstacles {
		if err := p.AddObstacle(o); err != nil {
			return err
		}
	}

	plan, err := p.PlanPath(start, goal, opts.Robot)
	if err != nil {
		return err
	}

	fmt.Printf("waypoints:   %d\n", len(plan.Waypoints))
	fmt.Printf("length:      %.3f m\n", plan.Length())
	fmt.Printf("duration:    %.2f s\n", plan.Duration())
	fmt.Printf("efficiency:  %.3f\n", plan.Efficiency())
	fmt.Printf("energy:      %.4f\n", plan.TotalEnergy)
	if plan.Truncated {
		fmt.Printf("warning: %v after %d steps\n", plan.Err(), plan.Steps)
	}
	view := viz.NewPlanView(40, 16, opts.Bounds)
	fmt.Println()
	fmt.Print(view.Render(opts.Obstacles, plan.Waypoints, goal, []r3.Vec{start}))
	return nil
}

func enhanceTrajectory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	env, err := expressive.ParseEnvelope(envelope)
	if err != nil {
		return err
	}

	reg := experiment.NewRegistry()
	seq, err := reg.Trajectory(config.AgentConfig{
		ID:         "input",
		Dim:        enhanceDim,
		Trajectory: args[0],
		Frequency:  enhanceFreq,
	}, enhanceDuration, 100, enhanceSeed)
	if err != nil {
		return err
	}

	ecfg := expressive.DefaultConfig()
	ecfg.Rubato = cfg.Params.Rubato
	ecfg.VelScale = cfg.Params.VelScale
	ecfg.Envelope = env
	engine, err := expressive.New(ecfg)
	if err != nil {
		return err
	}

	out := engine.Enhance(seq, enhanceSeed)
	if err := trajectory.SaveCSV(args[1], out); err != nil {
		return err
	}
	fmt.Printf("%d frames, %d phrases -> %s\n", len(out), len(engine.Phrases(seq)), args[1])
	if f, err := analysis.DominantFrequency(seq); err == nil {
		fmt.Printf("dominant frequency: %.3f Hz\n", f)
	}
	return nil
}

func tunePLL(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(logLevel, devLog)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	res, err := optim.TunePLL(ctx, optim.DefaultPLLScenario(), gridSize, logger)
	if err != nil {
		return err
	}
	fmt.Printf("grid best:  Kp=%.4f Ki=%.4f score=%.4f\n", res.GridKp, res.GridKi, res.Grid.Value)
	fmt.Printf("refined:    Kp=%.4f Ki=%.4f score=%.4f (settle %.3fs, final error %.5f)\n",
		res.Kp, res.Ki, res.Score.Value, res.Score.SettleTime, res.Score.FinalError)
	fmt.Printf("evaluations: %d\n", res.Evals)
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	// The monitor owns the terminal; keep the log quiet unless asked.
	level := logLevel
	if !cmd.Flags().Changed("log-level") {
		level = "error"
	}
	logger, err := newLogger(level, devLog)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg, logger)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(viz.NewMonitor(exp, stepsPerFrame), tea.WithAltScreen()).Run()
	return err
}

func listParams(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVALUE\tMIN\tMAX\tDESCRIPTION")
	for _, s := range config.ParamSpecs {
		v, _ := cfg.Params.Get(s.Name)
		fmt.Fprintf(w, "%s\t%g\t%g\t%g\t%s\n", s.Name, v, s.Min, s.Max, s.Help)
	}
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIME\tDURATION\tAGENTS\tERRORS\tCONTROLS")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%s\t%d\t%v\n",
			run.ID,
			run.Name,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			strings.Join(run.Agents, ","),
			run.StageErrors,
			run.Controls,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	snaps, err := st.LoadTelemetry(args[0])
	if err != nil {
		return err
	}
	if len(snaps) < 2 {
		return fmt.Errorf("not enough telemetry to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("samples: %d\n\n", len(snaps))

	series := []struct {
		caption string
		value   func(metrics.Snapshot) float64
	}{
		{"control error", func(s metrics.Snapshot) float64 { return s.ControlError }},
		{"phase jitter (rad)", func(s metrics.Snapshot) float64 { return s.PhaseJitter }},
		{"coordination energy", func(s metrics.Snapshot) float64 { return s.CoordinationEnergy }},
		{"path efficiency", func(s metrics.Snapshot) float64 { return s.PathEfficiency }},
	}
	for _, ser := range series {
		data := make([]float64, len(snaps))
		for i, s := range snaps {
			data[i] = ser.value(s)
		}
		fmt.Println(asciigraph.Plot(data,
			asciigraph.Height(8),
			asciigraph.Width(80),
			asciigraph.Caption(ser.caption),
		))
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if exportOut == "" {
		return st.ExportJSON(os.Stdout, args[0])
	}
	if err := st.ExportJSONFile(exportOut, args[0]); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", exportOut)
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(logLevel, devLog)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	res, err := automation.RunScenario(ctx, sc, logger)
	if err != nil {
		return err
	}

	cfg, _ := sc.BaseConfig()
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	id, err := st.Save(storage.RunMetadata{
		Name:       sc.Name,
		Seed:       cfg.Sim.Seed,
		Dt:         cfg.Dt(),
		Duration:   cfg.Sim.Duration,
		Integrator: cfg.Sim.Integrator,
		Params:     cfg.Params.Map(),
	}, res.Result)
	if err != nil {
		return err
	}

	fmt.Printf("scenario %s: %d events applied, %d failed\n", sc.Name, res.Applied, len(res.EventErrors))
	fmt.Printf("run id: %s\n", id)
	printSnapshot(res.Result.Final)
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(logLevel, devLog)
	if err != nil {
		return err
	}
	defer logger.Sync()

	spec, ok := config.Spec(args[0])
	if !ok {
		return fmt.Errorf("unknown parameter %q", args[0])
	}
	lo, hi := spec.Min, spec.Max
	if cmd.Flags().Changed("min") {
		lo = sweepMin
	}
	if cmd.Flags().Changed("max") {
		hi = sweepMax
	}
	base, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	results, err := automation.RunSweep(ctx, &automation.ParameterSweep{
		Base:     base,
		Param:    spec.Name,
		Min:      lo,
		Max:      hi,
		NumSteps: sweepSteps,
		Duration: sweepDuration,
	}, logger)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tCTRL ERR\tJITTER\tENERGY\tEFFICIENCY\tERRORS\n", strings.ToUpper(spec.Name))
	for _, r := range results {
		fmt.Fprintf(w, "%.4g\t%.5f\t%.5f\t%.5f\t%.3f\t%d\n", r.ParamValue,
			r.Final.ControlError, r.Final.PhaseJitter, r.Final.CoordinationEnergy, r.Final.PathEfficiency, r.Errors)
	}
	return w.Flush()
}

func runEnsemble(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(logLevel, devLog)
	if err != nil {
		return err
	}
	defer logger.Sync()

	base, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	stats, err := automation.RunEnsemble(ctx, &automation.EnsembleConfig{
		Base:      base,
		NumRuns:   runs,
		SeedStart: ensembleSeed,
		Duration:  ensembleDuration,
	}, logger)
	if err != nil {
		return err
	}
	fmt.Printf("runs:            %d\n", stats.Runs)
	fmt.Printf("control error:   %.5f ± %.5f\n", stats.MeanControlErr, stats.StdControlErr)
	fmt.Printf("energy:          %.5f ± %.5f\n", stats.MeanEnergy, stats.StdEnergy)
	fmt.Printf("path efficiency: %.3f\n", stats.MeanEfficiency)
	fmt.Printf("stage errors:    %d\n", stats.TotalErrors)
	fmt.Printf("truncated plans: %d\n", stats.TruncatedPlans)
	return nil
}
