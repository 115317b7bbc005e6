package automation

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/choreo/internal/config"
	"github.com/san-kum/choreo/internal/experiment"
	"github.com/san-kum/choreo/internal/metrics"
	"github.com/san-kum/choreo/internal/orchestrator"
	"github.com/san-kum/choreo/internal/sim"
)

// Scenario scripts one run: a base config plus timed events and fault
// windows.
type Scenario struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Preset      string  `yaml:"preset"`
	Config      string  `yaml:"config"`
	Duration    float64 `yaml:"duration"`
	Seed        int64   `yaml:"seed"`
	Events      []Event `yaml:"events"`
	Faults      []Fault `yaml:"faults"`
}

// Event fires once, on the first tick at or after At. Exactly one of the
// action groups is expected to be set.
type Event struct {
	At float64 `yaml:"at"`

	Param string  `yaml:"param"`
	Value float64 `yaml:"value"`

	Stage  string `yaml:"stage"`
	Agent  string `yaml:"agent"`
	Enable *bool  `yaml:"enable"`

	Replan bool        `yaml:"replan"`
	Goal   *[3]float64 `yaml:"goal"`

	Reset string `yaml:"reset"`
}

// Fault fails Stage for Agent (every agent when empty) while From <= t < To.
type Fault struct {
	Stage string  `yaml:"stage"`
	Agent string  `yaml:"agent"`
	From  float64 `yaml:"from"`
	To    float64 `yaml:"to"`
}

func (f Fault) active(stage orchestrator.Stage, agentID string, t float64) bool {
	if string(stage) != f.Stage || t < f.From || t >= f.To {
		return false
	}
	return f.Agent == "" || f.Agent == agentID
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	for i, ev := range scenario.Events {
		if ev.Stage != "" {
			if _, ok := orchestrator.ParseStage(ev.Stage); !ok {
				return nil, fmt.Errorf("event %d: unknown stage %q", i, ev.Stage)
			}
		}
	}
	for i, f := range scenario.Faults {
		if _, ok := orchestrator.ParseStage(f.Stage); !ok {
			return nil, fmt.Errorf("fault %d: unknown stage %q", i, f.Stage)
		}
	}
	sort.SliceStable(scenario.Events, func(i, j int) bool {
		return scenario.Events[i].At < scenario.Events[j].At
	})
	return &scenario, nil
}

// BaseConfig resolves the scenario's config file or preset and applies its
// duration and seed overrides.
func (s *Scenario) BaseConfig() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case s.Config != "":
		c, err := config.Load(s.Config)
		if err != nil {
			return nil, err
		}
		cfg = c
	case s.Preset != "":
		cfg = config.GetPreset(s.Preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %q", s.Preset)
		}
	default:
		cfg = config.DefaultConfig()
	}
	if s.Duration > 0 {
		cfg.Sim.Duration = s.Duration
	}
	if s.Seed != 0 {
		cfg.Sim.Seed = s.Seed
	}
	return cfg, nil
}

type ScenarioResult struct {
	Name        string
	Result      *sim.Result
	Applied     int
	EventErrors []error
}

// RunScenario executes the scenario on a freshly built experiment. Event
// failures are logged and collected; they do not abort the run.
func RunScenario(ctx context.Context, scenario *Scenario, logger *zap.Logger) (*ScenarioResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := scenario.BaseConfig()
	if err != nil {
		return nil, err
	}

	var now float64
	exp, err := experiment.New(cfg, logger, func(o *orchestrator.Options) {
		if len(scenario.Faults) == 0 {
			return
		}
		o.Fault = func(stage orchestrator.Stage, agentID string) error {
			for _, f := range scenario.Faults {
				if f.active(stage, agentID, now) {
					return fmt.Errorf("scripted fault in %s", stage)
				}
			}
			return nil
		}
	})
	if err != nil {
		return nil, err
	}

	out := &ScenarioResult{Name: scenario.Name}
	next := 0
	exp.Host().AddHook(func(tick int, t float64) {
		now = t
		for next < len(scenario.Events) && scenario.Events[next].At <= t+1e-9 {
			ev := scenario.Events[next]
			next++
			if err := apply(exp, cfg, ev); err != nil {
				logger.Warn("scenario event failed",
					zap.String("scenario", scenario.Name),
					zap.Float64("at", ev.At),
					zap.Error(err))
				out.EventErrors = append(out.EventErrors, err)
				continue
			}
			out.Applied++
		}
	})

	logger.Info("running scenario",
		zap.String("name", scenario.Name),
		zap.Int("events", len(scenario.Events)),
		zap.Int("faults", len(scenario.Faults)))
	out.Result, err = exp.Run(ctx)
	return out, err
}

func apply(exp *experiment.Experiment, cfg *config.Config, ev Event) error {
	orch := exp.Orchestrator()
	switch {
	case ev.Param != "":
		return orch.SetParam(ev.Param, ev.Value)
	case ev.Stage != "":
		stage, _ := orchestrator.ParseStage(ev.Stage)
		on := ev.Enable == nil || *ev.Enable
		if ev.Agent == "" {
			return orch.SetStage(stage, on)
		}
		if on {
			return orch.Enable(ev.Agent, stage)
		}
		return orch.Disable(ev.Agent, stage)
	case ev.Replan:
		id := ev.Agent
		if id == "" {
			for _, ac := range cfg.Agents {
				if ac.Navigates {
					id = ac.ID
					break
				}
			}
		}
		start, err := exp.Physics().Position(id)
		if err != nil {
			return err
		}
		goal := cfg.Planner.Goal
		if ev.Goal != nil {
			goal = *ev.Goal
		}
		orch.RequestReplan(start, r3.Vec{X: goal[0], Y: goal[1], Z: goal[2]})
		return nil
	case ev.Reset != "":
		return orch.ResetAgent(ev.Reset)
	}
	return fmt.Errorf("event at %.3fs has no action", ev.At)
}

// ParameterSweep runs one experiment per value of Param, evenly spaced over
// [Min, Max].
type ParameterSweep struct {
	Base     *config.Config
	Param    string
	Min      float64
	Max      float64
	NumSteps int
	Duration float64
}

type SweepResult struct {
	ParamValue float64
	Final      metrics.Snapshot
	Errors     int
}

// RunSweep executes the sweep with one goroutine per value.
func RunSweep(ctx context.Context, sweep *ParameterSweep, logger *zap.Logger) ([]SweepResult, error) {
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("sweep needs at least one step")
	}
	base := sweep.Base
	if base == nil {
		base = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	values := make([]float64, sweep.NumSteps)
	for i := range values {
		if sweep.NumSteps == 1 {
			values[i] = sweep.Min
			continue
		}
		values[i] = sweep.Min + float64(i)*(sweep.Max-sweep.Min)/float64(sweep.NumSteps-1)
	}

	results := make([]SweepResult, len(values))
	errs := make([]error, len(values))
	var wg sync.WaitGroup
	for i, v := range values {
		wg.Add(1)
		go func(idx int, value float64) {
			defer wg.Done()
			cfg := *base
			if sweep.Duration > 0 {
				cfg.Sim.Duration = sweep.Duration
			}
			if err := cfg.Params.Set(sweep.Param, value); err != nil {
				errs[idx] = err
				return
			}
			exp, err := experiment.New(&cfg, logger.With(zap.Float64(sweep.Param, value)))
			if err != nil {
				errs[idx] = err
				return
			}
			res, err := exp.Run(ctx)
			if err != nil {
				errs[idx] = err
				return
			}
			results[idx] = SweepResult{ParamValue: value, Final: res.Final, Errors: res.Final.StageErrors}
		}(i, v)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// EnsembleConfig repeats one configuration across consecutive seeds.
type EnsembleConfig struct {
	Base      *config.Config
	NumRuns   int
	SeedStart int64
	Duration  float64
}

type EnsembleStats struct {
	Runs           int
	MeanControlErr float64
	StdControlErr  float64
	MeanEnergy     float64
	StdEnergy      float64
	MeanEfficiency float64
	TotalErrors    int
	TruncatedPlans int
	Finals         []metrics.Snapshot
}

// RunEnsemble runs every seed concurrently and summarizes the final
// telemetry across runs.
func RunEnsemble(ctx context.Context, ec *EnsembleConfig, logger *zap.Logger) (*EnsembleStats, error) {
	if ec.NumRuns < 1 {
		return nil, fmt.Errorf("ensemble needs at least one run")
	}
	base := ec.Base
	if base == nil {
		base = config.DefaultConfig()
	}

	finals := make([]metrics.Snapshot, ec.NumRuns)
	errs := make([]error, ec.NumRuns)
	var wg sync.WaitGroup
	for i := 0; i < ec.NumRuns; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			cfg := *base
			cfg.Sim.Seed = ec.SeedStart + int64(idx)
			if ec.Duration > 0 {
				cfg.Sim.Duration = ec.Duration
			}
			exp, err := experiment.New(&cfg, logger)
			if err != nil {
				errs[idx] = err
				return
			}
			res, err := exp.Run(ctx)
			if err != nil {
				errs[idx] = err
				return
			}
			finals[idx] = res.Final
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return summarize(finals), nil
}

func summarize(finals []metrics.Snapshot) *EnsembleStats {
	ctrl := make([]float64, len(finals))
	energy := make([]float64, len(finals))
	eff := make([]float64, len(finals))
	s := &EnsembleStats{Runs: len(finals), Finals: finals}
	for i, f := range finals {
		ctrl[i], energy[i], eff[i] = f.ControlError, f.CoordinationEnergy, f.PathEfficiency
		s.TotalErrors += f.StageErrors
		s.TruncatedPlans += f.TruncatedPlans
	}
	s.MeanControlErr, s.StdControlErr = stat.MeanStdDev(ctrl, nil)
	s.MeanEnergy, s.StdEnergy = stat.MeanStdDev(energy, nil)
	s.MeanEfficiency = stat.Mean(eff, nil)
	return s
}
