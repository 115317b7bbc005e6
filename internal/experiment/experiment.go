// Package experiment assembles a runnable pipeline from a config: the
// kinematic stand-in, the orchestrator and the fixed-rate host.
package experiment

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/choreo/internal/analysis"
	"github.com/san-kum/choreo/internal/config"
	"github.com/san-kum/choreo/internal/metrics"
	"github.com/san-kum/choreo/internal/orchestrator"
	"github.com/san-kum/choreo/internal/sim"
)

// trajectoryRate is the sample rate of generated trajectories in Hz.
const trajectoryRate = 100.0

type Experiment struct {
	cfg    *config.Config
	logger *zap.Logger

	physics      *sim.Kinematic
	orchestrator *orchestrator.Orchestrator
	host         *sim.Host
}

// New builds every component described by cfg. opts may adjust the derived
// orchestrator options (for example to install a fault hook) before
// construction.
func New(cfg *config.Config, logger *zap.Logger, opts ...func(*orchestrator.Options)) (*Experiment, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := NewRegistry()

	integ, err := reg.GetIntegrator(cfg.Sim.Integrator)
	if err != nil {
		return nil, err
	}
	phys, err := sim.NewKinematic(cfg.Sim.TimeConstant, integ)
	if err != nil {
		return nil, err
	}

	oopts := orchestrator.OptionsFromConfig(cfg)
	for _, fn := range opts {
		fn(&oopts)
	}
	telemetry := metrics.NewTelemetry(cfg.Telemetry.Window)
	orch, err := orchestrator.New(oopts, phys, telemetry, logger.Named("orchestrator"))
	if err != nil {
		return nil, err
	}

	start := StartPosition(cfg)
	for i, ac := range cfg.Agents {
		seq, err := reg.Trajectory(ac, cfg.Sim.Duration, trajectoryRate, cfg.Sim.Seed+int64(i))
		if err != nil {
			return nil, err
		}
		freq := ac.Frequency
		if freq == 0 {
			if f, err := analysis.DominantFrequency(seq); err == nil {
				freq = f
				logger.Debug("estimated agent frequency", zap.String("agent", ac.ID), zap.Float64("hz", f))
			}
		}
		if err := phys.AddBody(ac.ID, ac.Kind, ac.Dim, ac.Navigates, start); err != nil {
			return nil, err
		}
		if _, err := orch.AddAgent(orchestrator.AgentSpec{
			ID:         ac.ID,
			Kind:       ac.Kind,
			Dim:        ac.Dim,
			Frequency:  freq,
			Navigates:  ac.Navigates,
			Loop:       true,
			Trajectory: seq,
		}); err != nil {
			return nil, fmt.Errorf("agent %s: %w", ac.ID, err)
		}
	}

	host := sim.NewHost(orch, phys, telemetry, logger.Named("host"))
	return &Experiment{
		cfg:          cfg,
		logger:       logger,
		physics:      phys,
		orchestrator: orch,
		host:         host,
	}, nil
}

// StartPosition places bodies near the workspace minimum corner, a tenth of
// the way in.
func StartPosition(cfg *config.Config) r3.Vec {
	lo, hi := cfg.Planner.Min, cfg.Planner.Max
	at := func(i int) float64 { return lo[i] + 0.1*(hi[i]-lo[i]) }
	z := cfg.Planner.Goal[2]
	if z < lo[2] || z > hi[2] {
		z = at(2)
	}
	return r3.Vec{X: at(0), Y: at(1), Z: z}
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	return e.host.Run(ctx, e.SimConfig())
}

// SimConfig is the host loop configuration implied by the experiment config.
func (e *Experiment) SimConfig() sim.Config {
	sc := sim.DefaultConfig()
	sc.Dt = e.cfg.Dt()
	sc.Duration = e.cfg.Sim.Duration
	return sc
}

func (e *Experiment) Config() *config.Config { return e.cfg }

func (e *Experiment) Host() *sim.Host { return e.host }

func (e *Experiment) Physics() *sim.Kinematic { return e.physics }

func (e *Experiment) Orchestrator() *orchestrator.Orchestrator { return e.orchestrator }
