package sim

import (
	"context"

	"go.uber.org/zap"

	"github.com/san-kum/choreo/internal/dynamo"
	"github.com/san-kum/choreo/internal/metrics"
)

// Host drives the fixed-rate loop: hooks, control tick, physics step and
// telemetry, once per period.
type Host struct {
	stepper   Stepper
	physics   Physics
	telemetry *metrics.Telemetry
	logger    *zap.Logger

	hooks     []Hook
	observers []Observer
}

func NewHost(stepper Stepper, physics Physics, telemetry *metrics.Telemetry, logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	if telemetry == nil {
		telemetry = metrics.NewTelemetry(metrics.DefaultWindow)
	}
	return &Host{
		stepper:   stepper,
		physics:   physics,
		telemetry: telemetry,
		logger:    logger,
	}
}

func (h *Host) AddHook(fn Hook)               { h.hooks = append(h.hooks, fn) }
func (h *Host) AddObserver(o Observer)        { h.observers = append(h.observers, o) }
func (h *Host) Telemetry() *metrics.Telemetry { return h.telemetry }

// Run ticks until cfg.Duration elapses or ctx is cancelled. A cancelled run
// returns the partial result together with ctx.Err().
func (h *Host) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	steps := cfg.Steps()
	sampleEvery := cfg.SampleEvery
	if sampleEvery <= 0 {
		sampleEvery = 1
	}
	result := &Result{
		Snapshots: make([]metrics.Snapshot, 0, steps/sampleEvery+1),
	}

	t := 0.0
	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			h.finish(result, t)
			return result, ctx.Err()
		default:
		}

		snap, errs := h.Step(i, t, cfg.Dt)
		for _, se := range errs {
			if len(result.StageErrors) < maxKeptErrors {
				result.StageErrors = append(result.StageErrors, se)
			}
		}
		if i%sampleEvery == 0 {
			result.Snapshots = append(result.Snapshots, snap)
		}

		t += cfg.Dt
		result.Ticks++
	}

	h.finish(result, t)
	return result, nil
}

// Step runs one period at time t: hooks, control tick, physics step, then
// observers. Interactive front ends call it directly instead of Run.
func (h *Host) Step(tick int, t, dt float64) (metrics.Snapshot, []*dynamo.StageError) {
	for _, hook := range h.hooks {
		hook(tick, t)
	}

	h.telemetry.BeginTick(tick, t)
	errs := h.stepper.Tick(t, dt)
	if h.physics != nil {
		h.physics.Step(t, dt)
	}

	snap := h.telemetry.Snapshot()
	for _, obs := range h.observers {
		obs.OnTick(tick, t, snap)
	}
	return snap, errs
}

func (h *Host) finish(result *Result, t float64) {
	result.Duration = t
	result.Final = h.telemetry.Snapshot()
	h.logger.Info("run finished",
		zap.Int("ticks", result.Ticks),
		zap.Object("telemetry", result.Final))
}
