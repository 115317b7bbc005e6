// Package metrics computes rolling telemetry over the control loop. Values
// are observational only and never feed back into control.
package metrics

import (
	"go.uber.org/zap/zapcore"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/choreo/internal/dynamo"
)

// ControlErrorNorm is the Euclidean distance between the commanded and
// measured joint vectors over their common length.
func ControlErrorNorm(commanded, measured dynamo.Vector) float64 {
	n := len(commanded)
	if len(measured) < n {
		n = len(measured)
	}
	if n == 0 {
		return 0
	}
	return floats.Distance(commanded[:n], measured[:n], 2)
}

// PhaseJitter measures the spread of wrapped phase errors: the rolling
// standard deviation of what the synchronizer actually saw.
type PhaseJitter struct {
	*Rolling
}

func NewPhaseJitter(window int) *PhaseJitter {
	return &PhaseJitter{Rolling: NewRolling("phase_jitter", window)}
}

func (p *PhaseJitter) Observe(phaseErr float64) {
	p.Rolling.Observe(dynamo.WrapError(phaseErr))
}

func (p *PhaseJitter) Value() float64 { return p.Rolling.StdDev() }

// Snapshot is one row of telemetry.
type Snapshot struct {
	Tick               int     `csv:"tick" json:"tick"`
	Time               float64 `csv:"time" json:"time"`
	ControlError       float64 `csv:"control_error" json:"control_error"`
	PhaseJitter        float64 `csv:"phase_jitter" json:"phase_jitter"`
	CoordinationEnergy float64 `csv:"coordination_energy" json:"coordination_energy"`
	PathEfficiency     float64 `csv:"path_efficiency" json:"path_efficiency"`
	StageErrors        int     `csv:"stage_errors" json:"stage_errors"`
	TruncatedPlans     int     `csv:"truncated_plans" json:"truncated_plans"`
}

// MarshalLogObject lets a snapshot be logged with zap.Object.
func (s Snapshot) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("tick", s.Tick)
	enc.AddFloat64("time", s.Time)
	enc.AddFloat64("control_error", s.ControlError)
	enc.AddFloat64("phase_jitter", s.PhaseJitter)
	enc.AddFloat64("coordination_energy", s.CoordinationEnergy)
	enc.AddFloat64("path_efficiency", s.PathEfficiency)
	enc.AddInt("stage_errors", s.StageErrors)
	enc.AddInt("truncated_plans", s.TruncatedPlans)
	return nil
}

// Telemetry aggregates the loop's rolling metrics.
type Telemetry struct {
	controlError *Rolling
	jitter       *PhaseJitter
	energy       *Rolling
	efficiency   *Rolling

	tick        int
	time        float64
	stageErrors int
	truncated   int
}

func NewTelemetry(window int) *Telemetry {
	return &Telemetry{
		controlError: NewRolling("control_error", window),
		jitter:       NewPhaseJitter(window),
		energy:       NewRolling("coordination_energy", window),
		efficiency:   NewRolling("path_efficiency", window),
	}
}

// BeginTick stamps subsequent observations.
func (t *Telemetry) BeginTick(tick int, now float64) {
	t.tick = tick
	t.time = now
}

func (t *Telemetry) ObserveControl(commanded, measured dynamo.Vector) {
	t.controlError.Observe(ControlErrorNorm(commanded, measured))
}

func (t *Telemetry) ObservePhaseError(e float64) { t.jitter.Observe(e) }

func (t *Telemetry) ObserveEnergy(e float64) { t.energy.Observe(e) }

// ObservePlan records a finished plan's efficiency and whether it was
// truncated.
func (t *Telemetry) ObservePlan(efficiency float64, truncated bool) {
	t.efficiency.Observe(efficiency)
	if truncated {
		t.truncated++
	}
}

func (t *Telemetry) ObserveStageError() { t.stageErrors++ }

func (t *Telemetry) Snapshot() Snapshot {
	return Snapshot{
		Tick:               t.tick,
		Time:               t.time,
		ControlError:       t.controlError.Value(),
		PhaseJitter:        t.jitter.Value(),
		CoordinationEnergy: t.energy.Value(),
		PathEfficiency:     t.efficiency.Value(),
		StageErrors:        t.stageErrors,
		TruncatedPlans:     t.truncated,
	}
}

// Metrics lists the underlying rolling metrics.
func (t *Telemetry) Metrics() []dynamo.Metric {
	return []dynamo.Metric{t.controlError, t.jitter, t.energy, t.efficiency}
}

func (t *Telemetry) Reset() {
	for _, m := range t.Metrics() {
		m.Reset()
	}
	t.tick, t.time = 0, 0
	t.stageErrors, t.truncated = 0, 0
}
