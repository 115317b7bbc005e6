package metrics

import (
	"fmt"
	"math"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/san-kum/choreo/internal/dynamo"
)

func TestRollingWindow(t *testing.T) {
	r := NewRolling("x", 3)
	if r.Value() != 0 {
		t.Errorf("expected 0 for empty window, got %f", r.Value())
	}
	for _, v := range []float64{1, 2, 3, 4, 5} {
		r.Observe(v)
	}
	if r.Len() != 3 {
		t.Fatalf("expected window of 3, got %d", r.Len())
	}
	if math.Abs(r.Value()-4) > 1e-12 {
		t.Errorf("expected mean of last three = 4, got %f", r.Value())
	}

	r.Observe(math.NaN())
	r.Observe(math.Inf(1))
	if math.Abs(r.Value()-4) > 1e-12 {
		t.Errorf("non-finite samples should be ignored, got %f", r.Value())
	}

	r.Reset()
	if r.Len() != 0 || r.Value() != 0 {
		t.Error("expected empty window after reset")
	}
}

func TestPhaseJitterIsMeasured(t *testing.T) {
	j := NewPhaseJitter(30)
	for i := 0; i < 50; i++ {
		j.Observe(0.2)
	}
	if j.Value() > 1e-12 {
		t.Errorf("constant error should have zero jitter, got %g", j.Value())
	}

	j.Reset()
	for i := 0; i < 30; i++ {
		if i%2 == 0 {
			j.Observe(0.1)
		} else {
			j.Observe(-0.1)
		}
	}
	if math.Abs(j.Value()-0.1) > 1e-12 {
		t.Errorf("expected jitter 0.1, got %g", j.Value())
	}

	a, b := NewPhaseJitter(10), NewPhaseJitter(10)
	for i := 0; i < 10; i++ {
		a.Observe(float64(i) * 0.01)
		b.Observe(float64(i) * 0.01)
	}
	if a.Value() != b.Value() {
		t.Error("jitter must be a pure function of observations")
	}
}

func TestControlErrorNorm(t *testing.T) {
	tests := []struct {
		name     string
		cmd      dynamo.Vector
		measured dynamo.Vector
		want     float64
	}{
		{"equal", dynamo.Vector{1, 2}, dynamo.Vector{1, 2}, 0},
		{"3-4-5", dynamo.Vector{3, 0}, dynamo.Vector{0, 4}, 5},
		{"common prefix", dynamo.Vector{1, 1, 9}, dynamo.Vector{1, 0}, 1},
		{"empty", nil, dynamo.Vector{1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ControlErrorNorm(tt.cmd, tt.measured)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("got %f, want %f", got, tt.want)
			}
		})
	}
}

func TestTelemetrySnapshot(t *testing.T) {
	tel := NewTelemetry(DefaultWindow)
	for i := 0; i < 40; i++ {
		tel.BeginTick(i, float64(i)*0.002)
		tel.ObserveControl(dynamo.Vector{1, 1}, dynamo.Vector{1, 0})
		tel.ObservePhaseError(0.05)
		tel.ObserveEnergy(0.5)
	}
	tel.ObservePlan(0.8, false)
	tel.ObservePlan(0.6, true)
	tel.ObserveStageError()

	s := tel.Snapshot()
	if s.Tick != 39 {
		t.Errorf("expected tick 39, got %d", s.Tick)
	}
	if math.Abs(s.ControlError-1) > 1e-12 {
		t.Errorf("expected control error 1, got %f", s.ControlError)
	}
	if s.PhaseJitter > 1e-12 {
		t.Errorf("expected zero jitter, got %f", s.PhaseJitter)
	}
	if math.Abs(s.CoordinationEnergy-0.5) > 1e-12 {
		t.Errorf("expected energy 0.5, got %f", s.CoordinationEnergy)
	}
	if math.Abs(s.PathEfficiency-0.7) > 1e-12 {
		t.Errorf("expected efficiency 0.7, got %f", s.PathEfficiency)
	}
	if s.StageErrors != 1 || s.TruncatedPlans != 1 {
		t.Errorf("unexpected counters: %+v", s)
	}

	core, logs := observer.New(zap.InfoLevel)
	zap.New(core).Info("telemetry", zap.Object("snapshot", s))
	fields := logs.All()[0].ContextMap()["snapshot"].(map[string]interface{})
	if fmt.Sprint(fields["stage_errors"]) != "1" {
		t.Errorf("expected stage_errors field, got %v", fields)
	}

	tel.Reset()
	if tel.Snapshot() != (Snapshot{}) {
		t.Errorf("expected zero snapshot after reset, got %+v", tel.Snapshot())
	}
}
