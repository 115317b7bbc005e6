package integrators

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/choreo/internal/dynamo"
)

// tracking is first-order actuator tracking dq/dt = (u - q)/tau.
type tracking struct{ tau float64 }

func (s tracking) Derive(x, u dynamo.Vector, t float64) dynamo.Vector {
	dx := make(dynamo.Vector, len(x))
	for i := range x {
		dx[i] = (u[i] - x[i]) / s.tau
	}
	return dx
}

type oscillator struct{}

func (oscillator) Derive(x, u dynamo.Vector, t float64) dynamo.Vector {
	return dynamo.Vector{x[1], -x[0]}
}

func TestRK4Accuracy(t *testing.T) {
	integ := NewRK4()
	x := dynamo.Vector{1.0, 0.0}
	dt := 0.01
	steps := 100
	for i := 0; i < steps; i++ {
		x = integ.Step(oscillator{}, x, nil, float64(i)*dt, dt)
	}

	if math.Abs(x[0]-math.Cos(1)) > 1e-8 {
		t.Errorf("position error too large: got %.10f, expected %.10f", x[0], math.Cos(1))
	}
	if math.Abs(x[1]+math.Sin(1)) > 1e-8 {
		t.Errorf("velocity error too large: got %.10f, expected %.10f", x[1], -math.Sin(1))
	}
}

func TestTrackingConverges(t *testing.T) {
	tests := []struct {
		name  string
		integ Integrator
		tol   float64
	}{
		{"rk4", NewRK4(), 1e-6},
		{"euler", NewEuler(), 1e-2},
	}

	sys := tracking{tau: 0.05}
	u := dynamo.Vector{1, -0.5, 0}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := dynamo.Vector{0, 0, 0.3}
			dt := 0.002
			for i := 0; i < 50; i++ {
				x = tt.integ.Step(sys, x, u, float64(i)*dt, dt)
			}
			decay := math.Exp(-0.1 / sys.tau)
			want := dynamo.Vector{1 - decay, -0.5 + 0.5*decay, 0.3 * decay}
			for i := range x {
				if math.Abs(x[i]-want[i]) > tt.tol {
					t.Errorf("joint %d: got %.8f, want %.8f", i, x[i], want[i])
				}
			}
		})
	}
}

func TestRK4DimensionChange(t *testing.T) {
	integ := NewRK4()
	sys := tracking{tau: 1}
	integ.Step(sys, dynamo.Vector{0, 0}, dynamo.Vector{1, 1}, 0, 0.01)
	x := integ.Step(sys, dynamo.Vector{0, 0, 0, 0}, dynamo.Vector{1, 1, 1, 1}, 0, 0.01)
	if len(x) != 4 {
		t.Fatalf("expected 4 outputs, got %d", len(x))
	}
}

func TestNew(t *testing.T) {
	for _, name := range Names() {
		if _, err := New(name); err != nil {
			t.Errorf("New(%q): %v", name, err)
		}
	}
	if _, err := New("verlet"); !errors.Is(err, dynamo.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
