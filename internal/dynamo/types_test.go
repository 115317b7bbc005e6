package dynamo

import (
	"errors"
	"math"
	"testing"
)

func TestVector_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		v     Vector
		valid bool
	}{
		{"empty", Vector{}, true},
		{"normal", Vector{1.0, 2.0, 3.0}, true},
		{"with NaN", Vector{1.0, math.NaN()}, false},
		{"with +Inf", Vector{1.0, math.Inf(1)}, false},
		{"with -Inf", Vector{1.0, math.Inf(-1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestVector_Norm(t *testing.T) {
	tests := []struct {
		v        Vector
		expected float64
	}{
		{Vector{3, 4}, 5.0},
		{Vector{0, 0}, 0.0},
		{Vector{1, 1, 1, 1}, 2.0},
	}

	for _, tt := range tests {
		if got := tt.v.Norm(); math.Abs(got-tt.expected) > 1e-10 {
			t.Errorf("Norm(%v) = %v, want %v", tt.v, got, tt.expected)
		}
	}
}

func TestVector_Arithmetic(t *testing.T) {
	a := Vector{1, 2, 3}
	b := Vector{4, 5, 6}

	sum := a.Add(b)
	if sum[0] != 5 || sum[1] != 7 || sum[2] != 9 {
		t.Errorf("Add failed: got %v", sum)
	}

	diff := b.Sub(a)
	if diff[0] != 3 || diff[1] != 3 || diff[2] != 3 {
		t.Errorf("Sub failed: got %v", diff)
	}

	scaled := a.Scale(2)
	if scaled[0] != 2 || scaled[1] != 4 || scaled[2] != 6 {
		t.Errorf("Scale failed: got %v", scaled)
	}

	short := a.Add(Vector{1})
	if short[0] != 2 || short[1] != 2 || short[2] != 3 {
		t.Errorf("Add with shorter operand: got %v", short)
	}
}

func TestVector_CloneIsIndependent(t *testing.T) {
	a := Vector{1, 2}
	c := a.Clone()
	c[0] = 9
	if a[0] != 1 {
		t.Errorf("Clone shares storage with source")
	}
	if Vector(nil).Clone() != nil {
		t.Errorf("Clone(nil) should stay nil")
	}
}

func TestWrapPhase(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{TwoPi, 0},
		{-math.Pi / 2, 1.5 * math.Pi},
		{5 * math.Pi, math.Pi},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		got := WrapPhase(tt.in)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("WrapPhase(%v) = %v, want %v", tt.in, got, tt.want)
		}
		if got < 0 || got >= TwoPi {
			t.Errorf("WrapPhase(%v) = %v out of [0, 2π)", tt.in, got)
		}
	}
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{1.5 * math.Pi, -0.5 * math.Pi},
		{-1.5 * math.Pi, 0.5 * math.Pi},
		{math.Inf(1), 0},
	}
	for _, tt := range tests {
		if got := WrapError(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("WrapError(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCircularMean(t *testing.T) {
	if got := CircularMean(nil); got != 0 {
		t.Errorf("CircularMean(nil) = %v, want 0", got)
	}
	got := CircularMean([]float64{TwoPi - 0.1, 0.1})
	if math.Abs(WrapError(got)) > 1e-9 {
		t.Errorf("mean across the wrap = %v, want 0", got)
	}
}

func TestClamp(t *testing.T) {
	if Clamp(5, 0, 1) != 1 || Clamp(-5, 0, 1) != 0 || Clamp(0.5, 0, 1) != 0.5 {
		t.Errorf("Clamp out of bounds")
	}
}

func TestErrorsUnwrap(t *testing.T) {
	re := RangeError("gain", 2, 0, 1)
	if !errors.Is(re, ErrConfiguration) {
		t.Errorf("RangeError should wrap ErrConfiguration")
	}
	if !errors.Is(ErrUnknownParam, ErrConfiguration) {
		t.Errorf("ErrUnknownParam should wrap ErrConfiguration")
	}

	se := &StageError{Stage: "filter", Agent: "hand", Tick: 3, Wrapped: ErrNumericDegeneracy}
	if !errors.Is(se, ErrNumericDegeneracy) {
		t.Errorf("StageError should unwrap to its cause")
	}
	if se.Error() == "" {
		t.Errorf("empty StageError message")
	}
}
