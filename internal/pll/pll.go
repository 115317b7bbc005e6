// Package pll implements the phase-locked-loop synchronizer that aligns an
// agent's oscillation to a reference phase.
package pll

import (
	"fmt"
	"math"

	"github.com/san-kum/choreo/internal/dynamo"
)

const (
	MinFrequency = 0.5
	MaxFrequency = 4.0

	DefaultMaxAdjust     = 0.03
	DefaultIntegralLimit = 2.0
)

type Config struct {
	Kp            float64
	Ki            float64
	MaxAdjust     float64
	IntegralLimit float64
	Frequency     float64
	Phase         float64
}

func DefaultConfig() Config {
	return Config{
		Kp:            0.5,
		Ki:            0.1,
		MaxAdjust:     DefaultMaxAdjust,
		IntegralLimit: DefaultIntegralLimit,
		Frequency:     2.0,
	}
}

func (c Config) Validate() error {
	if c.Kp < 0 || c.Kp > 2 {
		return dynamo.RangeError("Kp", c.Kp, 0, 2)
	}
	if c.Ki < 0 || c.Ki > 1 {
		return dynamo.RangeError("Ki", c.Ki, 0, 1)
	}
	if c.MaxAdjust <= 0 || c.MaxAdjust > 1 {
		return dynamo.RangeError("maxAdjust", c.MaxAdjust, 0, 1)
	}
	if c.Frequency < MinFrequency || c.Frequency > MaxFrequency {
		return dynamo.RangeError("frequency", c.Frequency, MinFrequency, MaxFrequency)
	}
	return nil
}

// Synchronizer tracks one slave oscillator against a master phase with a PI
// law: each tick the frequency moves by Kp·e + Ki·integral, clamped to
// MaxAdjust of the current frequency.
type Synchronizer struct {
	Kp            float64
	Ki            float64
	MaxAdjust     float64
	IntegralLimit float64

	initFrequency float64
	initPhase     float64

	phase     float64
	frequency float64
	integral  float64
	lastErr   float64
}

func New(cfg Config) (*Synchronizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.IntegralLimit <= 0 {
		cfg.IntegralLimit = DefaultIntegralLimit
	}
	s := &Synchronizer{
		Kp:            cfg.Kp,
		Ki:            cfg.Ki,
		MaxAdjust:     cfg.MaxAdjust,
		IntegralLimit: cfg.IntegralLimit,
		initFrequency: cfg.Frequency,
		initPhase:     dynamo.WrapPhase(cfg.Phase),
	}
	s.Reset()
	return s, nil
}

// ComputeAdjustment advances the loop by dt and returns the applied
// frequency offset in Hz. The result is always finite and never exceeds
// MaxAdjust times the frequency held before the call.
func (s *Synchronizer) ComputeAdjustment(masterPhase, slavePhase, dt float64) float64 {
	if !dynamo.Finite(masterPhase) || !dynamo.Finite(slavePhase) || !dynamo.Finite(dt) || dt <= 0 {
		return 0
	}

	e := dynamo.WrapError(masterPhase - slavePhase)
	s.lastErr = e

	s.integral = dynamo.Clamp(s.integral+e*dt, -s.IntegralLimit, s.IntegralLimit)
	raw := s.Kp*e + s.Ki*s.integral

	limit := s.MaxAdjust * s.frequency
	adj := dynamo.Clamp(raw, -limit, limit)
	if !dynamo.Finite(adj) {
		adj = 0
	}

	s.frequency = dynamo.Clamp(s.frequency+adj, MinFrequency, MaxFrequency)
	s.phase = dynamo.WrapPhase(s.phase + s.frequency*dt*dynamo.TwoPi)
	return adj
}

// Reset zeroes the accumulated state and restores the initial frequency and
// phase.
func (s *Synchronizer) Reset() {
	s.phase = s.initPhase
	s.frequency = s.initFrequency
	s.integral = 0
	s.lastErr = 0
}

func (s *Synchronizer) Phase() float64     { return s.phase }
func (s *Synchronizer) Frequency() float64 { return s.frequency }
func (s *Synchronizer) Integral() float64  { return s.integral }

// LastError is the wrapped phase error seen by the most recent call.
func (s *Synchronizer) LastError() float64 { return s.lastErr }

// FrequencyRatio is the tracked frequency relative to the initial one; the
// orchestrator uses it as a time-scaling multiplier.
func (s *Synchronizer) FrequencyRatio() float64 {
	if s.initFrequency == 0 {
		return 1
	}
	return s.frequency / s.initFrequency
}

// GetParams returns tunable parameters for live adjustment
func (s *Synchronizer) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp":        s.Kp,
		"Ki":        s.Ki,
		"maxAdjust": s.MaxAdjust,
	}
}

// SetParam adjusts a synchronizer gain
func (s *Synchronizer) SetParam(name string, value float64) error {
	switch name {
	case "Kp", "kp":
		if value < 0 || value > 2 || math.IsNaN(value) {
			return dynamo.RangeError("Kp", value, 0, 2)
		}
		s.Kp = value
	case "Ki", "ki":
		if value < 0 || value > 1 || math.IsNaN(value) {
			return dynamo.RangeError("Ki", value, 0, 1)
		}
		s.Ki = value
	case "maxAdjust":
		if value <= 0 || value > 1 || math.IsNaN(value) {
			return dynamo.RangeError(name, value, 0, 1)
		}
		s.MaxAdjust = value
	default:
		return fmt.Errorf("%w: synchronizer has no %q", dynamo.ErrUnknownParam, name)
	}
	return nil
}
