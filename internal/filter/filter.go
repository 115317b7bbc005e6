// Package filter implements the per-agent adaptive motion filter: a bounded
// history EMA blended with the raw command.
package filter

import (
	"fmt"
	"math/rand"

	"github.com/san-kum/choreo/internal/dynamo"
	"go.uber.org/zap"
)

const (
	MinWindow = 5
	MaxWindow = 32
	MinGain   = 0.1
	MaxGain   = 0.99
	MaxSigma  = 0.05
)

type Config struct {
	Window int
	Gain   float64
	Sigma  float64
	Seed   int64
}

func DefaultConfig() Config {
	return Config{Window: 15, Gain: 0.9, Sigma: 0.005}
}

func (c Config) Validate() error {
	if c.Window < MinWindow || c.Window > MaxWindow {
		return dynamo.RangeError("window", float64(c.Window), MinWindow, MaxWindow)
	}
	if c.Gain < MinGain || c.Gain > MaxGain {
		return dynamo.RangeError("gain", c.Gain, MinGain, MaxGain)
	}
	if c.Sigma < 0 || c.Sigma > MaxSigma {
		return dynamo.RangeError("sigma", c.Sigma, 0, MaxSigma)
	}
	return nil
}

// Adaptive smooths one command vector per tick. It owns its history and is
// not shared between agents.
type Adaptive struct {
	window int
	gain   float64
	sigma  float64

	history []dynamo.Vector
	ema     dynamo.Vector
	rng     *rand.Rand
	logger  *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Adaptive, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adaptive{
		window:  cfg.Window,
		gain:    cfg.Gain,
		sigma:   cfg.Sigma,
		history: make([]dynamo.Vector, 0, cfg.Window),
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		logger:  logger,
	}, nil
}

// Filter returns the smoothed command, same length as raw. The first call
// after construction, Reset or a length change seeds the state and returns
// raw unchanged.
func (f *Adaptive) Filter(raw dynamo.Vector) dynamo.Vector {
	if len(f.history) > 0 && len(f.history[0]) != len(raw) {
		f.logger.Warn("filter input length changed, reinitializing history",
			zap.Int("previous", len(f.history[0])),
			zap.Int("current", len(raw)),
			zap.Error(dynamo.ErrDimensionMismatch))
		f.Reset()
	}

	if len(f.history) == 0 {
		f.ema = raw.Clone()
		f.push(raw.Clone())
		return raw.Clone()
	}

	noisy := f.perturb(raw)
	alpha := 2.0 / float64(f.window+1)
	out := make(dynamo.Vector, len(raw))
	for i := range noisy {
		f.ema[i] = alpha*noisy[i] + (1-alpha)*f.ema[i]
		out[i] = f.gain*f.ema[i] + (1-f.gain)*noisy[i]
	}
	f.push(noisy)
	return out
}

func (f *Adaptive) perturb(raw dynamo.Vector) dynamo.Vector {
	noisy := raw.Clone()
	if f.sigma == 0 {
		return noisy
	}
	for i := range noisy {
		noisy[i] += (2*f.rng.Float64() - 1) * f.sigma
	}
	return noisy
}

func (f *Adaptive) push(sample dynamo.Vector) {
	f.history = append(f.history, sample)
	if over := len(f.history) - f.window; over > 0 {
		// shift in place so the backing array stays bounded
		copy(f.history, f.history[over:])
		for i := len(f.history) - over; i < len(f.history); i++ {
			f.history[i] = nil
		}
		f.history = f.history[:f.window]
	}
}

// Reset clears history and EMA state.
func (f *Adaptive) Reset() {
	for i := range f.history {
		f.history[i] = nil
	}
	f.history = f.history[:0]
	f.ema = nil
}

// HistoryLen reports how many samples are retained.
func (f *Adaptive) HistoryLen() int {
	return len(f.history)
}

// GetParams returns tunable parameters for live adjustment
func (f *Adaptive) GetParams() map[string]float64 {
	return map[string]float64{
		"window": float64(f.window),
		"gain":   f.gain,
		"sigma":  f.sigma,
	}
}

// SetParam adjusts a filter parameter in place. Shrinking the window trims
// the oldest history samples.
func (f *Adaptive) SetParam(name string, value float64) error {
	switch name {
	case "window":
		w := int(value + 0.5)
		if w < MinWindow || w > MaxWindow {
			return dynamo.RangeError(name, value, MinWindow, MaxWindow)
		}
		f.window = w
		if over := len(f.history) - w; over > 0 {
			copy(f.history, f.history[over:])
			f.history = f.history[:w]
		}
	case "gain":
		if value < MinGain || value > MaxGain {
			return dynamo.RangeError(name, value, MinGain, MaxGain)
		}
		f.gain = value
	case "sigma":
		if value < 0 || value > MaxSigma {
			return dynamo.RangeError(name, value, 0, MaxSigma)
		}
		f.sigma = value
	default:
		return fmt.Errorf("%w: filter has no %q", dynamo.ErrUnknownParam, name)
	}
	return nil
}
