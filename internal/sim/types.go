package sim

import (
	"fmt"

	"github.com/san-kum/choreo/internal/dynamo"
	"github.com/san-kum/choreo/internal/metrics"
)

// Stepper runs one control tick. The orchestrator implements it.
type Stepper interface {
	Tick(t, dt float64) []*dynamo.StageError
}

// Physics advances body state after controls have been written.
type Physics interface {
	Step(t, dt float64)
}

// Observer is notified after every tick.
type Observer interface {
	OnTick(tick int, t float64, snap metrics.Snapshot)
}

// Hook runs before the tick at time t; automation uses it to apply
// scheduled events.
type Hook func(tick int, t float64)

type Config struct {
	Dt          float64
	Duration    float64
	SampleEvery int
}

func DefaultConfig() Config {
	return Config{
		Dt:          0.002,
		Duration:    10.0,
		SampleEvery: 50,
	}
}

func (c Config) Validate() error {
	if !(c.Dt > 0) {
		return fmt.Errorf("dt must be positive, got %f", c.Dt)
	}
	if !(c.Duration > 0) {
		return fmt.Errorf("duration must be positive, got %f", c.Duration)
	}
	return nil
}

func (c Config) Steps() int {
	return int(c.Duration/c.Dt + 1e-9)
}

type Result struct {
	Ticks       int
	Duration    float64
	Snapshots   []metrics.Snapshot
	Final       metrics.Snapshot
	StageErrors []*dynamo.StageError
}

// maxKeptErrors bounds Result.StageErrors; the telemetry counter keeps the
// full count.
const maxKeptErrors = 256
