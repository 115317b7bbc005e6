package coord

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/choreo/internal/dynamo"
)

// AgentState is a per-tick snapshot of one agent. Hand and Quadruped are the
// only implementations.
type AgentState interface {
	// Phase projects the agent's joint configuration onto [0, 2π).
	Phase() float64
	Pos() r3.Vec
	Kind() string
	agentState()
}

// Hand is a manipulator snapshot: finger joint positions and palm position.
type Hand struct {
	Fingers  []float64
	Position r3.Vec
}

// Phase aggregates the finger configuration into a single wrapped angle.
func (h Hand) Phase() float64 {
	sum := 0.0
	for _, f := range h.Fingers {
		sum += f
	}
	return dynamo.WrapPhase(sum)
}

func (h Hand) Pos() r3.Vec  { return h.Position }
func (h Hand) Kind() string { return "hand" }
func (Hand) agentState()    {}

// Quadruped is a legged-body snapshot: per-leg gait phases and body position.
type Quadruped struct {
	Legs     []float64
	Position r3.Vec
}

// Phase is the circular mean of the leg phases.
func (q Quadruped) Phase() float64 {
	return dynamo.CircularMean(q.Legs)
}

func (q Quadruped) Pos() r3.Vec  { return q.Position }
func (q Quadruped) Kind() string { return "quadruped" }
func (Quadruped) agentState()    {}

// Adjusted pairs an input state with the coordinator's phase correction.
type Adjusted struct {
	State  AgentState
	Offset float64
}

// TimeOffset is the correction for a Hand, zero otherwise.
func (a Adjusted) TimeOffset() float64 {
	if _, ok := a.State.(Hand); ok {
		return a.Offset
	}
	return 0
}

// GaitOffset is the correction for a Quadruped, zero otherwise.
func (a Adjusted) GaitOffset() float64 {
	if _, ok := a.State.(Quadruped); ok {
		return a.Offset
	}
	return 0
}

// Multiplier converts the offset into a control scale factor 1+gain·offset,
// bounded to [0.8, 1.2].
func (a Adjusted) Multiplier(gain float64) float64 {
	return dynamo.Clamp(1+gain*a.Offset, 0.8, 1.2)
}
