package orchestrator

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/choreo/internal/coord"
	"github.com/san-kum/choreo/internal/dynamo"
	"github.com/san-kum/choreo/internal/filter"
	"github.com/san-kum/choreo/internal/pll"
	"github.com/san-kum/choreo/internal/trajectory"
)

// AgentSpec registers one agent with the orchestrator.
type AgentSpec struct {
	ID         string
	Kind       string
	Dim        int
	Frequency  float64
	Navigates  bool
	Loop       bool
	Trajectory trajectory.Sequence
}

// Agent is the orchestrator's per-agent bookkeeping. Filter and
// synchronizer state belong to exactly one agent.
type Agent struct {
	ID            string
	Kind          string
	ControlOffset int
	ControlDim    int
	Navigates     bool
	Loop          bool
	Frequency     float64

	raw      trajectory.Sequence
	enhanced trajectory.Sequence

	filter  *filter.Adaptive
	sync    *pll.Synchronizer
	enabled map[Stage]bool

	clock      float64
	rate       float64
	multiplier float64

	state   coord.AgentState
	lastPos r3.Vec
	last    dynamo.Vector
}

// Enabled reports whether stage runs for this agent.
func (a *Agent) Enabled(stage Stage) bool { return a.enabled[stage] }

// Clock is the agent's playback position in trajectory time.
func (a *Agent) Clock() float64 { return a.clock }

// Rate is the playback rate applied on the last tick: synchronizer ratio
// times coordinator multiplier.
func (a *Agent) Rate() float64 { return a.rate * a.multiplier }

// LastControls returns a copy of what was last written to physics.
func (a *Agent) LastControls() dynamo.Vector { return a.last.Clone() }

func (a *Agent) Synchronizer() *pll.Synchronizer { return a.sync }

func (a *Agent) Filter() *filter.Adaptive { return a.filter }

// Enhanced returns the pre-computed expressive sequence.
func (a *Agent) Enhanced() trajectory.Sequence { return a.enhanced }

// frame looks up the raw target at the agent's clock. Looping agents wrap
// around the sequence; the others hold the last frame once it is exhausted.
func (a *Agent) frame() (trajectory.Lookup, bool) {
	if len(a.raw) == 0 {
		return trajectory.Lookup{}, false
	}
	t0 := a.raw[0].Time
	local := t0 + a.clock
	if dur := a.raw.Duration(); a.Loop && dur > 0 && local > t0+dur {
		local = t0 + math.Mod(a.clock, dur)
	}
	if lk, ok := trajectory.GetControlFrame(a.raw, local); ok {
		return lk, true
	}
	last := len(a.raw) - 1
	return trajectory.Lookup{Time: a.raw[last].Time, Controls: a.raw[last].Targets, Index: last}, true
}

func (a *Agent) reset() {
	a.filter.Reset()
	a.sync.Reset()
	a.clock = 0
	a.rate, a.multiplier = 1, 1
	a.last = nil
}

// joints extracts the measured joint vector of a state.
func joints(s coord.AgentState) dynamo.Vector {
	switch v := s.(type) {
	case coord.Hand:
		return v.Fingers
	case coord.Quadruped:
		return v.Legs
	}
	return nil
}
