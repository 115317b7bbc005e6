// Package trajectory holds pre-computed, time-indexed target sequences and
// the lookup used by the per-tick control loop.
package trajectory

import (
	"sort"

	"github.com/san-kum/choreo/internal/dynamo"
)

// Frame is one immutable trajectory sample.
type Frame struct {
	Time    float64
	Targets dynamo.Vector
}

// Sequence is a time-ascending list of frames.
type Sequence []Frame

// Lookup is the result of GetControlFrame.
type Lookup struct {
	Time     float64
	Controls dynamo.Vector
	Index    int
}

// GetControlFrame returns the first frame at or after t. It reports false on
// an empty sequence or when t is past the last frame.
func GetControlFrame(seq Sequence, t float64) (Lookup, bool) {
	if len(seq) == 0 {
		return Lookup{}, false
	}
	idx := sort.Search(len(seq), func(i int) bool {
		return seq[i].Time >= t
	})
	if idx >= len(seq) {
		return Lookup{}, false
	}
	f := seq[idx]
	return Lookup{Time: f.Time, Controls: f.Targets, Index: idx}, true
}

func (s Sequence) Duration() float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].Time - s[0].Time
}

// Dim returns the target vector length of the first frame.
func (s Sequence) Dim() int {
	if len(s) == 0 {
		return 0
	}
	return len(s[0].Targets)
}

// Uniform reports whether every frame has the same target length.
func (s Sequence) Uniform() bool {
	for _, f := range s {
		if len(f.Targets) != len(s[0].Targets) {
			return false
		}
	}
	return true
}

// Clone deep-copies the sequence.
func (s Sequence) Clone() Sequence {
	out := make(Sequence, len(s))
	for i, f := range s {
		out[i] = Frame{Time: f.Time, Targets: f.Targets.Clone()}
	}
	return out
}

// IsSorted reports whether frame times are non-decreasing.
func (s Sequence) IsSorted() bool {
	return sort.SliceIsSorted(s, func(i, j int) bool { return s[i].Time < s[j].Time })
}
