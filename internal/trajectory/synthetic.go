package trajectory

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/choreo/internal/dynamo"
)

// Kinds accepted by Synthetic.
const (
	KindGait  = "gait"
	KindGrasp = "grasp"
	KindSweep = "sweep"
)

// Synthetic generates a demo trajectory. Gait produces per-leg sinusoids in
// diagonal pairs, grasp a slow open/close wave across fingers, and sweep a
// phrase-structured motion with pauses between strokes.
func Synthetic(kind string, dim int, duration, rate, freq float64, seed int64) (Sequence, error) {
	if dim <= 0 || duration <= 0 || rate <= 0 {
		return nil, fmt.Errorf("synthetic: dim, duration and rate must be positive")
	}
	rng := rand.New(rand.NewSource(seed))
	n := int(duration*rate) + 1
	seq := make(Sequence, n)

	offsets := make([]float64, dim)
	for j := range offsets {
		offsets[j] = rng.Float64() * 0.1
	}

	for i := 0; i < n; i++ {
		t := float64(i) / rate
		v := make(dynamo.Vector, dim)
		for j := 0; j < dim; j++ {
			switch kind {
			case KindGait:
				shift := 0.0
				if j%2 == 1 {
					shift = math.Pi
				}
				v[j] = 0.4 * math.Sin(dynamo.TwoPi*freq*t+shift+offsets[j])
			case KindGrasp:
				v[j] = 0.5 - 0.5*math.Cos(dynamo.TwoPi*freq*t-float64(j)*0.3)
			case KindSweep:
				stroke := math.Sin(math.Pi * freq * t)
				v[j] = 0.6 * stroke * stroke * math.Sin(dynamo.TwoPi*freq*t+float64(j)*0.2)
			default:
				return nil, fmt.Errorf("synthetic: unknown kind %q", kind)
			}
		}
		seq[i] = Frame{Time: t, Targets: v}
	}
	return seq, nil
}
