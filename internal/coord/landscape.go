package coord

import (
	"math"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/san-kum/choreo/internal/dynamo"
)

// MaxKeyAgents bounds how many relative phases participate in a landscape
// key. Agents past this index share cells.
const MaxKeyAgents = 16

// Key is a quantized relative-phase configuration.
type Key struct {
	N int
	Q [MaxKeyAgents]int16
}

// Landscape remembers the lowest energy observed in each quantized cell,
// evicting the least recently visited cells once full.
type Landscape struct {
	cache   *lru.Cache[Key, float64]
	quantum float64
	levels  int
}

func NewLandscape(size int, quantum float64) (*Landscape, error) {
	if quantum <= 0 || quantum > math.Pi {
		return nil, dynamo.RangeError("quantum", quantum, 0, math.Pi)
	}
	cache, err := lru.New[Key, float64](size)
	if err != nil {
		return nil, &dynamo.ConfigurationError{Param: "landscapeSize", Value: float64(size), Reason: err.Error()}
	}
	return &Landscape{
		cache:   cache,
		quantum: quantum,
		levels:  int(math.Round(dynamo.TwoPi / quantum)),
	}, nil
}

// KeyFor quantizes relative phases in [0, 2π).
func (l *Landscape) KeyFor(rel []float64) Key {
	k := Key{N: len(rel)}
	for i, r := range rel {
		if i >= MaxKeyAgents {
			break
		}
		q := int(math.Round(r/l.quantum)) % l.levels
		k.Q[i] = int16(q)
	}
	return k
}

// Observe records energy e at k and reports whether it is the lowest seen
// there.
func (l *Landscape) Observe(k Key, e float64) bool {
	prev, ok := l.cache.Get(k)
	if ok && e > prev {
		return false
	}
	l.cache.Add(k, e)
	return true
}

// Lowest returns the recorded energy for k without touching recency.
func (l *Landscape) Lowest(k Key) (float64, bool) {
	return l.cache.Peek(k)
}

func (l *Landscape) Len() int { return l.cache.Len() }

func (l *Landscape) Purge() { l.cache.Purge() }

// StablePoint is a low-energy configuration stored as phases relative to
// agent 0.
type StablePoint struct {
	Key      Key
	Relative []float64
	Energy   float64
}

type stableSet struct {
	points []StablePoint
	max    int
}

// offer inserts p, replacing a same-cell point only when p is lower. The set
// stays sorted by energy and is trimmed to max.
func (s *stableSet) offer(p StablePoint) {
	replaced := false
	for i := range s.points {
		if s.points[i].Key == p.Key {
			if p.Energy < s.points[i].Energy {
				s.points[i] = p
			}
			replaced = true
			break
		}
	}
	if !replaced {
		s.points = append(s.points, p)
	}
	sort.SliceStable(s.points, func(i, j int) bool {
		return s.points[i].Energy < s.points[j].Energy
	})
	if len(s.points) > s.max {
		s.points = s.points[:s.max]
	}
}

// nearest returns the stored point closest to rel in wrapped squared
// distance. Ties go to the lower-energy point.
func (s *stableSet) nearest(rel []float64) (StablePoint, bool) {
	best := -1
	bestD := math.Inf(1)
	for i, p := range s.points {
		if len(p.Relative) != len(rel) {
			continue
		}
		d := 0.0
		for j := range rel {
			e := dynamo.WrapError(rel[j] - p.Relative[j])
			d += e * e
		}
		if d < bestD {
			best, bestD = i, d
		}
	}
	if best < 0 {
		return StablePoint{}, false
	}
	return s.points[best], true
}

func (s *stableSet) reset() { s.points = s.points[:0] }
