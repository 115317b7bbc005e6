// Package expressive adds phrase-level timing and dynamics to a whole
// trajectory offline. Output is a pure function of (sequence, seed).
package expressive

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/choreo/internal/dynamo"
	"github.com/san-kum/choreo/internal/trajectory"
)

type Envelope int

const (
	Cosine Envelope = iota
	Gaussian
)

func (e Envelope) String() string {
	switch e {
	case Cosine:
		return "cosine"
	case Gaussian:
		return "gaussian"
	}
	return fmt.Sprintf("envelope(%d)", int(e))
}

// ParseEnvelope accepts "cosine" or "gaussian".
func ParseEnvelope(s string) (Envelope, error) {
	switch s {
	case "cosine", "":
		return Cosine, nil
	case "gaussian":
		return Gaussian, nil
	}
	return Cosine, fmt.Errorf("%w: unknown envelope %q", dynamo.ErrConfiguration, s)
}

const (
	DefaultPhraseLength  = 16
	DefaultGaussianWidth = 0.25
	MaxRubato            = 0.15
)

type Config struct {
	PhraseLength  int
	Rubato        float64
	VelScale      float64
	Envelope      Envelope
	GaussianWidth float64
}

func DefaultConfig() Config {
	return Config{
		PhraseLength:  DefaultPhraseLength,
		Rubato:        0.06,
		VelScale:      1.0,
		Envelope:      Cosine,
		GaussianWidth: DefaultGaussianWidth,
	}
}

func (c Config) Validate() error {
	if c.PhraseLength < 2 {
		return dynamo.RangeError("phraseLength", float64(c.PhraseLength), 2, math.Inf(1))
	}
	if c.Rubato < 0 || c.Rubato > MaxRubato {
		return dynamo.RangeError("rubato", c.Rubato, 0, MaxRubato)
	}
	if c.VelScale < 0.5 || c.VelScale > 1.5 {
		return dynamo.RangeError("velscale", c.VelScale, 0.5, 1.5)
	}
	if c.Envelope == Gaussian && c.GaussianWidth <= 0 {
		return dynamo.RangeError("gaussianWidth", c.GaussianWidth, 0, math.Inf(1))
	}
	return nil
}

// Phrase is a half-open index range [Start, End) of a sequence.
type Phrase struct {
	Start int
	End   int
}

func (p Phrase) Len() int { return p.End - p.Start }

type Engine struct {
	cfg Config
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

func (e *Engine) Config() Config { return e.cfg }

// Enhance returns a sequence of identical length and timestamps whose
// targets carry phrase-level rubato and a dynamics envelope. Samples that
// fall outside every detected phrase are copied unchanged, as is a sequence
// whose frames disagree on target length.
func (e *Engine) Enhance(seq trajectory.Sequence, seed int64) trajectory.Sequence {
	out := seq.Clone()
	if len(seq) < 2 || !seq.Uniform() {
		return out
	}

	rng := rand.New(rand.NewSource(seed))
	for _, ph := range e.Phrases(seq) {
		// draw both values even for short phrases so later phrases see the
		// same random stream regardless of earlier phrase lengths
		scale := 0.5 + rng.Float64()
		sign := 1.0
		if rng.Intn(2) == 0 {
			sign = -1.0
		}
		if ph.Len() < 2 {
			continue
		}
		e.applyPhrase(seq, out, ph, sign*scale)
	}
	return out
}

func (e *Engine) applyPhrase(src, dst trajectory.Sequence, ph Phrase, scale float64) {
	t0 := src[ph.Start].Time
	span := src[ph.End-1].Time - t0
	if span <= 0 {
		return
	}
	mean := phraseMean(src, ph)
	n := float64(ph.Len() - 1)

	for i := ph.Start; i < ph.End; i++ {
		progress := float64(i-ph.Start) / n
		offset := math.Sin(progress*math.Pi) * e.cfg.Rubato * scale * span
		warped := interpolate(src, ph, src[i].Time-offset)

		factor := 1 + (e.cfg.VelScale-1)*e.envelope(progress)
		targets := make(dynamo.Vector, len(warped))
		for j := range warped {
			targets[j] = mean[j] + (warped[j]-mean[j])*factor
		}
		dst[i] = trajectory.Frame{Time: src[i].Time, Targets: targets}
	}
}

func (e *Engine) envelope(progress float64) float64 {
	switch e.cfg.Envelope {
	case Gaussian:
		d := progress - 0.5
		return math.Exp(-d * d / (2 * e.cfg.GaussianWidth * e.cfg.GaussianWidth))
	default:
		return 0.5 - 0.5*math.Cos(2*math.Pi*progress)
	}
}

// Phrases segments seq at windowed local minima of joint speed. Boundaries
// are at least PhraseLength samples apart; a trailing segment shorter than
// PhraseLength is not a phrase. Sequences shorter than 2·PhraseLength form
// a single phrase.
func (e *Engine) Phrases(seq trajectory.Sequence) []Phrase {
	L := e.cfg.PhraseLength
	n := len(seq)
	if n == 0 {
		return nil
	}
	if n < 2*L {
		return []Phrase{{Start: 0, End: n}}
	}

	speed := speeds(seq)
	half := L / 2
	boundaries := []int{0}
	last := 0
	for i := 1; i < n-1; i++ {
		if i-last < L {
			continue
		}
		if isWindowMin(speed, i, half) {
			boundaries = append(boundaries, i)
			last = i
		}
	}

	phrases := make([]Phrase, 0, len(boundaries))
	for k := 0; k < len(boundaries); k++ {
		start := boundaries[k]
		end := n
		if k+1 < len(boundaries) {
			end = boundaries[k+1]
		}
		if end-start < L {
			continue
		}
		phrases = append(phrases, Phrase{Start: start, End: end})
	}
	return phrases
}

func speeds(seq trajectory.Sequence) []float64 {
	v := make([]float64, len(seq))
	for i := 1; i < len(seq); i++ {
		dt := seq[i].Time - seq[i-1].Time
		if dt <= 0 {
			continue
		}
		v[i] = seq[i].Targets.Sub(seq[i-1].Targets).Norm() / dt
	}
	if len(v) > 1 {
		v[0] = v[1]
	}
	return v
}

// isWindowMin reports whether v[i] is the first minimum of v[i-half:i+half].
func isWindowMin(v []float64, i, half int) bool {
	lo := i - half
	if lo < 0 {
		lo = 0
	}
	hi := i + half
	if hi > len(v)-1 {
		hi = len(v) - 1
	}
	for j := lo; j <= hi; j++ {
		if v[j] < v[i] || (v[j] == v[i] && j < i) {
			return false
		}
	}
	return true
}

func phraseMean(seq trajectory.Sequence, ph Phrase) dynamo.Vector {
	dim := len(seq[ph.Start].Targets)
	mean := make(dynamo.Vector, dim)
	for i := ph.Start; i < ph.End; i++ {
		for j := 0; j < dim && j < len(seq[i].Targets); j++ {
			mean[j] += seq[i].Targets[j]
		}
	}
	return mean.Scale(1 / float64(ph.Len()))
}

// interpolate samples the phrase linearly at time t, clamped to its ends.
func interpolate(seq trajectory.Sequence, ph Phrase, t float64) dynamo.Vector {
	first, last := seq[ph.Start], seq[ph.End-1]
	if t <= first.Time {
		return first.Targets.Clone()
	}
	if t >= last.Time {
		return last.Targets.Clone()
	}
	lo, hi := ph.Start, ph.End-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if seq[mid].Time <= t {
			lo = mid
		} else {
			hi = mid
		}
	}
	a, b := seq[lo], seq[hi]
	span := b.Time - a.Time
	if span <= 0 {
		return a.Targets.Clone()
	}
	w := (t - a.Time) / span
	out := make(dynamo.Vector, len(a.Targets))
	for j := range out {
		bj := a.Targets[j]
		if j < len(b.Targets) {
			bj = b.Targets[j]
		}
		out[j] = a.Targets[j]*(1-w) + bj*w
	}
	return out
}

// GetParams returns tunable parameters for live adjustment
func (e *Engine) GetParams() map[string]float64 {
	return map[string]float64{
		"rubato":   e.cfg.Rubato,
		"velscale": e.cfg.VelScale,
	}
}

// SetParam adjusts rubato or velscale; takes effect on the next Enhance.
func (e *Engine) SetParam(name string, value float64) error {
	next := e.cfg
	switch name {
	case "rubato":
		next.Rubato = value
	case "velscale":
		next.VelScale = value
	default:
		return fmt.Errorf("%w: expressive engine has no %q", dynamo.ErrUnknownParam, name)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	e.cfg = next
	return nil
}
