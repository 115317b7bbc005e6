package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/choreo/internal/dynamo"
)

const DefaultWindow = 30

// Rolling keeps the last window observations of one quantity.
type Rolling struct {
	name   string
	window int
	buf    []float64
	next   int
	full   bool
}

func NewRolling(name string, window int) *Rolling {
	if window < 1 {
		window = DefaultWindow
	}
	return &Rolling{
		name:   name,
		window: window,
		buf:    make([]float64, 0, window),
	}
}

func (r *Rolling) Name() string { return r.name }

// Observe records v; non-finite values are dropped.
func (r *Rolling) Observe(v float64) {
	if !dynamo.Finite(v) {
		return
	}
	if !r.full {
		r.buf = append(r.buf, v)
		if len(r.buf) == r.window {
			r.full = true
		}
		return
	}
	r.buf[r.next] = v
	r.next = (r.next + 1) % r.window
}

// Value is the mean of the window, 0 when empty.
func (r *Rolling) Value() float64 {
	if len(r.buf) == 0 {
		return 0
	}
	return stat.Mean(r.buf, nil)
}

// StdDev is the population standard deviation of the window.
func (r *Rolling) StdDev() float64 {
	if len(r.buf) < 2 {
		return 0
	}
	_, variance := stat.PopMeanVariance(r.buf, nil)
	if variance < 0 {
		return 0
	}
	return math.Sqrt(variance)
}

func (r *Rolling) Len() int    { return len(r.buf) }
func (r *Rolling) Window() int { return r.window }

func (r *Rolling) Reset() {
	r.buf = r.buf[:0]
	r.next = 0
	r.full = false
}

var _ dynamo.Metric = (*Rolling)(nil)
