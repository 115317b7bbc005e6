package coord

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/choreo/internal/dynamo"
)

// Coupling is the symmetric agent coupling matrix. The diagonal is fixed at
// 1 and off-diagonal entries stay in [0, 1].
type Coupling struct {
	n    int
	base float64
	m    *mat.SymDense
}

func NewCoupling(n int, base float64) *Coupling {
	c := &Coupling{n: n, base: dynamo.Clamp(base, 0, 1)}
	if n == 0 {
		return c
	}
	c.m = mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if i == j {
				c.m.SetSym(i, j, 1)
			} else {
				c.m.SetSym(i, j, c.base)
			}
		}
	}
	return c
}

func (c *Coupling) N() int { return c.n }

func (c *Coupling) At(i, j int) float64 {
	if c.m == nil {
		return 0
	}
	return c.m.At(i, j)
}

// Set writes both (i,j) and (j,i). Diagonal writes are ignored.
func (c *Coupling) Set(i, j int, v float64) {
	if i == j || c.m == nil {
		return
	}
	if !dynamo.Finite(v) {
		return
	}
	c.m.SetSym(i, j, dynamo.Clamp(v, 0, 1))
}

// Snapshot returns an independent copy of the matrix.
func (c *Coupling) Snapshot() *mat.SymDense {
	if c.m == nil {
		return nil
	}
	s := mat.NewSymDense(c.n, nil)
	s.CopySym(c.m)
	return s
}

// SetBase resets every off-diagonal entry to v.
func (c *Coupling) SetBase(v float64) {
	c.base = dynamo.Clamp(v, 0, 1)
	for i := 0; i < c.n; i++ {
		for j := i + 1; j < c.n; j++ {
			c.m.SetSym(i, j, c.base)
		}
	}
}

func (c *Coupling) Base() float64 { return c.base }
