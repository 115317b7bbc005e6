package planner

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/choreo/internal/dynamo"
)

// MaxCells caps the size of a potential grid.
const MaxCells = 4 << 20

// Bounds is an axis-aligned workspace box.
type Bounds struct {
	Min r3.Vec
	Max r3.Vec
}

func (b Bounds) Contains(p r3.Vec) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

func (b Bounds) Size() r3.Vec { return r3.Sub(b.Max, b.Min) }

func (b Bounds) Diagonal() float64 { return r3.Norm(b.Size()) }

func (b Bounds) Validate() error {
	s := b.Size()
	for _, v := range []float64{s.X, s.Y, s.Z} {
		if !dynamo.Finite(v) || v < 0 {
			return &dynamo.ConfigurationError{Param: "bounds", Value: v, Reason: "max must not be below min"}
		}
	}
	return nil
}

// Grid is a 3D scalar field sampled on a regular lattice starting at Origin.
type Grid struct {
	Origin     r3.Vec
	Resolution float64
	NX, NY, NZ int

	data []float64
}

// NewGrid covers b at the given resolution with every cell set to fill.
func NewGrid(b Bounds, res, fill float64) (*Grid, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if !(res > 0) || !dynamo.Finite(res) {
		return nil, dynamo.RangeError("pathRes", res, 0, math.Inf(1))
	}
	s := b.Size()
	g := &Grid{
		Origin:     b.Min,
		Resolution: res,
		NX:         int(math.Ceil(s.X/res)) + 1,
		NY:         int(math.Ceil(s.Y/res)) + 1,
		NZ:         int(math.Ceil(s.Z/res)) + 1,
	}
	cells := g.NX * g.NY * g.NZ
	if cells > MaxCells {
		return nil, &dynamo.ConfigurationError{
			Param:  "pathRes",
			Value:  res,
			Reason: "grid exceeds maximum cell count",
		}
	}
	g.data = make([]float64, cells)
	g.Fill(fill)
	return g, nil
}

func (g *Grid) Len() int { return len(g.data) }

func (g *Grid) InBounds(i, j, k int) bool {
	return i >= 0 && i < g.NX && j >= 0 && j < g.NY && k >= 0 && k < g.NZ
}

func (g *Grid) index(i, j, k int) int {
	return (k*g.NY+j)*g.NX + i
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// At reads cell (i,j,k). Indices outside the grid read the nearest edge
// cell, which gives the diffusion stencil a zero-flux boundary.
func (g *Grid) At(i, j, k int) float64 {
	return g.data[g.index(clampIndex(i, g.NX), clampIndex(j, g.NY), clampIndex(k, g.NZ))]
}

// Set writes cell (i,j,k) and reports whether it was inside the grid.
func (g *Grid) Set(i, j, k int, v float64) bool {
	if !g.InBounds(i, j, k) {
		return false
	}
	g.data[g.index(i, j, k)] = v
	return true
}

func (g *Grid) Fill(v float64) {
	for i := range g.data {
		g.data[i] = v
	}
}

// World returns the position of cell (i,j,k).
func (g *Grid) World(i, j, k int) r3.Vec {
	return r3.Add(g.Origin, r3.Vec{
		X: float64(i) * g.Resolution,
		Y: float64(j) * g.Resolution,
		Z: float64(k) * g.Resolution,
	})
}

// Sample interpolates trilinearly at p. Points outside the grid are clamped
// to its surface.
func (g *Grid) Sample(p r3.Vec) float64 {
	u := r3.Scale(1/g.Resolution, r3.Sub(p, g.Origin))
	i0, fx := split(u.X, g.NX)
	j0, fy := split(u.Y, g.NY)
	k0, fz := split(u.Z, g.NZ)

	c000 := g.At(i0, j0, k0)
	c100 := g.At(i0+1, j0, k0)
	c010 := g.At(i0, j0+1, k0)
	c110 := g.At(i0+1, j0+1, k0)
	c001 := g.At(i0, j0, k0+1)
	c101 := g.At(i0+1, j0, k0+1)
	c011 := g.At(i0, j0+1, k0+1)
	c111 := g.At(i0+1, j0+1, k0+1)

	c00 := c000*(1-fx) + c100*fx
	c10 := c010*(1-fx) + c110*fx
	c01 := c001*(1-fx) + c101*fx
	c11 := c011*(1-fx) + c111*fx
	c0 := c00*(1-fy) + c10*fy
	c1 := c01*(1-fy) + c11*fy
	return c0*(1-fz) + c1*fz
}

// split clamps a continuous index into [0, n-1] and returns its cell and
// fractional part.
func split(u float64, n int) (int, float64) {
	if !dynamo.Finite(u) || u <= 0 {
		return 0, 0
	}
	maxU := float64(n - 1)
	if u >= maxU {
		return n - 1, 0
	}
	i := int(math.Floor(u))
	return i, u - float64(i)
}
