package planner

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/choreo/internal/dynamo"
)

// Obstacle is a spherical repulsive source.
type Obstacle struct {
	Center   r3.Vec
	Radius   float64
	Strength float64
}

// influence is the distance at which an obstacle stops repelling.
func (o Obstacle) influence() float64 { return 2 * o.Radius }

func (o Obstacle) potential(p r3.Vec) float64 {
	reach := o.influence()
	if reach <= 0 {
		return 0
	}
	d := r3.Norm(r3.Sub(p, o.Center))
	if d >= reach {
		return 0
	}
	f := (reach - d) / reach
	return o.Strength * f * f
}

// AddObstacle registers a repulsive source for subsequent field updates.
func (p *Planner) AddObstacle(o Obstacle) error {
	if !(o.Radius > 0) || !dynamo.Finite(o.Radius) {
		return dynamo.RangeError("obstacle.radius", o.Radius, 0, math.Inf(1))
	}
	if o.Strength < 0 || !dynamo.Finite(o.Strength) {
		return dynamo.RangeError("obstacle.strength", o.Strength, 0, math.Inf(1))
	}
	p.obstacles = append(p.obstacles, o)
	return nil
}

func (p *Planner) ClearObstacles() { p.obstacles = p.obstacles[:0] }

func (p *Planner) Obstacles() []Obstacle {
	return append([]Obstacle(nil), p.obstacles...)
}

// UpdatePotentialField rebuilds the forcing term for goal and relaxes the
// field toward it with a fixed number of explicit diffusion iterations.
func (p *Planner) UpdatePotentialField(goal r3.Vec) error {
	if p.field == nil {
		return dynamo.ErrFieldNotInitialized
	}
	p.goal = goal
	p.buildSource(goal)

	degenerate := 0
	for it := 0; it < p.cfg.DiffusionIterations; it++ {
		degenerate += p.relax()
	}
	p.fieldVersion++
	if degenerate > 0 {
		p.logger.Warn("non-finite potential cells reset to source",
			zap.Int("cells", degenerate))
	}
	return nil
}

// buildSource writes the attractive cone toward goal plus every obstacle's
// repulsion into the source grid.
func (p *Planner) buildSource(goal r3.Vec) {
	g := p.source
	diag := p.bounds.Diagonal()
	if diag == 0 {
		diag = 1
	}
	for k := 0; k < g.NZ; k++ {
		for j := 0; j < g.NY; j++ {
			for i := 0; i < g.NX; i++ {
				w := g.World(i, j, k)
				v := p.cfg.GoalWeight * r3.Norm(r3.Sub(w, goal)) / diag
				for _, o := range p.obstacles {
					v += o.potential(w)
				}
				g.Set(i, j, k, v)
			}
		}
	}
}

// relax performs one step φ += D·∇²φ − λ(φ − S) and returns how many cells
// had to be reset because they went non-finite.
func (p *Planner) relax() int {
	f, s, next := p.field, p.source, p.scratch
	d, decay := p.cfg.Diffusion, p.cfg.Decay
	bad := 0
	for k := 0; k < f.NZ; k++ {
		for j := 0; j < f.NY; j++ {
			for i := 0; i < f.NX; i++ {
				c := f.At(i, j, k)
				lap := f.At(i+1, j, k) + f.At(i-1, j, k) +
					f.At(i, j+1, k) + f.At(i, j-1, k) +
					f.At(i, j, k+1) + f.At(i, j, k-1) - 6*c
				src := s.At(i, j, k)
				v := c + d*lap - decay*(c-src)
				if !dynamo.Finite(v) {
					v = src
					bad++
				}
				next.Set(i, j, k, v)
			}
		}
	}
	p.field, p.scratch = next, f
	return bad
}

// PotentialAt samples the relaxed field at x.
func (p *Planner) PotentialAt(x r3.Vec) (float64, error) {
	if p.field == nil {
		return 0, dynamo.ErrFieldNotInitialized
	}
	return p.field.Sample(x), nil
}

// GradientAt is the central-difference gradient of the field at x with a
// spacing of one cell.
func (p *Planner) GradientAt(x r3.Vec) (r3.Vec, error) {
	if p.field == nil {
		return r3.Vec{}, dynamo.ErrFieldNotInitialized
	}
	return p.gradient(x), nil
}

func (p *Planner) gradient(x r3.Vec) r3.Vec {
	h := p.field.Resolution
	ax := func(d r3.Vec) float64 {
		return (p.field.Sample(r3.Add(x, d)) - p.field.Sample(r3.Sub(x, d))) / (2 * h)
	}
	return r3.Vec{
		X: ax(r3.Vec{X: h}),
		Y: ax(r3.Vec{Y: h}),
		Z: ax(r3.Vec{Z: h}),
	}
}

// unit normalizes v, reporting false for vectors too short to carry a
// direction.
func unit(v r3.Vec) (r3.Vec, bool) {
	n := r3.Norm(v)
	if !(n > 1e-12) || !dynamo.Finite(n) {
		return r3.Vec{}, false
	}
	return r3.Scale(1/n, v), true
}
