package integrators

import "github.com/san-kum/choreo/internal/dynamo"

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(sys System, x, u dynamo.Vector, t, dt float64) dynamo.Vector {
	dx := sys.Derive(x, u, t)
	next := make(dynamo.Vector, len(x))
	for i := range x {
		next[i] = x[i] + dt*dx[i]
	}
	return next
}
