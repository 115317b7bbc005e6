// Package integrators advances first-order systems dx/dt = f(x, u, t).
package integrators

import (
	"fmt"

	"github.com/san-kum/choreo/internal/dynamo"
)

type System interface {
	Derive(x, u dynamo.Vector, t float64) dynamo.Vector
}

type Integrator interface {
	Step(sys System, x, u dynamo.Vector, t, dt float64) dynamo.Vector
}

// New returns the integrator registered under name ("rk4" or "euler").
func New(name string) (Integrator, error) {
	switch name {
	case "rk4", "":
		return NewRK4(), nil
	case "euler":
		return NewEuler(), nil
	}
	return nil, fmt.Errorf("%w: unknown integrator %q", dynamo.ErrConfiguration, name)
}

func Names() []string { return []string{"euler", "rk4"} }
