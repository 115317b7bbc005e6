package integrators

import "github.com/san-kum/choreo/internal/dynamo"

// RK4 is the classic fourth-order Runge-Kutta stepper. Stage buffers are
// reused between calls of the same dimension.
type RK4 struct {
	k       [4]dynamo.Vector
	scratch dynamo.Vector
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensure(n int) {
	if len(r.scratch) == n {
		return
	}
	for i := range r.k {
		r.k[i] = make(dynamo.Vector, n)
	}
	r.scratch = make(dynamo.Vector, n)
}

func (r *RK4) stage(sys System, x, u dynamo.Vector, t float64, from dynamo.Vector, h float64, into int) {
	for i := range x {
		r.scratch[i] = x[i] + h*from[i]
	}
	copy(r.k[into], sys.Derive(r.scratch, u, t))
}

func (r *RK4) Step(sys System, x, u dynamo.Vector, t, dt float64) dynamo.Vector {
	n := len(x)
	r.ensure(n)

	copy(r.k[0], sys.Derive(x, u, t))
	r.stage(sys, x, u, t+dt/2, r.k[0], dt/2, 1)
	r.stage(sys, x, u, t+dt/2, r.k[1], dt/2, 2)
	r.stage(sys, x, u, t+dt, r.k[2], dt, 3)

	next := make(dynamo.Vector, n)
	for i := 0; i < n; i++ {
		next[i] = x[i] + dt/6*(r.k[0][i]+2*r.k[1][i]+2*r.k[2][i]+r.k[3][i])
	}
	return next
}
