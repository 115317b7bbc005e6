package sim

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/choreo/internal/coord"
	"github.com/san-kum/choreo/internal/dynamo"
	"github.com/san-kum/choreo/internal/integrators"
)

// Kinematic stands in for a physics engine. Each joint and, for navigating
// bodies, each body coordinate tracks its commanded value with first-order
// lag dq/dt = (u - q)/tau. Controls live in one flat buffer where every
// body owns a fixed index range.
type Kinematic struct {
	tau   float64
	integ integrators.Integrator

	bodies map[string]*body
	order  []string
	buffer []float64
}

type body struct {
	id        string
	kind      string
	joints    int
	navigates bool
	offset    int
	state     dynamo.Vector // joints, then X Y Z
}

func (b *body) width() int {
	if b.navigates {
		return b.joints + 3
	}
	return b.joints
}

func NewKinematic(tau float64, integ integrators.Integrator) (*Kinematic, error) {
	if !(tau > 0) {
		return nil, dynamo.RangeError("time_constant", tau, 0, 1e9)
	}
	if integ == nil {
		integ = integrators.NewRK4()
	}
	return &Kinematic{
		tau:    tau,
		integ:  integ,
		bodies: make(map[string]*body),
	}, nil
}

// AddBody registers a body and reserves its control range. Navigating
// bodies also accept a target position after their joints.
func (k *Kinematic) AddBody(id, kind string, joints int, navigates bool, pos r3.Vec) error {
	if _, ok := k.bodies[id]; ok {
		return fmt.Errorf("%w: body %q already registered", dynamo.ErrConfiguration, id)
	}
	if joints <= 0 {
		return dynamo.RangeError("dim", float64(joints), 1, 1e9)
	}
	b := &body{
		id:        id,
		kind:      kind,
		joints:    joints,
		navigates: navigates,
		offset:    len(k.buffer),
		state:     make(dynamo.Vector, joints+3),
	}
	b.state[joints], b.state[joints+1], b.state[joints+2] = pos.X, pos.Y, pos.Z
	k.bodies[id] = b
	k.order = append(k.order, id)

	k.buffer = append(k.buffer, make([]float64, b.width())...)
	copy(k.buffer[b.offset:], b.state[:b.width()])
	return nil
}

func (k *Kinematic) lookup(id string) (*body, error) {
	b, ok := k.bodies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dynamo.ErrUnknownAgent, id)
	}
	return b, nil
}

// ControlRange returns the [lo, hi) slice of the control buffer owned by id.
func (k *Kinematic) ControlRange(id string) (int, int, error) {
	b, err := k.lookup(id)
	if err != nil {
		return 0, 0, err
	}
	return b.offset, b.offset + b.width(), nil
}

// SetRobotControls writes controls into id's range of the buffer.
func (k *Kinematic) SetRobotControls(id string, controls dynamo.Vector) error {
	b, err := k.lookup(id)
	if err != nil {
		return err
	}
	if len(controls) != b.width() {
		return fmt.Errorf("%w: %s expects %d controls, got %d",
			dynamo.ErrDimensionMismatch, id, b.width(), len(controls))
	}
	if !controls.IsValid() {
		return fmt.Errorf("%w: controls for %s", dynamo.ErrNumericDegeneracy, id)
	}
	copy(k.buffer[b.offset:], controls)
	return nil
}

// AgentState snapshots id as a Hand or Quadruped.
func (k *Kinematic) AgentState(id string) (coord.AgentState, error) {
	b, err := k.lookup(id)
	if err != nil {
		return nil, err
	}
	joints := append([]float64(nil), b.state[:b.joints]...)
	pos := r3.Vec{X: b.state[b.joints], Y: b.state[b.joints+1], Z: b.state[b.joints+2]}
	if b.kind == "quadruped" {
		return coord.Quadruped{Legs: joints, Position: pos}, nil
	}
	return coord.Hand{Fingers: joints, Position: pos}, nil
}

// Joints returns the current joint positions of id.
func (k *Kinematic) Joints(id string) (dynamo.Vector, error) {
	b, err := k.lookup(id)
	if err != nil {
		return nil, err
	}
	return b.state[:b.joints].Clone(), nil
}

func (k *Kinematic) Position(id string) (r3.Vec, error) {
	b, err := k.lookup(id)
	if err != nil {
		return r3.Vec{}, err
	}
	return r3.Vec{X: b.state[b.joints], Y: b.state[b.joints+1], Z: b.state[b.joints+2]}, nil
}

func (k *Kinematic) Bodies() []string { return append([]string(nil), k.order...) }

// Buffer returns a copy of the whole control buffer.
func (k *Kinematic) Buffer() []float64 { return append([]float64(nil), k.buffer...) }

// Step integrates every body toward its commanded values.
func (k *Kinematic) Step(t, dt float64) {
	for _, id := range k.order {
		b := k.bodies[id]
		u := make(dynamo.Vector, len(b.state))
		copy(u, b.state)
		copy(u, k.buffer[b.offset:b.offset+b.width()])
		next := k.integ.Step(tracking{tau: k.tau}, b.state, u, t, dt)
		if next.IsValid() {
			b.state = next
		}
	}
}

type tracking struct{ tau float64 }

func (s tracking) Derive(x, u dynamo.Vector, t float64) dynamo.Vector {
	dx := make(dynamo.Vector, len(x))
	for i := range x {
		dx[i] = (u[i] - x[i]) / s.tau
	}
	return dx
}
