// Package planner implements the energy path planner: a diffused potential
// field over a bounded workspace, descended with momentum to produce timed
// waypoints for a navigating agent.
package planner

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/choreo/internal/dynamo"
)

// RobotModel supplies the physical limits of the agent being planned for.
type RobotModel interface {
	Mass() float64
	MaxVelocity() float64
	IsValidConfiguration(p r3.Vec) bool
}

type Config struct {
	Resolution   float64 // pathRes
	EnergyWeight float64 // eWeight

	DiffusionIterations int
	Diffusion           float64
	Decay               float64
	GoalWeight          float64
	Ambient             float64

	StepSize      float64
	Smoothness    float64
	StepBudget    int
	GoalTolerance float64
	FallbackRings int

	Lookahead        int
	AnticipationGain float64
}

func DefaultConfig() Config {
	return Config{
		Resolution:          0.05,
		EnergyWeight:        0.3,
		DiffusionIterations: 10,
		Diffusion:           0.1,
		Decay:               0.2,
		GoalWeight:          1.0,
		Ambient:             1.0,
		StepSize:            0.02,
		Smoothness:          0.6,
		StepBudget:          2000,
		GoalTolerance:       0.02,
		FallbackRings:       4,
		Lookahead:           5,
		AnticipationGain:    0.2,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Resolution < 0.01 || c.Resolution > 0.1:
		return dynamo.RangeError("pathRes", c.Resolution, 0.01, 0.1)
	case c.EnergyWeight < 0 || c.EnergyWeight > 1:
		return dynamo.RangeError("eWeight", c.EnergyWeight, 0, 1)
	case c.DiffusionIterations < 1:
		return dynamo.RangeError("diffusionIterations", float64(c.DiffusionIterations), 1, math.Inf(1))
	case c.Diffusion < 0 || c.Diffusion > 1.0/6:
		// explicit 3D diffusion is unstable above 1/6
		return dynamo.RangeError("diffusion", c.Diffusion, 0, 1.0/6)
	case c.Decay < 0 || c.Decay > 1:
		return dynamo.RangeError("decay", c.Decay, 0, 1)
	case !(c.StepSize > 0):
		return dynamo.RangeError("stepSize", c.StepSize, 0, math.Inf(1))
	case c.Smoothness < 0 || c.Smoothness >= 1:
		return dynamo.RangeError("smoothness", c.Smoothness, 0, 1)
	case c.StepBudget < 1:
		return dynamo.RangeError("stepBudget", float64(c.StepBudget), 1, math.Inf(1))
	case c.GoalTolerance <= 0:
		return dynamo.RangeError("goalTolerance", c.GoalTolerance, 0, math.Inf(1))
	case c.FallbackRings < 1:
		return dynamo.RangeError("fallbackRings", float64(c.FallbackRings), 1, math.Inf(1))
	case c.Lookahead < 0:
		return dynamo.RangeError("lookahead", float64(c.Lookahead), 0, math.Inf(1))
	}
	return nil
}

// Plan is a timed waypoint path. A Truncated plan stopped short of the goal;
// its waypoints are still individually valid.
type Plan struct {
	Waypoints    []r3.Vec
	Timestamps   []float64
	TotalEnergy  float64
	AvgPotential float64
	Truncated    bool
	Steps        int
}

// Err returns ErrUnreachableGoal for a truncated plan.
func (p Plan) Err() error {
	if p.Truncated {
		return dynamo.ErrUnreachableGoal
	}
	return nil
}

func (p Plan) Duration() float64 {
	if len(p.Timestamps) == 0 {
		return 0
	}
	return p.Timestamps[len(p.Timestamps)-1]
}

// Length is the summed segment length of the path.
func (p Plan) Length() float64 {
	total := 0.0
	for i := 1; i < len(p.Waypoints); i++ {
		total += r3.Norm(r3.Sub(p.Waypoints[i], p.Waypoints[i-1]))
	}
	return total
}

// Efficiency is straight-line distance over path length, in [0, 1].
func (p Plan) Efficiency() float64 {
	n := len(p.Waypoints)
	if n < 2 {
		return 0
	}
	length := p.Length()
	if length == 0 {
		return 0
	}
	return dynamo.Clamp(r3.Norm(r3.Sub(p.Waypoints[n-1], p.Waypoints[0]))/length, 0, 1)
}

// At returns the waypoint in effect at time t since the plan started.
func (p Plan) At(t float64) (r3.Vec, bool) {
	if len(p.Waypoints) == 0 {
		return r3.Vec{}, false
	}
	for i, ts := range p.Timestamps {
		if ts >= t {
			return p.Waypoints[i], true
		}
	}
	return p.Waypoints[len(p.Waypoints)-1], true
}

type Planner struct {
	cfg    Config
	logger *zap.Logger

	bounds    Bounds
	field     *Grid
	source    *Grid
	scratch   *Grid
	obstacles []Obstacle

	goal         r3.Vec
	fieldVersion int
	directions   []r3.Vec
}

func New(cfg Config, logger *zap.Logger) (*Planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{cfg: cfg, logger: logger, directions: sphereDirections()}, nil
}

// InitializeField allocates a uniform field covering b. Calling it again
// discards the previous field.
func (p *Planner) InitializeField(b Bounds) error {
	field, err := NewGrid(b, p.cfg.Resolution, p.cfg.Ambient)
	if err != nil {
		return err
	}
	source, _ := NewGrid(b, p.cfg.Resolution, 0)
	scratch, _ := NewGrid(b, p.cfg.Resolution, 0)
	p.bounds = b
	p.field, p.source, p.scratch = field, source, scratch
	p.fieldVersion = 0
	return nil
}

func (p *Planner) Initialized() bool { return p.field != nil }

func (p *Planner) Bounds() Bounds { return p.bounds }

// FieldVersion counts completed field updates since initialization.
func (p *Planner) FieldVersion() int { return p.fieldVersion }

// Field exposes the relaxed potential grid; nil before InitializeField.
func (p *Planner) Field() *Grid { return p.field }

// PlanPath relaxes the field toward goal and descends it from start. An
// uninitialized field is a configuration error; a start that cannot reach
// the goal within the step budget yields a Truncated plan and a nil error.
func (p *Planner) PlanPath(start, goal r3.Vec, model RobotModel) (Plan, error) {
	if p.field == nil {
		return Plan{}, dynamo.ErrFieldNotInitialized
	}
	if model == nil {
		return Plan{}, fmt.Errorf("%w: nil robot model", dynamo.ErrConfiguration)
	}
	if v := model.MaxVelocity(); !(v > 0) || !dynamo.Finite(v) {
		return Plan{}, dynamo.RangeError("maxVelocity", v, 0, math.Inf(1))
	}
	if m := model.Mass(); m < 0 || !dynamo.Finite(m) {
		return Plan{}, dynamo.RangeError("mass", m, 0, math.Inf(1))
	}
	if err := p.UpdatePotentialField(goal); err != nil {
		return Plan{}, err
	}

	valid := func(x r3.Vec) bool {
		return p.bounds.Contains(x) && model.IsValidConfiguration(x)
	}
	if !valid(start) {
		p.logger.Warn("planning start is not a valid configuration")
		return Plan{Truncated: true}, nil
	}

	path, steps, reached := p.findGradientPath(start, goal, valid)
	plan := Plan{Waypoints: path, Steps: steps, Truncated: !reached}
	p.optimizeTiming(&plan, model)
	p.addAnticipation(&plan, valid)

	pots := make([]float64, len(plan.Waypoints))
	for i, w := range plan.Waypoints {
		pots[i] = p.field.Sample(w)
	}
	plan.AvgPotential = stat.Mean(pots, nil)

	if plan.Truncated {
		p.logger.Warn("path truncated",
			zap.Int("steps", steps),
			zap.Int("waypoints", len(plan.Waypoints)),
			zap.Error(plan.Err()))
	}
	return plan, nil
}

// findGradientPath descends the field with momentum. Invalid steps are
// replaced by the nearest valid sample on spheres of growing radius around
// the rejected point. The search stops after StepBudget steps or when no
// valid alternative exists.
func (p *Planner) findGradientPath(start, goal r3.Vec, valid func(r3.Vec) bool) ([]r3.Vec, int, bool) {
	path := []r3.Vec{start}
	pos := start
	var vel r3.Vec
	step := p.cfg.StepSize

	for n := 0; n < p.cfg.StepBudget; n++ {
		toGoal := r3.Sub(goal, pos)
		dist := r3.Norm(toGoal)
		if dist <= p.cfg.GoalTolerance {
			return path, n, true
		}

		dir, ok := unit(r3.Scale(-1, p.gradient(pos)))
		if !ok {
			if dir, ok = unit(toGoal); !ok {
				return path, n, true
			}
		}
		vel = r3.Add(r3.Scale(p.cfg.Smoothness, vel), r3.Scale((1-p.cfg.Smoothness)*step, dir))
		if r3.Norm(vel) < 1e-9 {
			vel = r3.Scale(step, dir)
		}

		var cand r3.Vec
		if dist <= step {
			cand = goal
		} else {
			cand = r3.Add(pos, vel)
		}

		if !valid(cand) {
			alt, found := p.fallback(pos, cand, valid)
			if !found {
				return path, n + 1, false
			}
			cand = alt
			vel = r3.Sub(cand, pos)
		}
		pos = cand
		path = append(path, pos)
	}
	return path, p.cfg.StepBudget, r3.Norm(r3.Sub(goal, pos)) <= p.cfg.GoalTolerance
}

// fallback samples fixed directions on spheres of radius k·StepSize around
// the rejected candidate and returns the valid sample closest to it that is
// also a real move away from pos.
func (p *Planner) fallback(pos, rejected r3.Vec, valid func(r3.Vec) bool) (r3.Vec, bool) {
	step := p.cfg.StepSize
	for ring := 1; ring <= p.cfg.FallbackRings; ring++ {
		r := float64(ring) * step
		best := r3.Vec{}
		bestD := math.Inf(1)
		for _, d := range p.directions {
			c := r3.Add(rejected, r3.Scale(r, d))
			if r3.Norm(r3.Sub(c, pos)) < step/2 || !valid(c) {
				continue
			}
			if dd := r3.Norm(r3.Sub(c, rejected)); dd < bestD {
				best, bestD = c, dd
			}
		}
		if bestD < math.Inf(1) {
			return best, true
		}
	}
	return r3.Vec{}, false
}

// optimizeTiming assigns segment durations from distance and maxVelocity,
// slowing down where the potential is high, and accumulates an energy
// estimate from velocity and acceleration terms.
func (p *Planner) optimizeTiming(plan *Plan, model RobotModel) {
	wp := plan.Waypoints
	ts := make([]float64, len(wp))
	mass := model.Mass()
	vmax := model.MaxVelocity()
	w := p.cfg.EnergyWeight

	energy := 0.0
	prevV := 0.0
	for i := 1; i < len(wp); i++ {
		seg := r3.Sub(wp[i], wp[i-1])
		d := r3.Norm(seg)
		mid := r3.Scale(0.5, r3.Add(wp[i], wp[i-1]))
		pot := math.Max(0, p.field.Sample(mid))
		v := vmax / (1 + pot)
		dur := d / v
		if dur < 1e-6 {
			dur = 1e-6
		}
		ts[i] = ts[i-1] + dur

		speed := d / dur
		acc := (speed - prevV) / dur
		energy += mass * (w*speed*speed + (1-w)*acc*acc*dur*dur) * dur
		prevV = speed
	}
	plan.Timestamps = ts
	if !dynamo.Finite(energy) {
		energy = 0
	}
	plan.TotalEnergy = energy
}

// addAnticipation nudges each interior waypoint along the descent direction
// found Lookahead waypoints further on. A nudge that lands on an invalid
// configuration is dropped.
func (p *Planner) addAnticipation(plan *Plan, valid func(r3.Vec) bool) {
	wp := plan.Waypoints
	if p.cfg.Lookahead == 0 || p.cfg.AnticipationGain == 0 || len(wp) < 3 {
		return
	}
	mag := p.cfg.AnticipationGain * p.cfg.Resolution
	for i := 1; i < len(wp)-1; i++ {
		ahead := i + p.cfg.Lookahead
		if ahead > len(wp)-1 {
			ahead = len(wp) - 1
		}
		dir, ok := unit(r3.Scale(-1, p.gradient(wp[ahead])))
		if !ok {
			continue
		}
		cand := r3.Add(wp[i], r3.Scale(mag, dir))
		if valid(cand) {
			wp[i] = cand
		}
	}
}

// sphereDirections returns the 26 unit lattice directions in a fixed order.
func sphereDirections() []r3.Vec {
	dirs := make([]r3.Vec, 0, 26)
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				d, _ := unit(r3.Vec{X: float64(dx), Y: float64(dy), Z: float64(dz)})
				dirs = append(dirs, d)
			}
		}
	}
	return dirs
}

// GetParams returns tunable parameters for live adjustment
func (p *Planner) GetParams() map[string]float64 {
	return map[string]float64{
		"pathRes": p.cfg.Resolution,
		"eWeight": p.cfg.EnergyWeight,
	}
}

// SetParam adjusts eWeight immediately. A new pathRes takes effect at the
// next InitializeField.
func (p *Planner) SetParam(name string, value float64) error {
	next := p.cfg
	switch name {
	case "pathRes", "path_res":
		next.Resolution = value
	case "eWeight", "e_weight":
		next.EnergyWeight = value
	default:
		return fmt.Errorf("%w: planner has no %q", dynamo.ErrUnknownParam, name)
	}
	if math.IsNaN(value) {
		return dynamo.RangeError(name, value, 0, 0)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	p.cfg = next
	return nil
}

func (p *Planner) Config() Config { return p.cfg }

// ObstacleModel is a point robot that must stay outside every obstacle's
// radius.
type ObstacleModel struct {
	BodyMass  float64
	Speed     float64
	Obstacles []Obstacle
}

func (m ObstacleModel) Mass() float64        { return m.BodyMass }
func (m ObstacleModel) MaxVelocity() float64 { return m.Speed }

func (m ObstacleModel) IsValidConfiguration(p r3.Vec) bool {
	for _, o := range m.Obstacles {
		if r3.Norm(r3.Sub(p, o.Center)) <= o.Radius {
			return false
		}
	}
	return true
}
