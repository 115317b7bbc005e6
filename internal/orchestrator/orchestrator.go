// Package orchestrator composes the enhancement stages into one per-tick
// control pass: read frames and agent state, run filter, coordinator,
// synchronizer and expression in that order, merge the planned path and
// write controls to physics. A failing stage never stops the loop; the
// affected agent falls back to its raw controls for that tick.
package orchestrator

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/choreo/internal/config"
	"github.com/san-kum/choreo/internal/coord"
	"github.com/san-kum/choreo/internal/dynamo"
	"github.com/san-kum/choreo/internal/expressive"
	"github.com/san-kum/choreo/internal/filter"
	"github.com/san-kum/choreo/internal/metrics"
	"github.com/san-kum/choreo/internal/planner"
	"github.com/san-kum/choreo/internal/pll"
)

// Physics is the collaborator that owns body state and actuators.
type Physics interface {
	AgentState(agentID string) (coord.AgentState, error)
	SetRobotControls(agentID string, controls dynamo.Vector) error
}

// MaxRecordedErrors bounds the in-memory stage error log.
const MaxRecordedErrors = 256

type Orchestrator struct {
	opts      Options
	physics   Physics
	telemetry *metrics.Telemetry
	logger    *zap.Logger

	agents     []*Agent
	byID       map[string]*Agent
	nextOffset int

	engine      *expressive.Engine
	coordinator *coord.Coordinator
	planner     *planner.Planner
	trigger     *planner.Trigger

	plan      planner.Plan
	hasPlan   bool
	planStart float64
	pending   *replanRequest

	tick   int
	errors []*dynamo.StageError
}

type replanRequest struct {
	start, goal r3.Vec
}

func New(opts Options, physics Physics, telemetry *metrics.Telemetry, logger *zap.Logger) (*Orchestrator, error) {
	if physics == nil {
		return nil, fmt.Errorf("%w: nil physics", dynamo.ErrConfiguration)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if telemetry == nil {
		telemetry = metrics.NewTelemetry(opts.TelemetryWindow)
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if opts.CoordGain == 0 {
		opts.CoordGain = DefaultCoordGain
	}

	ecfg := expressive.DefaultConfig()
	ecfg.Rubato, ecfg.VelScale = opts.Params.Rubato, opts.Params.VelScale
	engine, err := expressive.New(ecfg)
	if err != nil {
		return nil, err
	}

	cc := opts.Coordinator
	if cc == (coord.Config{}) {
		cc = coord.DefaultConfig()
	}
	cc.Coupling, cc.Adapt, cc.Horizon = opts.Params.Coupling, opts.Params.Adapt, opts.Params.Horizon
	coordinator, err := coord.New(cc, logger.Named("coord"))
	if err != nil {
		return nil, err
	}

	pc := opts.Planner
	if pc == (planner.Config{}) {
		pc = planner.DefaultConfig()
	}
	pc.Resolution, pc.EnergyWeight = opts.Params.PathRes, opts.Params.EWeight
	pl, err := planner.New(pc, logger.Named("planner"))
	if err != nil {
		return nil, err
	}
	for _, ob := range opts.Obstacles {
		if err := pl.AddObstacle(ob); err != nil {
			return nil, err
		}
	}

	interval := opts.ReplanInterval
	if interval <= 0 {
		interval = config.DefaultReplanInterval
	}

	return &Orchestrator{
		opts:        opts,
		physics:     physics,
		telemetry:   telemetry,
		logger:      logger,
		byID:        make(map[string]*Agent),
		engine:      engine,
		coordinator: coordinator,
		planner:     pl,
		trigger:     planner.NewTrigger(interval),
	}, nil
}

// AddAgent registers an agent, builds its filter and synchronizer and
// pre-computes its expressive sequence. Control ranges are assigned in
// registration order.
func (o *Orchestrator) AddAgent(spec AgentSpec) (*Agent, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("%w: empty agent id", dynamo.ErrConfiguration)
	}
	if _, ok := o.byID[spec.ID]; ok {
		return nil, fmt.Errorf("%w: duplicate agent %q", dynamo.ErrConfiguration, spec.ID)
	}
	if spec.Dim <= 0 {
		return nil, dynamo.RangeError("dim", float64(spec.Dim), 1, 1e9)
	}
	if len(spec.Trajectory) == 0 {
		return nil, fmt.Errorf("%w: agent %q has an empty trajectory", dynamo.ErrConfiguration, spec.ID)
	}
	for i, f := range spec.Trajectory {
		if len(f.Targets) != spec.Dim {
			return nil, fmt.Errorf("%w: agent %q frame %d has %d targets, want %d",
				dynamo.ErrDimensionMismatch, spec.ID, i, len(f.Targets), spec.Dim)
		}
	}
	if !spec.Trajectory.IsSorted() {
		return nil, fmt.Errorf("%w: agent %q trajectory is not time-ordered", dynamo.ErrConfiguration, spec.ID)
	}

	index := int64(len(o.agents))
	fcfg := filter.Config{
		Window: int(o.opts.Params.Window),
		Gain:   o.opts.Params.Gain,
		Sigma:  o.opts.Params.Sigma,
		Seed:   o.opts.Seed + index,
	}
	flt, err := filter.New(fcfg, o.logger.Named("filter").With(zap.String("agent", spec.ID)))
	if err != nil {
		return nil, err
	}

	freq := spec.Frequency
	if freq == 0 {
		freq = o.beat()
	}
	scfg := pll.DefaultConfig()
	scfg.Kp, scfg.Ki, scfg.Frequency = o.opts.Params.Kp, o.opts.Params.Ki, freq
	syn, err := pll.New(scfg)
	if err != nil {
		return nil, err
	}

	dim := spec.Dim
	if spec.Navigates {
		dim += 3
	}
	a := &Agent{
		ID:            spec.ID,
		Kind:          spec.Kind,
		ControlOffset: o.nextOffset,
		ControlDim:    dim,
		Navigates:     spec.Navigates,
		Loop:          spec.Loop,
		Frequency:     freq,
		raw:           spec.Trajectory.Clone(),
		filter:        flt,
		sync:          syn,
		enabled:       o.defaultStages(),
		rate:          1,
		multiplier:    1,
	}
	a.enhanced = o.engine.Enhance(a.raw, o.opts.Seed+index)
	o.nextOffset += dim
	o.agents = append(o.agents, a)
	o.byID[a.ID] = a
	return a, nil
}

func (o *Orchestrator) defaultStages() map[Stage]bool {
	s := o.opts.Stages
	return map[Stage]bool{
		StageFilter:       s.Filter,
		StageCoordination: s.Coordination,
		StageSync:         s.Sync,
		StageExpression:   s.Expression,
		StagePlanning:     s.Planning,
	}
}

func (o *Orchestrator) beat() float64 {
	if o.opts.BeatFrequency > 0 {
		return o.opts.BeatFrequency
	}
	return config.DefaultBeatFrequency
}

// tickAgent is the scratch state of one agent during a tick.
type tickAgent struct {
	*Agent
	base   dynamo.Vector
	cmd    dynamo.Vector
	index  int
	failed bool
}

// Tick runs one control pass at time t and returns the stage failures it
// absorbed. Every agent receives exactly one write per tick.
func (o *Orchestrator) Tick(t, dt float64) []*dynamo.StageError {
	var errs []*dynamo.StageError
	fail := func(stage Stage, agentID string, err error) {
		errs = append(errs, o.record(stage, agentID, err))
	}

	o.maybeReplan(t, fail)

	work := make([]*tickAgent, len(o.agents))
	for i, a := range o.agents {
		ta := &tickAgent{Agent: a}
		work[i] = ta

		st, err := o.physics.AgentState(a.ID)
		if err != nil {
			fail(stageState, a.ID, err)
			a.state = nil
		} else {
			a.state = st
			a.lastPos = st.Pos()
		}

		lk, _ := a.frame()
		ta.base, ta.index = lk.Controls, lk.Index
		ta.cmd = ta.base.Clone()
		a.rate, a.multiplier = 1, 1
	}

	for _, ta := range work {
		if !ta.Enabled(StageFilter) {
			continue
		}
		o.apply(ta, StageFilter, fail, func() (dynamo.Vector, error) {
			return ta.filter.Filter(ta.cmd), nil
		})
	}

	o.coordinate(work, dt, fail)

	master := dynamo.WrapPhase(dynamo.TwoPi * o.beat() * t)
	for _, ta := range work {
		if ta.failed || !ta.Enabled(StageSync) {
			continue
		}
		o.apply(ta, StageSync, fail, func() (dynamo.Vector, error) {
			slave := dynamo.WrapPhase(dynamo.TwoPi * ta.Frequency * ta.clock)
			ta.sync.ComputeAdjustment(master, slave, dt)
			ratio := ta.sync.FrequencyRatio()
			if !dynamo.Finite(ratio) || ratio <= 0 {
				return nil, fmt.Errorf("%w: frequency ratio %v", dynamo.ErrNumericDegeneracy, ratio)
			}
			ta.rate = ratio
			o.telemetry.ObservePhaseError(ta.sync.LastError())
			return ta.cmd, nil
		})
	}

	for _, ta := range work {
		if ta.failed || !ta.Enabled(StageExpression) {
			continue
		}
		o.apply(ta, StageExpression, fail, func() (dynamo.Vector, error) {
			delta := ta.enhanced[ta.index].Targets.Sub(ta.raw[ta.index].Targets)
			return ta.cmd.Add(delta), nil
		})
	}

	for _, ta := range work {
		o.write(ta, t, fail)
		if ta.failed {
			ta.rate, ta.multiplier = 1, 1
		}
		ta.clock += dt * ta.rate * ta.multiplier
	}

	o.tick++
	return errs
}

// apply runs one per-agent stage. A failure reverts the agent to its raw
// controls and skips its remaining stages for this tick.
func (o *Orchestrator) apply(ta *tickAgent, stage Stage, fail func(Stage, string, error), fn func() (dynamo.Vector, error)) {
	var out dynamo.Vector
	err := o.guard(stage, ta.ID, func() error {
		var err error
		out, err = fn()
		if err != nil {
			return err
		}
		if len(out) != len(ta.base) {
			return fmt.Errorf("%w: %s produced %d controls, want %d",
				dynamo.ErrDimensionMismatch, stage, len(out), len(ta.base))
		}
		if !out.IsValid() {
			return fmt.Errorf("%w: %s output", dynamo.ErrNumericDegeneracy, stage)
		}
		return nil
	})
	if err != nil {
		fail(stage, ta.ID, err)
		ta.failed = true
		ta.cmd = ta.base.Clone()
		return
	}
	ta.cmd = out
}

// coordinate runs the coordinator once over every agent whose state could
// be read, then hands each participating agent its rate multiplier.
func (o *Orchestrator) coordinate(work []*tickAgent, dt float64, fail func(Stage, string, error)) {
	var (
		states []coord.AgentState
		owners []*tickAgent
	)
	for _, ta := range work {
		if ta.state == nil || !ta.Enabled(StageCoordination) {
			continue
		}
		states = append(states, ta.state)
		owners = append(owners, ta)
	}
	if len(states) == 0 {
		return
	}

	var adjusted []coord.Adjusted
	err := o.guard(StageCoordination, "", func() error {
		adjusted = o.coordinator.Update(states, dt)
		if len(adjusted) != len(states) {
			return fmt.Errorf("%w: coordinator returned %d states for %d agents",
				dynamo.ErrDimensionMismatch, len(adjusted), len(states))
		}
		return nil
	})
	if err != nil {
		for _, ta := range owners {
			if ta.failed {
				continue
			}
			fail(StageCoordination, ta.ID, err)
			ta.failed = true
			ta.cmd = ta.base.Clone()
		}
		return
	}
	o.telemetry.ObserveEnergy(o.coordinator.Energy())

	for i, ta := range owners {
		if ta.failed {
			continue
		}
		adj := adjusted[i]
		o.apply(ta, StageCoordination, fail, func() (dynamo.Vector, error) {
			ta.multiplier = adj.Multiplier(o.opts.CoordGain)
			return ta.cmd, nil
		})
	}
}

// write appends the navigation target for navigating agents and sends the
// controls to physics.
func (o *Orchestrator) write(ta *tickAgent, t float64, fail func(Stage, string, error)) {
	out := ta.cmd
	if ta.Navigates {
		target := ta.lastPos
		if o.hasPlan && ta.ID == o.planAgent() && ta.Enabled(StagePlanning) {
			if wp, ok := o.plan.At(t - o.planStart); ok {
				target = wp
			}
		}
		out = make(dynamo.Vector, 0, len(ta.cmd)+3)
		out = append(out, ta.cmd...)
		out = append(out, target.X, target.Y, target.Z)
	}

	if err := o.physics.SetRobotControls(ta.ID, out); err != nil {
		fail(stageWrite, ta.ID, err)
		return
	}
	ta.last = out
	if ta.state != nil {
		o.telemetry.ObserveControl(ta.cmd, joints(ta.state))
	}
}

// guard runs fn behind the fault hook and converts a panic into an error.
func (o *Orchestrator) guard(stage Stage, agentID string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", stage, r)
		}
	}()
	if o.opts.Fault != nil {
		if err := o.opts.Fault(stage, agentID); err != nil {
			return err
		}
	}
	return fn()
}

func (o *Orchestrator) record(stage Stage, agentID string, err error) *dynamo.StageError {
	se := &dynamo.StageError{Stage: string(stage), Agent: agentID, Tick: o.tick, Wrapped: err}
	if len(o.errors) >= MaxRecordedErrors {
		copy(o.errors, o.errors[1:])
		o.errors = o.errors[:len(o.errors)-1]
	}
	o.errors = append(o.errors, se)
	o.telemetry.ObserveStageError()
	o.logger.Warn("stage failed, falling back to raw controls",
		zap.String("stage", string(stage)),
		zap.String("agent", agentID),
		zap.Int("tick", o.tick),
		zap.Error(err))
	return se
}

// planAgent is the first navigating agent; it follows the current plan.
func (o *Orchestrator) planAgent() string {
	for _, a := range o.agents {
		if a.Navigates {
			return a.ID
		}
	}
	return ""
}

// RequestReplan queues a plan from start to goal. It runs on the next tick
// the replan trigger allows.
func (o *Orchestrator) RequestReplan(start, goal r3.Vec) {
	o.pending = &replanRequest{start: start, goal: goal}
}

// maybeReplan recomputes the plan before the per-agent stages when a
// request is pending or the periodic interval elapsed.
func (o *Orchestrator) maybeReplan(t float64, fail func(Stage, string, error)) {
	id := o.planAgent()
	req := o.pending
	if req == nil {
		a, ok := o.byID[id]
		if !ok || !o.opts.PeriodicReplan || !a.Enabled(StagePlanning) {
			return
		}
		req = &replanRequest{start: a.lastPos, goal: o.opts.Goal}
		if st, err := o.physics.AgentState(id); err == nil {
			req.start = st.Pos()
		}
	}
	if !o.trigger.Due(t) {
		return
	}
	o.pending = nil

	var plan planner.Plan
	err := o.guard(StagePlanning, id, func() error {
		if !o.planner.Initialized() {
			if err := o.planner.InitializeField(o.opts.Bounds); err != nil {
				return err
			}
		}
		var err error
		plan, err = o.planner.PlanPath(req.start, req.goal, o.robot())
		return err
	})
	if err != nil {
		fail(StagePlanning, id, err)
		return
	}
	o.plan, o.hasPlan, o.planStart = plan, true, t
	o.telemetry.ObservePlan(plan.Efficiency(), plan.Truncated)
}

func (o *Orchestrator) robot() planner.RobotModel {
	if o.opts.Robot != nil {
		return o.opts.Robot
	}
	return planner.ObstacleModel{BodyMass: 12, Speed: 0.5, Obstacles: o.opts.Obstacles}
}

func (o *Orchestrator) lookup(id string) (*Agent, error) {
	a, ok := o.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dynamo.ErrUnknownAgent, id)
	}
	return a, nil
}

// Enable turns stage back on for one agent. Accumulated state is kept; call
// ResetAgent to start fresh.
func (o *Orchestrator) Enable(agentID string, stage Stage) error {
	return o.setAgentStage(agentID, stage, true)
}

// Disable bypasses stage for one agent without discarding its state.
func (o *Orchestrator) Disable(agentID string, stage Stage) error {
	return o.setAgentStage(agentID, stage, false)
}

func (o *Orchestrator) setAgentStage(agentID string, stage Stage, on bool) error {
	if _, ok := ParseStage(string(stage)); !ok {
		return fmt.Errorf("%w: unknown stage %q", dynamo.ErrConfiguration, stage)
	}
	a, err := o.lookup(agentID)
	if err != nil {
		return err
	}
	a.enabled[stage] = on
	return nil
}

// SetStage toggles stage for every agent.
func (o *Orchestrator) SetStage(stage Stage, on bool) error {
	if _, ok := ParseStage(string(stage)); !ok {
		return fmt.Errorf("%w: unknown stage %q", dynamo.ErrConfiguration, stage)
	}
	for _, a := range o.agents {
		a.enabled[stage] = on
	}
	return nil
}

// ResetAgent discards the agent's filter and synchronizer state and rewinds
// its playback clock.
func (o *Orchestrator) ResetAgent(agentID string) error {
	a, err := o.lookup(agentID)
	if err != nil {
		return err
	}
	a.reset()
	return nil
}

func (o *Orchestrator) Agent(id string) (*Agent, bool) {
	a, ok := o.byID[id]
	return a, ok
}

func (o *Orchestrator) Agents() []*Agent { return append([]*Agent(nil), o.agents...) }

// Errors returns the most recent stage failures, oldest first.
func (o *Orchestrator) Errors() []*dynamo.StageError {
	return append([]*dynamo.StageError(nil), o.errors...)
}

func (o *Orchestrator) Telemetry() *metrics.Telemetry { return o.telemetry }

func (o *Orchestrator) Coordinator() *coord.Coordinator { return o.coordinator }

func (o *Orchestrator) Planner() *planner.Planner { return o.planner }

// Bounds is the planning workspace.
func (o *Orchestrator) Bounds() planner.Bounds { return o.opts.Bounds }

// Plan returns the current plan and whether one has been computed.
func (o *Orchestrator) Plan() (planner.Plan, bool) { return o.plan, o.hasPlan }

func (o *Orchestrator) Ticks() int { return o.tick }
