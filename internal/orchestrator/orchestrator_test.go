package orchestrator_test

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/choreo/internal/config"
	"github.com/san-kum/choreo/internal/coord"
	"github.com/san-kum/choreo/internal/dynamo"
	"github.com/san-kum/choreo/internal/integrators"
	"github.com/san-kum/choreo/internal/orchestrator"
	"github.com/san-kum/choreo/internal/planner"
	"github.com/san-kum/choreo/internal/sim"
	"github.com/san-kum/choreo/internal/trajectory"
)

type write struct {
	id       string
	controls dynamo.Vector
}

type fakePhysics struct {
	states    map[string]coord.AgentState
	writes    []write
	failState map[string]bool
	failWrite map[string]bool
}

func newFakePhysics() *fakePhysics {
	return &fakePhysics{
		states:    make(map[string]coord.AgentState),
		failState: make(map[string]bool),
		failWrite: make(map[string]bool),
	}
}

func (f *fakePhysics) AgentState(id string) (coord.AgentState, error) {
	if f.failState[id] {
		return nil, fmt.Errorf("state of %s unavailable", id)
	}
	s, ok := f.states[id]
	if !ok {
		return nil, dynamo.ErrUnknownAgent
	}
	return s, nil
}

func (f *fakePhysics) SetRobotControls(id string, c dynamo.Vector) error {
	if f.failWrite[id] {
		return errors.New("actuator offline")
	}
	f.writes = append(f.writes, write{id: id, controls: c.Clone()})
	return nil
}

func (f *fakePhysics) lastWrite(id string) dynamo.Vector {
	for i := len(f.writes) - 1; i >= 0; i-- {
		if f.writes[i].id == id {
			return f.writes[i].controls
		}
	}
	return nil
}

// ramp is a linear trajectory sampled every 10 ms.
func ramp(dim, n int, slope float64) trajectory.Sequence {
	seq := make(trajectory.Sequence, n)
	for i := range seq {
		v := make(dynamo.Vector, dim)
		for j := range v {
			v[j] = slope * float64(i) * 0.01 * float64(j+1)
		}
		seq[i] = trajectory.Frame{Time: float64(i) * 0.01, Targets: v}
	}
	return seq
}

func quietOptions(stages config.StageConfig) orchestrator.Options {
	opts := orchestrator.DefaultOptions()
	opts.Params.Sigma = 0
	opts.Stages = stages
	opts.PeriodicReplan = false
	return opts
}

var _ = Describe("Orchestrator", func() {
	const dt = 0.01

	var (
		phys *fakePhysics
		orch *orchestrator.Orchestrator
		seqA trajectory.Sequence
		seqB trajectory.Sequence
	)

	build := func(opts orchestrator.Options) {
		var err error
		orch, err = orchestrator.New(opts, phys, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		seqA, seqB = ramp(2, 400, 1), ramp(3, 400, -1)
		_, err = orch.AddAgent(orchestrator.AgentSpec{ID: "a", Kind: config.KindHand, Dim: 2, Frequency: 2, Trajectory: seqA})
		Expect(err).NotTo(HaveOccurred())
		_, err = orch.AddAgent(orchestrator.AgentSpec{ID: "b", Kind: config.KindQuadruped, Dim: 3, Frequency: 2.1, Navigates: true, Trajectory: seqB})
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		phys = newFakePhysics()
		phys.states["a"] = coord.Hand{Fingers: []float64{0.1, 0.2}}
		phys.states["b"] = coord.Quadruped{Legs: []float64{0.3, 0.1, 0.2}, Position: r3.Vec{X: -0.5, Y: -0.5, Z: 0.1}}
	})

	Describe("registration", func() {
		BeforeEach(func() { build(quietOptions(config.StageConfig{})) })

		It("assigns control ranges in registration order", func() {
			a, _ := orch.Agent("a")
			b, _ := orch.Agent("b")
			Expect(a.ControlOffset).To(Equal(0))
			Expect(a.ControlDim).To(Equal(2))
			Expect(b.ControlOffset).To(Equal(2))
			Expect(b.ControlDim).To(Equal(6))
		})

		It("rejects duplicates and mismatched trajectories", func() {
			_, err := orch.AddAgent(orchestrator.AgentSpec{ID: "a", Dim: 2, Trajectory: seqA})
			Expect(errors.Is(err, dynamo.ErrConfiguration)).To(BeTrue())

			_, err = orch.AddAgent(orchestrator.AgentSpec{ID: "c", Dim: 4, Trajectory: seqA})
			Expect(errors.Is(err, dynamo.ErrDimensionMismatch)).To(BeTrue())

			_, err = orch.AddAgent(orchestrator.AgentSpec{ID: "d", Dim: 2})
			Expect(errors.Is(err, dynamo.ErrConfiguration)).To(BeTrue())
		})
	})

	Describe("write ordering", func() {
		BeforeEach(func() {
			build(quietOptions(config.StageConfig{Filter: true, Coordination: true, Sync: true, Expression: true}))
		})

		It("writes every agent exactly once per tick in registration order", func() {
			for i := 0; i < 20; i++ {
				orch.Tick(float64(i)*dt, dt)
			}
			Expect(phys.writes).To(HaveLen(40))
			for i, w := range phys.writes {
				if i%2 == 0 {
					Expect(w.id).To(Equal("a"))
					Expect(w.controls).To(HaveLen(2))
				} else {
					Expect(w.id).To(Equal("b"))
					Expect(w.controls).To(HaveLen(6))
				}
				Expect(w.controls.IsValid()).To(BeTrue())
			}
			Expect(orch.Errors()).To(BeEmpty())
			Expect(orch.Ticks()).To(Equal(20))
		})

		It("holds a navigating agent at its current position without a plan", func() {
			orch.Tick(0, dt)
			got := phys.lastWrite("b")
			Expect(got[3:]).To(Equal(dynamo.Vector{-0.5, -0.5, 0.1}))
		})
	})

	Describe("stage bypass", func() {
		It("passes raw frames through when every stage is disabled", func() {
			build(quietOptions(config.StageConfig{}))
			for i := 0; i < 10; i++ {
				a, _ := orch.Agent("a")
				want, ok := trajectory.GetControlFrame(seqA, a.Clock())
				Expect(ok).To(BeTrue())
				orch.Tick(float64(i)*dt, dt)
				Expect(phys.lastWrite("a")).To(Equal(want.Controls))
				Expect(a.Rate()).To(Equal(1.0))
			}
		})

		It("keeps filter history while the filter is bypassed", func() {
			build(quietOptions(config.StageConfig{Filter: true}))
			for i := 0; i < 8; i++ {
				orch.Tick(float64(i)*dt, dt)
			}
			a, _ := orch.Agent("a")
			Expect(a.Filter().HistoryLen()).To(Equal(8))

			Expect(orch.Disable("a", orchestrator.StageFilter)).To(Succeed())
			for i := 8; i < 12; i++ {
				orch.Tick(float64(i)*dt, dt)
			}
			Expect(a.Filter().HistoryLen()).To(Equal(8))
			Expect(a.Enabled(orchestrator.StageFilter)).To(BeFalse())

			Expect(orch.Enable("a", orchestrator.StageFilter)).To(Succeed())
			Expect(a.Filter().HistoryLen()).To(Equal(8))

			Expect(orch.ResetAgent("a")).To(Succeed())
			Expect(a.Filter().HistoryLen()).To(Equal(0))
			Expect(a.Clock()).To(Equal(0.0))
		})

		It("rejects unknown stages and agents", func() {
			build(quietOptions(config.StageConfig{}))
			Expect(errors.Is(orch.Disable("zz", orchestrator.StageFilter), dynamo.ErrUnknownAgent)).To(BeTrue())
			Expect(errors.Is(orch.SetStage("warp", true), dynamo.ErrConfiguration)).To(BeTrue())
		})
	})

	Describe("stage failures", func() {
		var faultAgent string

		BeforeEach(func() {
			faultAgent = "a"
		})

		It("falls back to raw controls for the failing agent only", func() {
			opts := quietOptions(config.StageConfig{Filter: true})
			opts.Fault = func(stage orchestrator.Stage, id string) error {
				if stage == orchestrator.StageFilter && id == faultAgent {
					return errors.New("injected")
				}
				return nil
			}
			build(opts)

			var all []*dynamo.StageError
			for i := 0; i < 5; i++ {
				a, _ := orch.Agent("a")
				want, _ := trajectory.GetControlFrame(seqA, a.Clock())
				all = append(all, orch.Tick(float64(i)*dt, dt)...)
				Expect(phys.lastWrite("a")).To(Equal(want.Controls))
			}

			Expect(all).To(HaveLen(5))
			for _, se := range all {
				Expect(se.Stage).To(Equal("filter"))
				Expect(se.Agent).To(Equal("a"))
			}
			Expect(orch.Telemetry().Snapshot().StageErrors).To(Equal(5))

			b, _ := orch.Agent("b")
			raw, _ := trajectory.GetControlFrame(seqB, b.Clock()-dt)
			Expect(phys.lastWrite("b")[:3]).NotTo(Equal(raw.Controls))
		})

		It("recovers from a panicking stage and keeps ticking", func() {
			opts := quietOptions(config.StageConfig{Filter: true, Sync: true, Expression: true})
			opts.Fault = func(stage orchestrator.Stage, id string) error {
				if stage == orchestrator.StageSync && id == "b" {
					panic("synchronizer exploded")
				}
				return nil
			}
			build(opts)

			var errs []*dynamo.StageError
			Expect(func() {
				for i := 0; i < 3; i++ {
					errs = append(errs, orch.Tick(float64(i)*dt, dt)...)
				}
			}).NotTo(Panic())
			Expect(errs).To(HaveLen(3))
			Expect(errs[0].Stage).To(Equal("sync"))
			Expect(errs[0].Error()).To(ContainSubstring("synchronizer exploded"))
			Expect(phys.writes).To(HaveLen(6))

			b, _ := orch.Agent("b")
			Expect(b.Rate()).To(Equal(1.0))
		})

		It("records a write failure without stopping other agents", func() {
			build(quietOptions(config.StageConfig{}))
			phys.failWrite["a"] = true
			errs := orch.Tick(0, dt)
			Expect(errs).To(HaveLen(1))
			Expect(errs[0].Stage).To(Equal("write"))
			Expect(phys.writes).To(HaveLen(1))
			Expect(phys.writes[0].id).To(Equal("b"))
		})

		It("keeps only the most recent errors", func() {
			opts := quietOptions(config.StageConfig{Filter: true})
			opts.Fault = func(orchestrator.Stage, string) error { return errors.New("always") }
			build(opts)
			for i := 0; i < orchestrator.MaxRecordedErrors; i++ {
				orch.Tick(float64(i)*dt, dt)
			}
			recorded := orch.Errors()
			Expect(recorded).To(HaveLen(orchestrator.MaxRecordedErrors))
			Expect(recorded[len(recorded)-1].Tick).To(Equal(orchestrator.MaxRecordedErrors - 1))
		})
	})

	Describe("replanning", func() {
		BeforeEach(func() {
			opts := quietOptions(config.StageConfig{Planning: true})
			opts.ReplanInterval = 0.5
			build(opts)
		})

		It("computes a plan on request and steers the navigating agent", func() {
			start := r3.Vec{X: -0.5, Y: -0.5, Z: 0.1}
			orch.RequestReplan(start, r3.Vec{X: 0.8, Y: 0.6, Z: 0.1})
			Expect(orch.Tick(0, dt)).To(BeEmpty())

			plan, ok := orch.Plan()
			Expect(ok).To(BeTrue())
			Expect(plan.Waypoints).NotTo(BeEmpty())
			wp, _ := plan.At(0)
			Expect(phys.lastWrite("b")[3:]).To(Equal(dynamo.Vector{wp.X, wp.Y, wp.Z}))
			Expect(orch.Planner().FieldVersion()).To(Equal(1))
		})

		It("rate-limits requests to the replan interval", func() {
			goal := r3.Vec{X: 0.8, Y: 0.6, Z: 0.1}
			orch.RequestReplan(r3.Vec{X: -0.5, Y: -0.5, Z: 0.1}, goal)
			orch.Tick(0, dt)
			orch.RequestReplan(r3.Vec{X: -0.4, Y: -0.5, Z: 0.1}, goal)
			for i := 1; i < 50; i++ {
				orch.Tick(float64(i)*dt, dt)
			}
			Expect(orch.Planner().FieldVersion()).To(Equal(1))
			orch.Tick(0.5, dt)
			Expect(orch.Planner().FieldVersion()).To(Equal(2))
		})

		It("reports planning failures as stage errors", func() {
			opts := quietOptions(config.StageConfig{Planning: true})
			opts.Fault = func(stage orchestrator.Stage, _ string) error {
				if stage == orchestrator.StagePlanning {
					return dynamo.ErrUnreachableGoal
				}
				return nil
			}
			build(opts)
			orch.RequestReplan(r3.Vec{}, r3.Vec{X: 0.5})
			errs := orch.Tick(0, dt)
			Expect(errs).To(HaveLen(1))
			Expect(errors.Is(errs[0], dynamo.ErrUnreachableGoal)).To(BeTrue())
			_, ok := orch.Plan()
			Expect(ok).To(BeFalse())
			Expect(phys.writes).To(HaveLen(2))
		})
	})

	Describe("parameters", func() {
		BeforeEach(func() {
			build(quietOptions(config.StageConfig{Filter: true, Expression: true}))
		})

		It("forwards filter and synchronizer parameters to every agent", func() {
			Expect(orch.SetParam("window", 9)).To(Succeed())
			Expect(orch.SetParam("Kp", 1.2)).To(Succeed())
			for _, a := range orch.Agents() {
				Expect(a.Filter().GetParams()["window"]).To(Equal(9.0))
				Expect(a.Synchronizer().Kp).To(Equal(1.2))
			}
			Expect(orch.GetParams()["window"]).To(Equal(9.0))
		})

		It("rejects out-of-range values without side effects", func() {
			err := orch.SetParam("gain", 1.5)
			var ce *dynamo.ConfigurationError
			Expect(errors.As(err, &ce)).To(BeTrue())
			Expect(ce.Param).To(Equal("gain"))
			Expect(orch.GetParams()["gain"]).To(Equal(0.9))

			Expect(errors.Is(orch.SetParam("bogus", 1), dynamo.ErrUnknownParam)).To(BeTrue())
		})

		It("re-enhances sequences when expressive parameters change", func() {
			a, _ := orch.Agent("a")
			before := a.Enhanced().Clone()
			Expect(orch.SetParam("velscale", 1.4)).To(Succeed())
			Expect(a.Enhanced()).NotTo(Equal(before))
			Expect(a.Enhanced()).To(HaveLen(len(before)))
		})
	})
})

var _ = Describe("Orchestrator on the kinematic stand-in", func() {
	It("runs the default pipeline without stage errors", func() {
		integ, err := integrators.New("rk4")
		Expect(err).NotTo(HaveOccurred())
		phys, err := sim.NewKinematic(0.05, integ)
		Expect(err).NotTo(HaveOccurred())

		cfg := config.DefaultConfig()
		opts := orchestrator.OptionsFromConfig(cfg)
		orch, err := orchestrator.New(opts, phys, nil, nil)
		Expect(err).NotTo(HaveOccurred())

		for i, ac := range cfg.Agents {
			seq, err := trajectory.Synthetic(ac.Trajectory, ac.Dim, 4, 100, ac.Frequency, int64(i))
			Expect(err).NotTo(HaveOccurred())
			pos := r3.Vec{X: -0.6, Y: -0.6, Z: 0.1}
			Expect(phys.AddBody(ac.ID, ac.Kind, ac.Dim, ac.Navigates, pos)).To(Succeed())
			a, err := orch.AddAgent(orchestrator.AgentSpec{
				ID: ac.ID, Kind: ac.Kind, Dim: ac.Dim, Frequency: ac.Frequency,
				Navigates: ac.Navigates, Loop: true, Trajectory: seq,
			})
			Expect(err).NotTo(HaveOccurred())

			lo, hi, err := phys.ControlRange(ac.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(lo).To(Equal(a.ControlOffset))
			Expect(hi - lo).To(Equal(a.ControlDim))
		}

		const dt = 0.002
		for i := 0; i < 1000; i++ {
			t := float64(i) * dt
			Expect(orch.Tick(t, dt)).To(BeEmpty())
			phys.Step(t, dt)
		}
		for _, v := range phys.Buffer() {
			Expect(dynamo.Finite(v)).To(BeTrue())
		}
		_, ok := orch.Plan()
		Expect(ok).To(BeTrue())
		snap := orch.Telemetry().Snapshot()
		Expect(snap.StageErrors).To(Equal(0))
		Expect(planner.Bounds{Min: r3.Vec{X: -1, Y: -1}, Max: r3.Vec{X: 1, Y: 1, Z: 0.5}}.Contains(
			r3.Vec{X: phys.Buffer()[len(phys.Buffer())-3], Y: phys.Buffer()[len(phys.Buffer())-2], Z: phys.Buffer()[len(phys.Buffer())-1]},
		)).To(BeTrue())
	})
})
