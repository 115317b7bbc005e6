package orchestrator

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/choreo/internal/config"
	"github.com/san-kum/choreo/internal/coord"
	"github.com/san-kum/choreo/internal/planner"
)

// DefaultCoordGain scales a coordinator offset into a playback-rate
// multiplier.
const DefaultCoordGain = 0.1

// Stage names one enhancement step of the tick pipeline.
type Stage string

const (
	StageFilter       Stage = "filter"
	StageCoordination Stage = "coordination"
	StageSync         Stage = "sync"
	StageExpression   Stage = "expression"
	StagePlanning     Stage = "planning"

	// stageState and stageWrite are not toggleable; they label failures
	// reading from or writing to the physics collaborator.
	stageState Stage = "state"
	stageWrite Stage = "write"
)

// Stages lists the toggleable stages in pipeline order.
var Stages = []Stage{StageFilter, StageCoordination, StageSync, StageExpression, StagePlanning}

func ParseStage(s string) (Stage, bool) {
	for _, st := range Stages {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// FaultFunc is consulted before each stage runs. A non-nil error, or a
// panic, fails that stage for that agent exactly like an internal failure.
type FaultFunc func(stage Stage, agentID string) error

type Options struct {
	Params        config.Params
	Stages        config.StageConfig
	BeatFrequency float64
	Seed          int64
	CoordGain     float64

	Coordinator coord.Config
	Planner     planner.Config
	Bounds      planner.Bounds
	Goal        r3.Vec
	Obstacles   []planner.Obstacle
	Robot       planner.RobotModel

	ReplanInterval  float64
	PeriodicReplan  bool
	TelemetryWindow int

	Fault FaultFunc
}

func vec(a [3]float64) r3.Vec { return r3.Vec{X: a[0], Y: a[1], Z: a[2]} }

// OptionsFromConfig derives orchestrator options from a loaded config.
func OptionsFromConfig(cfg *config.Config) Options {
	p := cfg.Params

	cc := coord.DefaultConfig()
	cc.Coupling, cc.Adapt, cc.Horizon = p.Coupling, p.Adapt, p.Horizon

	pc := planner.DefaultConfig()
	pc.Resolution, pc.EnergyWeight = p.PathRes, p.EWeight
	if cfg.Planner.StepBudget > 0 {
		pc.StepBudget = cfg.Planner.StepBudget
	}
	if cfg.Planner.StepSize > 0 {
		pc.StepSize = cfg.Planner.StepSize
	}
	if cfg.Planner.Smoothness > 0 {
		pc.Smoothness = cfg.Planner.Smoothness
	}

	obstacles := make([]planner.Obstacle, 0, len(cfg.Planner.Obstacles))
	for _, o := range cfg.Planner.Obstacles {
		obstacles = append(obstacles, planner.Obstacle{Center: vec(o.Center), Radius: o.Radius, Strength: o.Strength})
	}

	return Options{
		Params:        p,
		Stages:        cfg.Stages,
		BeatFrequency: cfg.Sim.BeatFrequency,
		Seed:          cfg.Sim.Seed,
		CoordGain:     DefaultCoordGain,
		Coordinator:   cc,
		Planner:       pc,
		Bounds:        planner.Bounds{Min: vec(cfg.Planner.Min), Max: vec(cfg.Planner.Max)},
		Goal:          vec(cfg.Planner.Goal),
		Obstacles:     obstacles,
		Robot: planner.ObstacleModel{
			BodyMass:  cfg.Planner.Mass,
			Speed:     cfg.Planner.MaxVelocity,
			Obstacles: obstacles,
		},
		ReplanInterval:  cfg.Planner.ReplanInterval,
		PeriodicReplan:  true,
		TelemetryWindow: cfg.Telemetry.Window,
	}
}
