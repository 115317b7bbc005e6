package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTickRate        = 500.0
	DefaultDuration        = 10.0
	DefaultBeatFrequency   = 2.0
	DefaultTelemetryWindow = 30
	DefaultReplanInterval  = 1.0
	DefaultStepBudget      = 400
	DefaultStepSize        = 0.05
	DefaultSmoothness      = 0.6
)

const (
	KindHand      = "hand"
	KindQuadruped = "quadruped"
)

type Config struct {
	Sim       SimConfig       `yaml:"sim"`
	Params    Params          `yaml:"params"`
	Stages    StageConfig     `yaml:"stages"`
	Planner   PlannerConfig   `yaml:"planner"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Agents    []AgentConfig   `yaml:"agents"`
}

type SimConfig struct {
	TickRate      float64 `yaml:"tick_rate"`
	Duration      float64 `yaml:"duration"`
	Seed          int64   `yaml:"seed"`
	BeatFrequency float64 `yaml:"beat_frequency"`
	Integrator    string  `yaml:"integrator"`
	TimeConstant  float64 `yaml:"time_constant"`
}

// StageConfig toggles the enhancement stages. A disabled stage is bypassed
// without discarding its state.
type StageConfig struct {
	Filter       bool `yaml:"filter"`
	Coordination bool `yaml:"coordination"`
	Sync         bool `yaml:"sync"`
	Expression   bool `yaml:"expression"`
	Planning     bool `yaml:"planning"`
}

type PlannerConfig struct {
	Min            [3]float64       `yaml:"min"`
	Max            [3]float64       `yaml:"max"`
	ReplanInterval float64          `yaml:"replan_interval"`
	StepBudget     int              `yaml:"step_budget"`
	StepSize       float64          `yaml:"step_size"`
	Smoothness     float64          `yaml:"smoothness"`
	Mass           float64          `yaml:"mass"`
	MaxVelocity    float64          `yaml:"max_velocity"`
	Goal           [3]float64       `yaml:"goal"`
	Obstacles      []ObstacleConfig `yaml:"obstacles"`
}

type ObstacleConfig struct {
	Center   [3]float64 `yaml:"center"`
	Radius   float64    `yaml:"radius"`
	Strength float64    `yaml:"strength"`
}

type TelemetryConfig struct {
	Window    int    `yaml:"window"`
	OutputDir string `yaml:"output_dir"`
	Record    bool   `yaml:"record"`
}

// AgentConfig declares one controlled agent. Trajectory is either a CSV path
// or one of the synthetic kinds ("gait", "grasp", "sweep").
type AgentConfig struct {
	ID         string  `yaml:"id"`
	Kind       string  `yaml:"kind"`
	Dim        int     `yaml:"dim"`
	Trajectory string  `yaml:"trajectory"`
	Frequency  float64 `yaml:"frequency"`
	Navigates  bool    `yaml:"navigates"`
}

func DefaultConfig() *Config {
	return &Config{
		Sim: SimConfig{
			TickRate:      DefaultTickRate,
			Duration:      DefaultDuration,
			BeatFrequency: DefaultBeatFrequency,
			Integrator:    "rk4",
			TimeConstant:  0.05,
		},
		Params: DefaultParams(),
		Stages: StageConfig{
			Filter:       true,
			Coordination: true,
			Sync:         true,
			Expression:   true,
			Planning:     true,
		},
		Planner: PlannerConfig{
			Min:            [3]float64{-1, -1, 0},
			Max:            [3]float64{1, 1, 0.5},
			ReplanInterval: DefaultReplanInterval,
			StepBudget:     DefaultStepBudget,
			StepSize:       DefaultStepSize,
			Smoothness:     DefaultSmoothness,
			Mass:           12.0,
			MaxVelocity:    0.5,
			Goal:           [3]float64{0.8, 0.6, 0.1},
			Obstacles: []ObstacleConfig{
				{Center: [3]float64{0.2, 0.2, 0.1}, Radius: 0.15, Strength: 1.0},
			},
		},
		Telemetry: TelemetryConfig{
			Window: DefaultTelemetryWindow,
		},
		Agents: []AgentConfig{
			{ID: "left_hand", Kind: KindHand, Dim: 5, Trajectory: "grasp", Frequency: 2.0},
			{ID: "right_hand", Kind: KindHand, Dim: 5, Trajectory: "grasp", Frequency: 2.1},
			{ID: "quadruped", Kind: KindQuadruped, Dim: 4, Trajectory: "gait", Frequency: 1.9, Navigates: true},
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if err := c.Params.Validate(); err != nil {
		return err
	}
	if c.Sim.TickRate <= 0 {
		return fmt.Errorf("tick_rate must be positive, got %f", c.Sim.TickRate)
	}
	if c.Sim.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %f", c.Sim.Duration)
	}
	for i := 0; i < 3; i++ {
		if c.Planner.Max[i] <= c.Planner.Min[i] {
			return fmt.Errorf("planner bounds: max[%d]=%g must exceed min[%d]=%g", i, c.Planner.Max[i], i, c.Planner.Min[i])
		}
	}
	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent with empty id")
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true
		if a.Kind != KindHand && a.Kind != KindQuadruped {
			return fmt.Errorf("agent %s: unknown kind %q", a.ID, a.Kind)
		}
		if a.Dim <= 0 {
			return fmt.Errorf("agent %s: dim must be positive", a.ID)
		}
	}
	return nil
}

// Dt returns the fixed tick period.
func (c *Config) Dt() float64 {
	return 1.0 / c.Sim.TickRate
}
