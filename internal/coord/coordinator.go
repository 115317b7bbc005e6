// Package coord implements the emergent coordinator: a multi-agent phase
// energy minimizer that emits small per-agent timing corrections.
package coord

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/choreo/internal/dynamo"
)

const (
	DefaultHistoryLen      = 100
	DefaultVelocityWindow  = 10
	DefaultLandscapeSize   = 4096
	DefaultMaxStablePoints = 10

	// maxPrediction bounds the horizon extrapolation of one agent's phase.
	maxPrediction = math.Pi / 4
	// syncCos is the cos(Δphase) above which a pair counts as synchronous.
	syncCos = 0.9
	// improveTol is the minimum energy drop the sweep accepts.
	improveTol = 1e-12
)

type Config struct {
	Coupling float64 // initial off-diagonal coupling
	Adapt    float64 // Hebbian learning rate
	Horizon  float64 // prediction horizon in seconds

	SweepRange      float64
	SweepStep       float64
	StableBlend     float64
	StableThreshold float64
	MaxStablePoints int
	HistoryLen      int
	VelocityWindow  int
	LandscapeSize   int
	Quantum         float64
	VelocityPenalty float64
	MaxOffset       float64
}

func DefaultConfig() Config {
	return Config{
		Coupling:        0.7,
		Adapt:           0.05,
		Horizon:         0.5,
		SweepRange:      0.5,
		SweepStep:       0.1,
		StableBlend:     0.3,
		StableThreshold: 0.05,
		MaxStablePoints: DefaultMaxStablePoints,
		HistoryLen:      DefaultHistoryLen,
		VelocityWindow:  DefaultVelocityWindow,
		LandscapeSize:   DefaultLandscapeSize,
		Quantum:         0.05,
		VelocityPenalty: 0.01,
		MaxOffset:       0.5,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Coupling < 0 || c.Coupling > 1:
		return dynamo.RangeError("coupling", c.Coupling, 0, 1)
	case c.Adapt < 0 || c.Adapt > 0.2:
		return dynamo.RangeError("adapt", c.Adapt, 0, 0.2)
	case c.Horizon < 0.1 || c.Horizon > 2:
		return dynamo.RangeError("horizon", c.Horizon, 0.1, 2)
	case c.SweepStep <= 0 || c.SweepRange < c.SweepStep:
		return dynamo.RangeError("sweepStep", c.SweepStep, 0, c.SweepRange)
	case c.StableBlend < 0 || c.StableBlend > 1:
		return dynamo.RangeError("stableBlend", c.StableBlend, 0, 1)
	case c.MaxStablePoints < 1:
		return dynamo.RangeError("maxStablePoints", float64(c.MaxStablePoints), 1, math.Inf(1))
	case c.HistoryLen < 2 || c.HistoryLen > DefaultHistoryLen:
		return dynamo.RangeError("historyLen", float64(c.HistoryLen), 2, DefaultHistoryLen)
	case c.VelocityWindow < 1 || c.VelocityWindow >= c.HistoryLen:
		return dynamo.RangeError("velocityWindow", float64(c.VelocityWindow), 1, float64(c.HistoryLen-1))
	case c.LandscapeSize < 1:
		return dynamo.RangeError("landscapeSize", float64(c.LandscapeSize), 1, math.Inf(1))
	case c.VelocityPenalty < 0:
		return dynamo.RangeError("velocityPenalty", c.VelocityPenalty, 0, math.Inf(1))
	case c.MaxOffset <= 0:
		return dynamo.RangeError("maxOffset", c.MaxOffset, 0, math.Inf(1))
	}
	return nil
}

// Coordinator owns the coupling matrix, energy landscape, stable points and
// per-agent phase histories for one group of agents. Agents are identified
// by their position in the Update slice; a change in count starts over.
type Coordinator struct {
	cfg    Config
	logger *zap.Logger

	n          int
	coupling   *Coupling
	landscape  *Landscape
	stable     stableSet
	history    [][]float64
	candidates []float64

	energy  float64
	offsets []float64
}

func New(cfg Config, logger *zap.Logger) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	land, err := NewLandscape(cfg.LandscapeSize, cfg.Quantum)
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		cfg:        cfg,
		logger:     logger,
		coupling:   NewCoupling(0, cfg.Coupling),
		landscape:  land,
		stable:     stableSet{max: cfg.MaxStablePoints},
		candidates: sweepOrder(cfg.SweepRange, cfg.SweepStep),
	}, nil
}

// sweepOrder yields 0, -step, +step, -2·step, ... out to ±span.
func sweepOrder(span, step float64) []float64 {
	k := int(math.Round(span / step))
	out := make([]float64, 0, 2*k+1)
	out = append(out, 0)
	for i := 1; i <= k; i++ {
		d := float64(i) * step
		out = append(out, -d, d)
	}
	return out
}

// Update consumes one snapshot per agent and returns the same agents, in
// order, each paired with a phase correction bounded by MaxOffset.
func (c *Coordinator) Update(states []AgentState, dt float64) []Adjusted {
	n := len(states)
	out := make([]Adjusted, n)
	for i, s := range states {
		out[i] = Adjusted{State: s}
	}
	if n == 0 {
		return out
	}
	if n != c.n {
		c.resize(n)
	}
	if !dynamo.Finite(dt) || dt < 0 {
		dt = 0
	}

	phases := make([]float64, n)
	for i, s := range states {
		phases[i] = dynamo.WrapPhase(s.Phase())
	}
	c.record(phases)
	vel := c.velocities(dt)
	c.energy = c.systemEnergy(phases, vel)

	if n < 2 {
		c.offsets[0] = 0
		return out
	}

	rel := relative(phases)
	key := c.landscape.KeyFor(rel)
	if c.landscape.Observe(key, c.energy) && c.energy < c.cfg.StableThreshold {
		c.stable.offer(StablePoint{Key: key, Relative: rel, Energy: c.energy})
	}

	predicted := make([]float64, n)
	for i := range phases {
		predicted[i] = phases[i] + dynamo.Clamp(c.cfg.Horizon*vel[i], -maxPrediction, maxPrediction)
	}
	offsets := c.sweep(predicted)

	if sp, ok := c.stable.nearest(rel); ok {
		b := c.cfg.StableBlend
		for i := range offsets {
			target := dynamo.WrapError(phases[0] + sp.Relative[i] - phases[i])
			offsets[i] = (1-b)*offsets[i] + b*target
		}
	}

	for i := range offsets {
		off := dynamo.Clamp(offsets[i], -c.cfg.MaxOffset, c.cfg.MaxOffset)
		if !dynamo.Finite(off) {
			off = 0
		}
		c.offsets[i] = off
		out[i].Offset = off
	}

	c.adaptCoupling(phases, dt)
	return out
}

func (c *Coordinator) resize(n int) {
	if c.n != 0 {
		c.logger.Info("coordinator agent count changed, resetting",
			zap.Int("from", c.n), zap.Int("to", n))
	}
	c.n = n
	c.coupling = NewCoupling(n, c.cfg.Coupling)
	c.history = make([][]float64, n)
	for i := range c.history {
		c.history[i] = make([]float64, 0, c.cfg.HistoryLen)
	}
	c.offsets = make([]float64, n)
	c.landscape.Purge()
	c.stable.reset()
}

func (c *Coordinator) record(phases []float64) {
	for i, p := range phases {
		h := c.history[i]
		if len(h) == c.cfg.HistoryLen {
			copy(h, h[1:])
			h = h[:len(h)-1]
		}
		c.history[i] = append(h, p)
	}
}

// velocities is the mean wrapped phase increment over the recent window, in
// rad/s.
func (c *Coordinator) velocities(dt float64) []float64 {
	vel := make([]float64, c.n)
	if dt == 0 {
		return vel
	}
	for i, h := range c.history {
		m := len(h) - 1
		if m > c.cfg.VelocityWindow {
			m = c.cfg.VelocityWindow
		}
		if m < 1 {
			continue
		}
		sum := 0.0
		for k := 0; k < m; k++ {
			last := len(h) - 1 - k
			sum += dynamo.WrapError(h[last] - h[last-1])
		}
		vel[i] = sum / (float64(m) * dt)
	}
	return vel
}

// pairEnergy is 2/(N(N-1)) Σ_{i<j} c_ij (1 - cos Δ_ij).
func (c *Coordinator) pairEnergy(phases []float64) float64 {
	n := len(phases)
	if n < 2 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += c.coupling.At(i, j) * (1 - math.Cos(phases[i]-phases[j]))
		}
	}
	return 2 * sum / float64(n*(n-1))
}

func (c *Coordinator) systemEnergy(phases, vel []float64) float64 {
	e := c.pairEnergy(phases)
	if len(vel) > 1 && c.cfg.VelocityPenalty > 0 {
		e += c.cfg.VelocityPenalty * stat.Variance(vel, nil)
	}
	if !dynamo.Finite(e) {
		return 0
	}
	return e
}

// sweep walks agents in order, keeping each agent's best offset in place
// before the next agent is evaluated. Only strict improvements move an agent
// off zero.
func (c *Coordinator) sweep(predicted []float64) []float64 {
	trial := append([]float64(nil), predicted...)
	offsets := make([]float64, len(trial))
	for i := range trial {
		base := trial[i]
		best := c.pairEnergy(trial)
		bestD := 0.0
		for _, d := range c.candidates[1:] {
			trial[i] = base + d
			if e := c.pairEnergy(trial); e < best-improveTol {
				best, bestD = e, d
			}
		}
		trial[i] = base + bestD
		offsets[i] = bestD
	}
	return offsets
}

// adaptCoupling strengthens synchronous pairs while the system energy is low
// and relaxes anti-phase pairs back toward the configured baseline.
func (c *Coordinator) adaptCoupling(phases []float64, dt float64) {
	if c.cfg.Adapt == 0 || dt == 0 {
		return
	}
	low := c.energy < c.cfg.StableThreshold
	rate := c.cfg.Adapt * dt
	for i := 0; i < c.n; i++ {
		for j := i + 1; j < c.n; j++ {
			cij := c.coupling.At(i, j)
			cd := math.Cos(phases[i] - phases[j])
			switch {
			case cd > syncCos && low:
				cij += rate * cd * (1 - cij)
			case cd < 0:
				cij += rate * (c.coupling.Base() - cij)
			default:
				continue
			}
			c.coupling.Set(i, j, cij)
		}
	}
}

func relative(phases []float64) []float64 {
	rel := make([]float64, len(phases))
	for i, p := range phases {
		rel[i] = dynamo.WrapPhase(p - phases[0])
	}
	return rel
}

// Energy is the system energy of the most recent snapshot.
func (c *Coordinator) Energy() float64 { return c.energy }

// Offsets returns the corrections produced by the most recent Update.
func (c *Coordinator) Offsets() []float64 {
	return append([]float64(nil), c.offsets...)
}

// Coupling exposes the live coupling matrix.
func (c *Coordinator) Coupling() *Coupling { return c.coupling }

// StablePoints returns a copy of the retained stable points, lowest energy
// first.
func (c *Coordinator) StablePoints() []StablePoint {
	return append([]StablePoint(nil), c.stable.points...)
}

func (c *Coordinator) Landscape() *Landscape { return c.landscape }

func (c *Coordinator) HistoryLen(agent int) int {
	if agent < 0 || agent >= len(c.history) {
		return 0
	}
	return len(c.history[agent])
}

// Reset forgets all agents and learned structure.
func (c *Coordinator) Reset() {
	c.n = 0
	c.coupling = NewCoupling(0, c.cfg.Coupling)
	c.history = nil
	c.offsets = nil
	c.energy = 0
	c.landscape.Purge()
	c.stable.reset()
}

// GetParams returns tunable parameters for live adjustment
func (c *Coordinator) GetParams() map[string]float64 {
	return map[string]float64{
		"coupling": c.cfg.Coupling,
		"adapt":    c.cfg.Adapt,
		"horizon":  c.cfg.Horizon,
	}
}

// SetParam adjusts coupling, adapt or horizon. A new coupling value resets
// the learned off-diagonal entries to that baseline.
func (c *Coordinator) SetParam(name string, value float64) error {
	next := c.cfg
	switch name {
	case "coupling":
		next.Coupling = value
	case "adapt":
		next.Adapt = value
	case "horizon":
		next.Horizon = value
	default:
		return fmt.Errorf("%w: coordinator has no %q", dynamo.ErrUnknownParam, name)
	}
	if math.IsNaN(value) {
		return dynamo.RangeError(name, value, 0, 0)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	c.cfg = next
	if name == "coupling" {
		c.coupling.SetBase(value)
	}
	return nil
}
