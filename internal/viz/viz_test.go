package viz

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/choreo/internal/config"
	"github.com/san-kum/choreo/internal/experiment"
	"github.com/san-kum/choreo/internal/orchestrator"
	"github.com/san-kum/choreo/internal/planner"
)

func TestCanvasSetUnset(t *testing.T) {
	c := NewCanvas(4, 2)
	w, h := c.Dots()
	assert.Equal(t, 8, w)
	assert.Equal(t, 8, h)

	c.Set(3, 5)
	assert.True(t, c.IsSet(3, 5))
	assert.False(t, c.IsSet(2, 5))

	c.Unset(3, 5)
	assert.False(t, c.IsSet(3, 5))
	assert.Equal(t, blankCell, c.Grid[1][1])

	c.Set(-1, 0)
	c.Set(100, 100)
	for _, row := range c.Grid {
		for _, r := range row {
			assert.Equal(t, blankCell, r)
		}
	}
}

func TestCanvasDrawLine(t *testing.T) {
	c := NewCanvas(10, 5)
	c.DrawLine(0, 0, 19, 19)
	assert.True(t, c.IsSet(0, 0))
	assert.True(t, c.IsSet(19, 19))

	lines := strings.Split(strings.TrimSuffix(c.String(), "\n"), "\n")
	assert.Len(t, lines, 5)
}

func TestPlanViewProjectsCorners(t *testing.T) {
	b := planner.Bounds{Min: r3.Vec{X: -1, Y: -1}, Max: r3.Vec{X: 1, Y: 1, Z: 1}}
	v := NewPlanView(20, 10, b)
	w, h := v.Canvas().Dots()

	x, y := v.Project(b.Min)
	assert.Equal(t, 0, x)
	assert.Equal(t, h-1, y)

	x, y = v.Project(r3.Vec{X: 1, Y: 1})
	assert.Equal(t, w-1, x)
	assert.Equal(t, 0, y)

	out := v.Render([]planner.Obstacle{{Center: r3.Vec{}, Radius: 0.2}}, nil, r3.Vec{X: 0.5, Y: 0.5}, []r3.Vec{{X: -0.5, Y: -0.5}})
	assert.NotEmpty(t, strings.TrimSpace(strings.ReplaceAll(out, string(blankCell), "")))
}

func TestSparklineAndRangeBar(t *testing.T) {
	s := Sparkline([]float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, 4)
	assert.Equal(t, 4, len([]rune(s)))
	assert.Equal(t, '█', []rune(s)[3])

	assert.Equal(t, "[=====-----]", RangeBar(0.5, 0, 1, 10))
	assert.Equal(t, "[==========]", RangeBar(5, 0, 1, 10))
	assert.Equal(t, "[----------]", RangeBar(-5, 0, 1, 10))
}

func TestNextThemeCycles(t *testing.T) {
	name := Themes[0].Name
	for range Themes {
		name = NextTheme(name).Name
	}
	assert.Equal(t, Themes[0].Name, name)
	assert.Equal(t, Themes[0].Name, GetTheme("missing").Name)
}

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Sim.Duration = 1
	exp, err := experiment.New(cfg, nil)
	require.NoError(t, err)
	return NewMonitor(exp, 5)
}

func TestMonitorAdvance(t *testing.T) {
	m := newTestMonitor(t)
	m.Advance(10)
	assert.InDelta(t, 10*m.dt, m.Time(), 1e-12)
	assert.Equal(t, 10, m.exp.Orchestrator().Ticks())
	assert.Len(t, m.energy, 1)

	_, cmd := m.Update(FrameMsg{})
	assert.NotNil(t, cmd)
	assert.Equal(t, 15, m.exp.Orchestrator().Ticks())
}

func TestMonitorShowsLatestStageError(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sim.Duration = 1
	require.NotEmpty(t, cfg.Agents)
	target := cfg.Agents[0].ID
	exp, err := experiment.New(cfg, nil, func(o *orchestrator.Options) {
		o.Fault = func(stage orchestrator.Stage, agentID string) error {
			if stage == orchestrator.StageFilter && agentID == target {
				return errors.New("encoder dropout")
			}
			return nil
		}
	})
	require.NoError(t, err)
	m := NewMonitor(exp, 1)

	m.Advance(3)
	assert.Contains(t, m.Status(), "encoder dropout")
	assert.Contains(t, m.Status(), target)
	assert.Contains(t, m.Status(), "tick 2")
	assert.Contains(t, m.View(), "encoder dropout")
}

func TestMonitorPauseStopsFrames(t *testing.T) {
	m := newTestMonitor(t)
	m.handleKey(" ")
	assert.False(t, m.Running())
	m.Update(FrameMsg{})
	assert.Equal(t, 0, m.exp.Orchestrator().Ticks())
}

func TestMonitorAdjustsSelectedParam(t *testing.T) {
	m := newTestMonitor(t)
	m.handleKey("down")
	require.Equal(t, "gain", m.Selected())

	before := m.exp.Orchestrator().GetParams()["gain"]
	m.handleKey("left")
	after := m.exp.Orchestrator().GetParams()["gain"]
	spec, _ := config.Spec("gain")
	assert.InDelta(t, before-0.05*(spec.Max-spec.Min), after, 1e-9)

	m.handleKey("up")
	m.handleKey("up")
	assert.Equal(t, config.Names()[len(config.Names())-1], m.Selected())
}

func TestMonitorClampsAtRange(t *testing.T) {
	m := newTestMonitor(t)
	for i := 0; i < 40; i++ {
		m.handleKey("right")
	}
	spec, _ := config.Spec("window")
	assert.Equal(t, spec.Max, m.exp.Orchestrator().GetParams()["window"])
}

func TestMonitorTogglesStage(t *testing.T) {
	m := newTestMonitor(t)
	agents := m.exp.Orchestrator().Agents()
	require.NotEmpty(t, agents)
	require.True(t, agents[0].Enabled(orchestrator.StageFilter))

	m.handleKey("1")
	for _, a := range agents {
		assert.False(t, a.Enabled(orchestrator.StageFilter))
	}
	m.handleKey("1")
	assert.True(t, agents[0].Enabled(orchestrator.StageFilter))
}

func TestMonitorThemeAndQuit(t *testing.T) {
	m := newTestMonitor(t)
	first := m.ThemeName()
	m.handleKey("t")
	assert.NotEqual(t, first, m.ThemeName())

	assert.True(t, m.handleKey("q"))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	assert.NotNil(t, cmd)
}

func TestMonitorView(t *testing.T) {
	m := newTestMonitor(t)
	m.Advance(20)
	m.Advance(20)
	out := m.View()
	assert.Contains(t, out, "CHOREO")
	assert.Contains(t, out, "PARAMETERS")
	for _, a := range m.exp.Orchestrator().Agents() {
		assert.Contains(t, out, a.ID)
	}
}
