package viz

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/choreo/internal/config"
	"github.com/san-kum/choreo/internal/dynamo"
	"github.com/san-kum/choreo/internal/experiment"
	"github.com/san-kum/choreo/internal/metrics"
	"github.com/san-kum/choreo/internal/orchestrator"
)

const (
	canvasWidth     = 40
	canvasHeight    = 16
	historyCapacity = 300
	frameInterval   = time.Second / 30
)

type FrameMsg time.Time

// Monitor is a bubbletea model that steps an experiment a few control
// periods per frame and renders its telemetry. Runtime parameters and
// stage toggles are applied between frames, so they take effect on the
// next tick.
type Monitor struct {
	exp           *experiment.Experiment
	dt            float64
	stepsPerFrame int

	tick int
	t    float64
	last metrics.Snapshot

	running  bool
	selected int
	names    []string
	status   string

	energy  []float64
	ctrlErr []float64

	theme  Theme
	styles styles
	view   *PlanView
}

// NewMonitor wraps exp. stepsPerFrame control periods run per rendered
// frame; values below one run a single period.
func NewMonitor(exp *experiment.Experiment, stepsPerFrame int) *Monitor {
	if stepsPerFrame < 1 {
		stepsPerFrame = 1
	}
	theme := Themes[0]
	return &Monitor{
		exp:           exp,
		dt:            exp.Config().Dt(),
		stepsPerFrame: stepsPerFrame,
		running:       true,
		names:         config.Names(),
		energy:        make([]float64, 0, historyCapacity),
		ctrlErr:       make([]float64, 0, historyCapacity),
		theme:         theme,
		styles:        newStyles(theme),
		view:          NewPlanView(canvasWidth, canvasHeight, exp.Orchestrator().Bounds()),
	}
}

func frame() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return FrameMsg(t) })
}

func (m *Monitor) Init() tea.Cmd { return frame() }

func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.handleKey(msg.String()) {
			return m, tea.Quit
		}
	case FrameMsg:
		if m.running {
			m.Advance(m.stepsPerFrame)
		}
		return m, frame()
	}
	return m, nil
}

// handleKey applies one key press and reports whether the monitor should
// quit.
func (m *Monitor) handleKey(key string) bool {
	switch key {
	case "q", "ctrl+c":
		return true
	case " ":
		m.running = !m.running
	case "up", "k":
		m.selected = (m.selected + len(m.names) - 1) % len(m.names)
	case "down", "j":
		m.selected = (m.selected + 1) % len(m.names)
	case "right", "l":
		m.nudge(1)
	case "left", "h":
		m.nudge(-1)
	case "1", "2", "3", "4", "5":
		m.toggleStage(orchestrator.Stages[int(key[0]-'1')])
	case "p":
		m.replan()
	case "t":
		m.theme = NextTheme(m.theme.Name)
		m.styles = newStyles(m.theme)
	}
	return false
}

// Advance runs n control periods. The most recent stage error, if any,
// replaces the status line.
func (m *Monitor) Advance(n int) {
	host := m.exp.Host()
	for i := 0; i < n; i++ {
		var errs []*dynamo.StageError
		m.last, errs = host.Step(m.tick, m.t, m.dt)
		if len(errs) > 0 {
			m.status = errs[len(errs)-1].Error()
		}
		m.tick++
		m.t += m.dt
	}
	m.energy = push(m.energy, m.last.CoordinationEnergy)
	m.ctrlErr = push(m.ctrlErr, m.last.ControlError)
}

func push(buf []float64, v float64) []float64 {
	buf = append(buf, v)
	if len(buf) > historyCapacity {
		buf = buf[1:]
	}
	return buf
}

// nudge moves the selected parameter by 5% of its range.
func (m *Monitor) nudge(dir float64) {
	name := m.names[m.selected]
	spec, _ := config.Spec(name)
	orch := m.exp.Orchestrator()
	cur := orch.GetParams()[name]
	step := 0.05 * (spec.Max - spec.Min)
	if spec.Integer && step < 1 {
		step = 1
	}
	next := cur + dir*step
	next = min(max(next, spec.Min), spec.Max)
	if err := orch.SetParam(name, next); err != nil {
		m.status = err.Error()
		return
	}
	m.status = fmt.Sprintf("%s = %.4g", name, orch.GetParams()[name])
}

// toggleStage flips stage for every agent, based on the first agent's
// current setting.
func (m *Monitor) toggleStage(stage orchestrator.Stage) {
	orch := m.exp.Orchestrator()
	agents := orch.Agents()
	if len(agents) == 0 {
		return
	}
	on := !agents[0].Enabled(stage)
	if err := orch.SetStage(stage, on); err != nil {
		m.status = err.Error()
		return
	}
	m.status = fmt.Sprintf("%s %s", stage, onOff(on))
}

func (m *Monitor) replan() {
	orch := m.exp.Orchestrator()
	for _, a := range orch.Agents() {
		if !a.Navigates {
			continue
		}
		start, err := m.exp.Physics().Position(a.ID)
		if err != nil {
			m.status = err.Error()
			return
		}
		g := m.exp.Config().Planner.Goal
		orch.RequestReplan(start, r3.Vec{X: g[0], Y: g[1], Z: g[2]})
		m.status = "replan requested"
		return
	}
	m.status = "no navigating agent"
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// Running reports whether frames advance the experiment.
func (m *Monitor) Running() bool { return m.running }

func (m *Monitor) Time() float64 { return m.t }

func (m *Monitor) Selected() string { return m.names[m.selected] }

func (m *Monitor) ThemeName() string { return m.theme.Name }

func (m *Monitor) Status() string { return m.status }

func (m *Monitor) View() string {
	st := m.styles
	orch := m.exp.Orchestrator()

	var left strings.Builder
	left.WriteString(st.header.Render("CHOREO") + "\n")
	if m.running {
		left.WriteString(st.running.Render("RUNNING"))
	} else {
		left.WriteString(st.paused.Render("PAUSED"))
	}
	left.WriteString(fmt.Sprintf("  t=%.2fs  tick %d\n", m.t, m.tick))
	left.WriteString(m.planView() + "\n")
	left.WriteString(Separator(canvasWidth, st.off) + "\n")
	left.WriteString(m.stageLine() + "\n")

	var right strings.Builder
	if len(m.energy) > 1 {
		right.WriteString(st.graph.Render(asciigraph.Plot(m.energy,
			asciigraph.Height(4), asciigraph.Width(36), asciigraph.Caption("coordination energy"))) + "\n")
	}
	if len(m.ctrlErr) > 1 {
		right.WriteString(st.graph.Render(asciigraph.Plot(m.ctrlErr,
			asciigraph.Height(4), asciigraph.Width(36), asciigraph.Caption("control error"))) + "\n")
	}
	right.WriteString(st.label.Render("err trend") + st.value.Render(Sparkline(m.ctrlErr, 24)) + "\n")
	right.WriteString(st.label.Render("jitter") + st.value.Render(fmt.Sprintf("%.4f", m.last.PhaseJitter)) + "\n")
	right.WriteString(st.label.Render("path eff") + st.value.Render(fmt.Sprintf("%.3f", m.last.PathEfficiency)) + "\n")
	errLine := fmt.Sprintf("%d", m.last.StageErrors)
	if m.last.StageErrors > 0 {
		errLine = st.alert.Render(errLine)
	}
	right.WriteString(st.label.Render("errors") + errLine + "\n\n")

	right.WriteString(st.header.Render("AGENTS") + "\n")
	for _, a := range orch.Agents() {
		right.WriteString(fmt.Sprintf("%-10s rate %.3f  clock %.2fs\n", a.ID, a.Rate(), a.Clock()))
	}

	right.WriteString("\n" + st.header.Render("PARAMETERS") + "\n")
	params := orch.GetParams()
	for i, name := range m.names {
		spec, _ := config.Spec(name)
		line := fmt.Sprintf("%-9s %s %.4g", name, RangeBar(params[name], spec.Min, spec.Max, 10), params[name])
		if i == m.selected {
			right.WriteString(st.selected.Render("> "+line) + "\n")
		} else {
			right.WriteString("  " + line + "\n")
		}
	}
	if m.status != "" {
		right.WriteString(st.value.Render(m.status) + "\n")
	}
	right.WriteString(st.help.Render("space:pause  up/down:select  left/right:adjust\n1-5:stages  p:replan  t:theme  q:quit"))

	return lipgloss.JoinHorizontal(lipgloss.Top,
		st.panel.Render(left.String()),
		st.panel.Render(right.String()))
}

func (m *Monitor) planView() string {
	orch := m.exp.Orchestrator()
	var path []r3.Vec
	if plan, ok := orch.Plan(); ok {
		path = plan.Waypoints
	}
	var bodies []r3.Vec
	for _, a := range orch.Agents() {
		if !a.Navigates {
			continue
		}
		if p, err := m.exp.Physics().Position(a.ID); err == nil {
			bodies = append(bodies, p)
		}
	}
	g := m.exp.Config().Planner.Goal
	return m.view.Render(orch.Planner().Obstacles(), path, r3.Vec{X: g[0], Y: g[1], Z: g[2]}, bodies)
}

func (m *Monitor) stageLine() string {
	agents := m.exp.Orchestrator().Agents()
	parts := make([]string, len(orchestrator.Stages))
	for i, stage := range orchestrator.Stages {
		on := len(agents) > 0 && agents[0].Enabled(stage)
		label := fmt.Sprintf("%d:%s", i+1, stage)
		if on {
			parts[i] = m.styles.on.Render(label)
		} else {
			parts[i] = m.styles.off.Render(label)
		}
	}
	return strings.Join(parts, " ")
}
