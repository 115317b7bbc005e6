package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// styles are the monitor's rendering styles derived from a theme.
type styles struct {
	header   lipgloss.Style
	panel    lipgloss.Style
	label    lipgloss.Style
	value    lipgloss.Style
	selected lipgloss.Style
	graph    lipgloss.Style
	help     lipgloss.Style
	on       lipgloss.Style
	off      lipgloss.Style
	running  lipgloss.Style
	paused   lipgloss.Style
	alert    lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		header: lipgloss.NewStyle().Bold(true).Foreground(t.Primary).
			BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(t.Muted),
		panel: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Muted).Padding(0, 1),
		label:    lipgloss.NewStyle().Foreground(t.Muted).Width(12),
		value:    lipgloss.NewStyle().Foreground(t.Text),
		selected: lipgloss.NewStyle().Foreground(t.Secondary).Bold(true),
		graph:    lipgloss.NewStyle().Foreground(t.Primary),
		help:     lipgloss.NewStyle().Foreground(t.Muted).Italic(true).MarginTop(1),
		on:       lipgloss.NewStyle().Foreground(t.Success).Bold(true),
		off:      lipgloss.NewStyle().Foreground(t.Muted),
		running:  lipgloss.NewStyle().Foreground(t.Success).Bold(true),
		paused:   lipgloss.NewStyle().Foreground(t.Warning).Bold(true),
		alert:    lipgloss.NewStyle().Foreground(t.Error).Bold(true),
	}
}

// RangeBar renders where value sits in [lo, hi] as a fixed-width bar.
func RangeBar(value, lo, hi float64, width int) string {
	frac := 0.0
	if hi > lo {
		frac = (value - lo) / (hi - lo)
	}
	filled := int(frac * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat("-", width-filled) + "]"
}

var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline renders the last width values scaled between their min and max.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return strings.Repeat("─", max(width, 0))
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo, hi = min(lo, v), max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}
	var b strings.Builder
	for _, v := range values {
		idx := int((v - lo) / span * float64(len(sparkChars)-1))
		b.WriteRune(sparkChars[max(0, min(idx, len(sparkChars)-1))])
	}
	return b.String()
}

// Separator is a muted horizontal rule.
func Separator(width int, st lipgloss.Style) string {
	if width < 1 {
		return ""
	}
	return st.Render(strings.Repeat("─", width))
}
