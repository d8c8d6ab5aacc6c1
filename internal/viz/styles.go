package viz

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gonum.org/v1/gonum/floats"
)

// Styles are the lipgloss styles derived from one theme.
type Styles struct {
	Panel   lipgloss.Style
	Title   lipgloss.Style
	Subtle  lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	KeyHint lipgloss.Style
	// Good, Fair and Poor shade bars and sparklines by level.
	Good, Fair, Poor lipgloss.Style
}

func (t Theme) Styles() Styles {
	return Styles{
		Panel:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Muted).Padding(0, 1),
		Title:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Subtle:  lipgloss.NewStyle().Foreground(t.Muted),
		Label:   lipgloss.NewStyle().Foreground(t.Muted),
		Value:   lipgloss.NewStyle().Bold(true).Foreground(t.Text),
		KeyHint: lipgloss.NewStyle().Italic(true).Foreground(t.Muted),
		Good:    lipgloss.NewStyle().Foreground(t.Success),
		Fair:    lipgloss.NewStyle().Foreground(t.Warning),
		Poor:    lipgloss.NewStyle().Foreground(t.Error),
	}
}

// level picks Good above hi, Fair above lo and Poor otherwise.
func (st Styles) level(v, lo, hi float64) lipgloss.Style {
	switch {
	case v >= hi:
		return st.Good
	case v > lo:
		return st.Fair
	}
	return st.Poor
}

// StatusBadge renders a solver status in the theme's status color.
func StatusBadge(t Theme, status string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(t.StatusColor(status)).Render(status)
}

// Metric renders "label value" with the value in scientific notation when
// it is very small or very large.
func (st Styles) Metric(label string, v float64) string {
	format := "%.4f"
	if a := math.Abs(v); a != 0 && (a < 1e-3 || a >= 1e5) {
		format = "%.3e"
	}
	return st.Label.Render(label+" ") + st.Value.Render(fmt.Sprintf(format, v))
}

// Metric renders with the current theme.
func Metric(label string, v float64) string {
	return CurrentTheme.Styles().Metric(label, v)
}

// ViolationBar fills as the violation drops to the tolerance, on a log
// scale spanning eight decades.
func ViolationBar(violation, tol float64, width int) string {
	frac := 1.0
	if violation > tol && tol > 0 {
		frac = math.Max(0, math.Min(1, 1-math.Log10(violation/tol)/8))
	}
	filled := int(frac * float64(width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return CurrentTheme.Styles().level(frac, 0.5, 1).Render(bar)
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// Sparkline resamples values onto width cells, shading the high and low
// thirds.
func (st Styles) Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return strings.Repeat("─", max(width, 0))
	}
	lo, hi := floats.Min(values), floats.Max(values)
	span := hi - lo
	if span == 0 {
		span = 1
	}

	var b strings.Builder
	n := min(width, len(values))
	for i := range n {
		norm := (values[i*len(values)/n] - lo) / span
		r := sparkRunes[max(0, min(int(norm*float64(len(sparkRunes)-1)), len(sparkRunes)-1))]
		b.WriteString(st.level(norm, 0.3, 0.7).Render(string(r)))
	}
	return b.String()
}

// Rule is a horizontal separator with a centered mark.
func (st Styles) Rule(width int) string {
	half := max(width/2-3, 0)
	return st.Subtle.Render(strings.Repeat("─", half) + " ◆ " + strings.Repeat("─", max(width-width/2-3, 0)))
}
