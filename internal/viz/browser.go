package viz

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/salto/internal/ocp"
	"github.com/san-kum/salto/internal/rbd"
)

const (
	canvasWidth  = 30
	canvasHeight = 12
	sparkWidth   = 48
)

var browserSeries = []Series{SeriesQ, SeriesQdot, SeriesTau, SeriesLambda, SeriesContact}

// Browser is a bubbletea model that steps through the phases and nodes of
// a decoded solution.
type Browser struct {
	sol      *ocp.Solution
	body     *rbd.Model
	view     Viewport
	dofNames []string

	phase, node, coord int
	series             int
	theme              int
	width, height      int
}

// NewBrowser builds a browser over sol. body draws the stick figure and may
// be nil.
func NewBrowser(sol *ocp.Solution, body *rbd.Model) *Browser {
	b := &Browser{sol: sol, body: body, width: 100, height: 30}
	for i, t := range Themes {
		if t.Name == CurrentTheme.Name {
			b.theme = i
		}
	}
	if body != nil {
		var poses [][]float64
		for _, ph := range sol.Phases {
			poses = append(poses, ph.Q...)
		}
		b.view = FitPoses(body, poses)
		b.dofNames = body.DoFNames()
	}
	return b
}

func (b Browser) Init() tea.Cmd { return nil }

func (b Browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return b.handleKey(msg)
	case tea.WindowSizeMsg:
		b.width, b.height = msg.Width, msg.Height
	}
	return b, nil
}

func (b Browser) current() *ocp.PhaseSolution {
	if len(b.sol.Phases) == 0 {
		return nil
	}
	return &b.sol.Phases[b.phase]
}

func (b Browser) handleKey(msg tea.KeyMsg) (Browser, tea.Cmd) {
	ph := b.current()
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return b, tea.Quit
	case "j", "down":
		if b.phase < len(b.sol.Phases)-1 {
			b.phase++
			b.node = 0
		}
	case "k", "up":
		if b.phase > 0 {
			b.phase--
			b.node = 0
		}
	case "l", "right":
		if ph != nil && b.node < len(ph.Time)-1 {
			b.node++
		}
	case "h", "left":
		if b.node > 0 {
			b.node--
		}
	case "n":
		if w := browserSeries[b.series].Width(b.sol); b.coord < w-1 {
			b.coord++
		}
	case "p":
		if b.coord > 0 {
			b.coord--
		}
	case "s":
		b.series = (b.series + 1) % len(browserSeries)
		b.coord = 0
	case "t":
		b.theme = (b.theme + 1) % len(Themes)
	}
	return b, nil
}

func (b Browser) View() string {
	theme := Themes[b.theme]
	st := theme.Styles()
	var s strings.Builder

	head := lipgloss.NewStyle().Bold(true).Foreground(theme.Primary).Render("SALTO")
	s.WriteString("\n  " + head + "  " + StatusBadge(theme, b.sol.Status) + "  " +
		st.Metric("cost", b.sol.Cost) + "  " + st.Metric("violation", b.sol.Violation) + "  " +
		st.Metric("time", b.sol.TotalTime()) + "\n  " + st.Rule(min(b.width-4, 80)) + "\n\n")

	left := b.viewPhases(theme)
	right := b.viewPose(st)
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, st.Panel.Render(left), " ", st.Panel.Render(right)))
	s.WriteString("\n" + b.viewSeries(theme) + "\n\n")
	s.WriteString("  " + st.KeyHint.Render("j/k phase  h/l node  n/p coordinate  s series  t theme  q quit") + "\n")
	return s.String()
}

func (b Browser) viewPhases(theme Theme) string {
	st := theme.Styles()
	var s strings.Builder
	s.WriteString(st.Title.Render("phases") + "\n")
	for i, ph := range b.sol.Phases {
		kind := lipgloss.NewStyle().Foreground(theme.KindColor(ph.Kind))
		line := fmt.Sprintf("%-12s %-24s %.3fs", ph.Name, ph.Kind, ph.Duration)
		if i == b.phase {
			s.WriteString(kind.Bold(true).Render("▸ "+line) + "\n")
		} else {
			s.WriteString("  " + kind.Faint(true).Render(line) + "\n")
		}
	}
	if ph := b.current(); ph != nil && len(ph.Time) > 0 {
		s.WriteString("\n" + st.Metric("node", float64(b.node)) + "  " + st.Metric("t", ph.Time[b.node]) + "\n")
		if b.node < len(ph.Lambda) {
			s.WriteString(st.Label.Render("lambda ") + st.Value.Render(formatRow(ph.Lambda[b.node])) + "\n")
		}
		if b.node < len(ph.ContactForces) {
			s.WriteString(st.Label.Render("forces ") + st.Value.Render(formatRow(ph.ContactForces[b.node])) + "\n")
		}
	}
	return s.String()
}

func (b Browser) viewPose(st Styles) string {
	ph := b.current()
	if b.body == nil || ph == nil || b.node >= len(ph.Q) {
		return st.Subtle.Render("no model")
	}
	c := NewCanvas(canvasWidth, canvasHeight)
	DrawPose(c, b.view, b.body, ph.Q[b.node])
	return strings.TrimRight(c.String(), "\n")
}

func (b Browser) viewSeries(theme Theme) string {
	st := theme.Styles()
	ph := b.current()
	if ph == nil {
		return ""
	}
	series := browserSeries[b.series]
	name := fmt.Sprintf("%s[%d]", series, b.coord)
	if (series == SeriesQ || series == SeriesQdot) && b.coord < len(b.dofNames) {
		name += " " + b.dofNames[b.coord]
	}
	values := PhaseExtract(ph, series, b.coord)
	if len(values) == 0 {
		return "  " + st.Subtle.Render(name+": not carried by "+ph.Name)
	}
	cur := values[min(b.node, len(values)-1)]
	label := lipgloss.NewStyle().Foreground(theme.Text).Render(name)
	return "  " + label + "  " + st.Sparkline(values, sparkWidth) + "  " + st.Metric("at node", cur)
}

func formatRow(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.2f", x)
	}
	return strings.Join(parts, " ")
}

// RunBrowser opens the browser in the alternate screen.
func RunBrowser(b *Browser) error {
	_, err := tea.NewProgram(*b, tea.WithAltScreen()).Run()
	return err
}
