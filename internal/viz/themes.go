package viz

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/salto/internal/ocp"
)

// Theme defines the browser colors. Phase kinds get their own accents so
// contact, free and holonomic phases read apart at a glance.
type Theme struct {
	Name      string
	Primary   lipgloss.Color
	Text      lipgloss.Color
	Muted     lipgloss.Color
	Contact   lipgloss.Color
	Free      lipgloss.Color
	Holonomic lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
}

var (
	ThemeCyberpunk = Theme{
		Name:      "cyberpunk",
		Primary:   lipgloss.Color("#00ffff"),
		Text:      lipgloss.Color("#ffffff"),
		Muted:     lipgloss.Color("#666688"),
		Contact:   lipgloss.Color("#ffaa00"),
		Free:      lipgloss.Color("#00ccff"),
		Holonomic: lipgloss.Color("#ff00ff"),
		Success:   lipgloss.Color("#00ff88"),
		Warning:   lipgloss.Color("#ffcc00"),
		Error:     lipgloss.Color("#ff4444"),
	}

	ThemeRetroGreen = Theme{
		Name:      "retro",
		Primary:   lipgloss.Color("#00ff00"),
		Text:      lipgloss.Color("#00ff00"),
		Muted:     lipgloss.Color("#005500"),
		Contact:   lipgloss.Color("#88ff88"),
		Free:      lipgloss.Color("#00cc00"),
		Holonomic: lipgloss.Color("#ccffcc"),
		Success:   lipgloss.Color("#88ff88"),
		Warning:   lipgloss.Color("#ffff00"),
		Error:     lipgloss.Color("#ff0000"),
	}

	ThemeMinimal = Theme{
		Name:      "minimal",
		Primary:   lipgloss.Color("#ffffff"),
		Text:      lipgloss.Color("#ffffff"),
		Muted:     lipgloss.Color("#888888"),
		Contact:   lipgloss.Color("#cccccc"),
		Free:      lipgloss.Color("#0088ff"),
		Holonomic: lipgloss.Color("#ffffff"),
		Success:   lipgloss.Color("#00ff00"),
		Warning:   lipgloss.Color("#ffaa00"),
		Error:     lipgloss.Color("#ff0000"),
	}

	CurrentTheme = ThemeCyberpunk

	Themes = []Theme{
		ThemeCyberpunk,
		ThemeRetroGreen,
		ThemeMinimal,
	}
)

// GetTheme returns a theme by name, falling back to cyberpunk.
func GetTheme(name string) Theme {
	for _, t := range Themes {
		if t.Name == name {
			return t
		}
	}
	return ThemeCyberpunk
}

func SetTheme(name string) {
	CurrentTheme = GetTheme(name)
}

func ThemeNames() []string {
	names := make([]string, len(Themes))
	for i, t := range Themes {
		names[i] = t.Name
	}
	return names
}

// KindColor is the accent of a phase dynamics kind.
func (t Theme) KindColor(k ocp.DynamicsKind) lipgloss.Color {
	switch k {
	case ocp.TorqueDrivenContact:
		return t.Contact
	case ocp.HolonomicTorqueDriven:
		return t.Holonomic
	}
	return t.Free
}

// StatusColor maps a solver status name to success, warning or error.
func (t Theme) StatusColor(status string) lipgloss.Color {
	switch status {
	case "Converged":
		return t.Success
	case "MaxIterations":
		return t.Warning
	}
	return t.Error
}
