// Package theme holds the colors and styles of the console renderer.
package theme

import "github.com/charmbracelet/lipgloss"

// Palette is a color theme.
type Palette struct {
	Primary    lipgloss.Color
	Text       lipgloss.Color
	TextMuted  lipgloss.Color
	Warning    lipgloss.Color
	Error      lipgloss.Color
	Background lipgloss.Color
}

// CurrentTheme is the palette styles are built from.
var CurrentTheme = Palette{
	Primary:    lipgloss.Color("#00ff00"),
	Text:       lipgloss.Color("#ffffff"),
	TextMuted:  lipgloss.Color("#808080"),
	Warning:    lipgloss.Color("#ffaf00"),
	Error:      lipgloss.Color("#ff5f5f"),
	Background: lipgloss.Color("#000000"),
}

// SetTheme sets the current theme
func SetTheme(p Palette) {
	CurrentTheme = p
}

// Styles are the rendered styles of a palette.
type Styles struct {
	Title    lipgloss.Style
	Muted    lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Approval lipgloss.Style
}

// NewStyles builds the styles of the current theme.
func NewStyles() Styles {
	p := CurrentTheme
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(p.Primary),
		Muted:   lipgloss.NewStyle().Foreground(p.TextMuted),
		Warning: lipgloss.NewStyle().Bold(true).Foreground(p.Warning),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(p.Error),
		Approval: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.Warning).
			Padding(0, 1),
	}
}
