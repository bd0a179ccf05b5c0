package colors

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha tones used for the chrome around the meter display.
var (
	Base     = lipgloss.Color("#1e1e2e")
	Surface0 = lipgloss.Color("#313244")
	Surface1 = lipgloss.Color("#45475a")
	Surface2 = lipgloss.Color("#585b70")
	Overlay0 = lipgloss.Color("#6c7086")
	Subtext0 = lipgloss.Color("#a6adc8")
	Subtext1 = lipgloss.Color("#bac2de")
	Text     = lipgloss.Color("#cdd6f4")

	Blue   = lipgloss.Color("#89b4fa")
	Sky    = lipgloss.Color("#89dceb")
	Green  = lipgloss.Color("#a6e3a1")
	Yellow = lipgloss.Color("#f9e2af")
	Peach  = lipgloss.Color("#fab387")
	Red    = lipgloss.Color("#f38ba8")
	Mauve  = lipgloss.Color("#cba6f7")
)

// Display holds the configurable colors of the two reading lines.
type Display struct {
	Line1      lipgloss.Color
	Line2      lipgloss.Color
	Background lipgloss.Color
}

// DefaultDisplay is green on black with a yellow mode line.
func DefaultDisplay() Display {
	return Display{
		Line1:      lipgloss.Color("#0ac80a"),
		Line2:      lipgloss.Color("#c8c80a"),
		Background: lipgloss.Color("#000000"),
	}
}

// NewDisplay builds a Display from "#rrggbb" strings. Empty values keep
// the defaults.
func NewDisplay(line1, line2, background string) Display {
	d := DefaultDisplay()
	if line1 != "" {
		d.Line1 = lipgloss.Color(line1)
	}
	if line2 != "" {
		d.Line2 = lipgloss.Color(line2)
	}
	if background != "" {
		d.Background = lipgloss.Color(background)
	}
	return d
}
