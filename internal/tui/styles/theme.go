package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/bkmeter/internal/tui/colors"
	"github.com/allbin/bkmeter/session"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Mauve).
			Background(colors.Surface0).
			Padding(0, 1)

	StatusConnectedStyle = lipgloss.NewStyle().
				Foreground(colors.Green).
				Bold(true)

	StatusDisconnectedStyle = lipgloss.NewStyle().
				Foreground(colors.Red).
				Bold(true)

	StatusConnectingStyle = lipgloss.NewStyle().
				Foreground(colors.Yellow).
				Bold(true)

	StatusPausedStyle = lipgloss.NewStyle().
				Foreground(colors.Peach).
				Bold(true)

	ContentBorderStyle = lipgloss.NewStyle().
				BorderTop(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(colors.Surface1)

	InputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colors.Surface2).
			Padding(0, 1)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Red)

	InfoStyle = lipgloss.NewStyle().
			Foreground(colors.Subtext0)
)

// StateStyle colors a session state in the status bar.
func StateStyle(state session.State, paused bool) lipgloss.Style {
	switch {
	case paused:
		return StatusPausedStyle
	case state == session.StatePolling:
		return StatusConnectedStyle
	case state == session.StateConnected, state == session.StateModeSelecting:
		return StatusConnectingStyle
	default:
		return StatusDisconnectedStyle
	}
}

// ReadingStyle renders the large first display line.
func ReadingStyle(d colors.Display) lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(d.Line1).
		Background(d.Background).
		Padding(1, 2, 0, 2)
}

// ModeLineStyle renders the second display line.
func ModeLineStyle(d colors.Display) lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(d.Line2).
		Background(d.Background).
		Padding(0, 2, 1, 2)
}
