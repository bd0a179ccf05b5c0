package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/bkmeter/internal/tui/colors"
	"github.com/allbin/bkmeter/internal/tui/styles"
	"github.com/allbin/bkmeter/session"
)

type StatusBar struct {
	portPath string
	identity string
	line     string
	status   string
	err      error
	width    int
}

func NewStatusBar() *StatusBar {
	return &StatusBar{status: "Searching for meter..."}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

// SetEndpoint records the connected port, its line settings and the *IDN? answer.
func (sb *StatusBar) SetEndpoint(path, line, identity string) {
	sb.portPath = path
	sb.line = line
	sb.identity = identity
}

func (sb *StatusBar) SetStatus(status string, err error) {
	sb.status = status
	sb.err = err
}

func (sb *StatusBar) Status() (string, error) {
	return sb.status, sb.err
}

// Render draws the bar: state badge, port, identity, line settings and time.
func (sb *StatusBar) Render(state session.State, paused bool, timestamp string) string {
	width := sb.width
	if width <= 0 {
		width = 80
	}

	badgeText := state.String()
	if paused {
		badgeText = "paused"
	}
	badge := lipgloss.NewStyle().
		Foreground(colors.Base).
		Background(styles.StateStyle(state, paused).GetForeground()).
		Bold(true).
		Padding(0, 1).
		Render(badgeText)

	port := "no port"
	if sb.portPath != "" {
		port = sb.portPath
	}
	portView := lipgloss.NewStyle().
		Foreground(colors.Mauve).
		Bold(true).
		Padding(0, 1).
		Render(port)

	var indicator string
	switch {
	case sb.err != nil:
		indicator = lipgloss.NewStyle().Foreground(colors.Red).Render("✗")
	case state == session.StatePolling:
		indicator = lipgloss.NewStyle().Foreground(colors.Green).Render("●")
	default:
		indicator = lipgloss.NewStyle().Foreground(colors.Yellow).Render("○")
	}

	divider := lipgloss.NewStyle().
		Foreground(colors.Surface2).
		Padding(0, 1).
		Render("│")

	status := sb.status
	if sb.err != nil {
		status = fmt.Sprintf("%s: %v", sb.status, sb.err)
	}
	statusView := lipgloss.NewStyle().Foreground(colors.Subtext0).Padding(0, 1).Render(status)

	details := "⚡ " + sb.line
	if sb.identity != "" {
		details = sb.identity + "  " + details
	}
	detailView := lipgloss.NewStyle().Foreground(colors.Subtext0).Padding(0, 1).Render(details)
	timeView := lipgloss.NewStyle().Foreground(colors.Subtext1).Padding(0, 1).Render(timestamp)

	left := lipgloss.JoinHorizontal(lipgloss.Left, badge, portView, indicator, divider, statusView)
	right := lipgloss.JoinHorizontal(lipgloss.Left, detailView, divider, timeView)

	spacerWidth := width - lipgloss.Width(left) - lipgloss.Width(right)
	if spacerWidth < 1 {
		spacerWidth = 1
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	return lipgloss.NewStyle().
		Foreground(colors.Text).
		Background(colors.Surface0).
		Width(width).
		Render(lipgloss.JoinHorizontal(lipgloss.Left, left, spacer, right))
}
