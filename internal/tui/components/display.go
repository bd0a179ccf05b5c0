package components

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/bkmeter/internal/tui/colors"
	"github.com/allbin/bkmeter/internal/tui/styles"
	"github.com/allbin/bkmeter/session"
)

// Display renders the two meter lines: the reading and "<token>, <range>".
type Display struct {
	palette colors.Display
	width   int
}

func NewDisplay(palette colors.Display) *Display {
	return &Display{palette: palette}
}

func (d *Display) SetWidth(width int) {
	d.width = width
}

// Lines returns the plain text of both lines.
func (d *Display) Lines(c session.Cycle) (string, string) {
	line2 := c.ModeLine
	if c.Paused {
		line2 += "  [front panel]"
	}
	return c.Reading.Value, line2
}

func (d *Display) View(c session.Cycle) string {
	line1, line2 := d.Lines(c)

	reading := styles.ReadingStyle(d.palette)
	mode := styles.ModeLineStyle(d.palette)
	if c.Stale {
		reading = reading.Faint(true)
	}
	if d.width > 0 {
		reading = reading.Width(d.width)
		mode = mode.Width(d.width)
	}

	return lipgloss.JoinVertical(lipgloss.Left, reading.Render(line1), mode.Render(line2))
}
