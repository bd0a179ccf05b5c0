package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/bkmeter/internal/trace"
	"github.com/allbin/bkmeter/internal/tui/colors"
)

// MaxLogLines bounds the frame log history.
const MaxLogLines = 500

// FrameLog is a scrolling view of link traffic.
type FrameLog struct {
	viewport viewport.Model
	lines    []string
	showHex  bool
}

func NewFrameLog(width, height int) *FrameLog {
	return &FrameLog{viewport: viewport.New(width, height)}
}

func (f *FrameLog) SetSize(width, height int) {
	f.viewport.Width = width
	f.viewport.Height = height
}

func (f *FrameLog) ToggleHex() {
	f.showHex = !f.showHex
}

// Add appends events and scrolls to the newest line.
func (f *FrameLog) Add(events ...trace.Event) {
	if len(events) == 0 {
		return
	}
	for _, e := range events {
		f.lines = append(f.lines, f.Format(e))
	}
	if n := len(f.lines) - MaxLogLines; n > 0 {
		f.lines = f.lines[n:]
	}
	f.viewport.SetContent(strings.Join(f.lines, "\n"))
	f.viewport.GotoBottom()
}

// AddNote appends a free text line, used for console answers.
func (f *FrameLog) AddNote(text string) {
	f.lines = append(f.lines, lipgloss.NewStyle().Foreground(colors.Peach).Render(text))
	f.viewport.SetContent(strings.Join(f.lines, "\n"))
	f.viewport.GotoBottom()
}

func (f *FrameLog) Len() int { return len(f.lines) }

func (f *FrameLog) Clear() {
	f.lines = nil
	f.viewport.SetContent("")
}

// Format renders one event on a single line.
func (f *FrameLog) Format(e trace.Event) string {
	timestamp := lipgloss.NewStyle().
		Foreground(colors.Subtext0).
		Render(fmt.Sprintf("[%s]", e.Timestamp.Format("15:04:05.000")))

	switch {
	case e.Frame != nil:
		indicator := lipgloss.NewStyle().Foreground(colors.Sky).Bold(true).Render("↙ RX")
		if e.Direction == trace.DirectionOut {
			indicator = lipgloss.NewStyle().Foreground(colors.Peach).Bold(true).Render("↗ TX")
		}
		body := printable(e.Frame.Data)
		if f.showHex {
			body = fmt.Sprintf("% X", e.Frame.Data)
		}
		var flags []string
		if e.Frame.TimedOut {
			flags = append(flags, "timeout")
		}
		if e.Frame.Truncated {
			flags = append(flags, "truncated")
		}
		if len(flags) > 0 {
			body += lipgloss.NewStyle().Foreground(colors.Yellow).Render(" (" + strings.Join(flags, ", ") + ")")
		}
		return fmt.Sprintf("%s %s %s", timestamp, indicator, body)

	case e.StateChange != nil:
		text := fmt.Sprintf("%s → %s", e.StateChange.OldState, e.StateChange.NewState)
		if e.StateChange.Reason != "" {
			text += " (" + e.StateChange.Reason + ")"
		}
		return fmt.Sprintf("%s %s", timestamp, lipgloss.NewStyle().Foreground(colors.Mauve).Render(text))

	case e.Error != nil:
		return fmt.Sprintf("%s %s", timestamp,
			lipgloss.NewStyle().Foreground(colors.Red).Render(e.Error.Context+": "+e.Error.Message))
	}
	return timestamp
}

// printable replaces control bytes with dots and drops the line terminator.
func printable(data []byte) string {
	var b strings.Builder
	for _, c := range []byte(strings.TrimRight(string(data), "\r\n")) {
		if c >= 32 && c <= 126 {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}

func (f *FrameLog) Update(msg tea.Msg) (viewport.Model, tea.Cmd) {
	switch msg.(type) {
	case tea.WindowSizeMsg:
		return f.viewport.Update(msg)
	default:
		return f.viewport, nil
	}
}

func (f *FrameLog) View() string {
	return f.viewport.View()
}
