package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/bkmeter/internal/tui/colors"
	"github.com/allbin/bkmeter/internal/tui/styles"
)

// maxHistory bounds the command history.
const maxHistory = 100

// Input is the SCPI command line opened with ':'.
type Input struct {
	textInput     textinput.Model
	history       []string
	historyIndex  int
	currentInput  string
	terminalWidth int
}

func NewInput() *Input {
	ti := textinput.New()
	ti.Placeholder = "SCPI command, e.g. CONF? or SENS:CONT:THR?"
	ti.CharLimit = 128
	ti.Prompt = ""

	return &Input{
		textInput:    ti,
		historyIndex: -1,
	}
}

func (i *Input) SetWidth(width int) {
	i.terminalWidth = width
	// border(2) + padding(2) + prompt(1) + space(1)
	usable := width - 6
	if usable < 20 {
		usable = 20
	}
	i.textInput.Width = usable
}

func (i *Input) Focus() tea.Cmd { return i.textInput.Focus() }
func (i *Input) Blur()          { i.textInput.Blur() }
func (i *Input) Focused() bool  { return i.textInput.Focused() }
func (i *Input) Value() string  { return i.textInput.Value() }

func (i *Input) SetValue(value string) {
	i.textInput.SetValue(value)
}

func (i *Input) Update(msg tea.Msg) (*Input, tea.Cmd) {
	var cmd tea.Cmd
	i.textInput, cmd = i.textInput.Update(msg)
	return i, cmd
}

func (i *Input) View() string {
	prompt := lipgloss.NewStyle().Foreground(colors.Green).Bold(true).Render(":")

	width := i.terminalWidth - 4
	if width < 10 {
		width = 10
	}
	style := styles.InputStyle.
		Width(width).
		AlignHorizontal(lipgloss.Left).
		BorderForeground(colors.Green)

	return style.Render(lipgloss.JoinHorizontal(lipgloss.Left, prompt, " ", i.textInput.View()))
}

// AddToHistory records a sent command, skipping blanks and repeats.
func (i *Input) AddToHistory(command string) {
	command = strings.TrimSpace(command)
	if command == "" {
		return
	}
	if len(i.history) > 0 && i.history[len(i.history)-1] == command {
		return
	}

	i.history = append(i.history, command)
	if len(i.history) > maxHistory {
		i.history = i.history[1:]
	}
	i.historyIndex = -1
	i.currentInput = ""
}

func (i *Input) NavigateHistoryUp() {
	if len(i.history) == 0 {
		return
	}

	if i.historyIndex == -1 {
		i.currentInput = i.textInput.Value()
		i.historyIndex = len(i.history) - 1
	} else if i.historyIndex > 0 {
		i.historyIndex--
	}
	i.textInput.SetValue(i.history[i.historyIndex])
}

func (i *Input) NavigateHistoryDown() {
	if len(i.history) == 0 || i.historyIndex == -1 {
		return
	}

	if i.historyIndex < len(i.history)-1 {
		i.historyIndex++
		i.textInput.SetValue(i.history[i.historyIndex])
		return
	}
	i.historyIndex = -1
	i.textInput.SetValue(i.currentInput)
	i.currentInput = ""
}
