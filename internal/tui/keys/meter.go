package keys

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/allbin/bkmeter/scpi"
)

// ModeBinding selects a measurement mode.
type ModeBinding struct {
	key.Binding
	Mode scpi.Mode
}

func modeKey(k string, mode scpi.Mode) ModeBinding {
	return ModeBinding{
		Binding: key.NewBinding(key.WithKeys(k, strings.ToUpper(k)), key.WithHelp(k, mode.Label())),
		Mode:    mode,
	}
}

// MeterKeys are the bindings of the meter screen.
type MeterKeys struct {
	Quit    key.Binding
	Help    key.Binding
	Pause   key.Binding
	Beep    key.Binding
	Log     key.Binding
	Command key.Binding
	Escape  key.Binding
	Enter   key.Binding
	Up      key.Binding
	Down    key.Binding

	Modes []ModeBinding
}

func NewMeterKeys() MeterKeys {
	return MeterKeys{
		Quit: key.NewBinding(
			key.WithKeys("q", "Q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Pause: key.NewBinding(
			key.WithKeys("p", "P", " "),
			key.WithHelp("p", "pause / front panel"),
		),
		Beep: key.NewBinding(
			key.WithKeys("!"),
			key.WithHelp("!", "beep"),
		),
		Log: key.NewBinding(
			key.WithKeys("l", "L"),
			key.WithHelp("l", "toggle frame log"),
		),
		Command: key.NewBinding(
			key.WithKeys(":"),
			key.WithHelp(":", "send SCPI command"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Up: key.NewBinding(
			key.WithKeys("up"),
			key.WithHelp("↑", "previous"),
		),
		Down: key.NewBinding(
			key.WithKeys("down"),
			key.WithHelp("↓", "next"),
		),
		Modes: []ModeBinding{
			modeKey("v", scpi.ModeVoltDC),
			modeKey("w", scpi.ModeVoltAC),
			modeKey("a", scpi.ModeCurrentDC),
			modeKey("r", scpi.ModeResistance),
			modeKey("c", scpi.ModeContinuity),
			modeKey("d", scpi.ModeDiode),
			modeKey("b", scpi.ModeCapacitance),
			modeKey("h", scpi.ModeFrequency),
			modeKey("t", scpi.ModeTemperature),
			modeKey("e", scpi.ModePeriod),
		},
	}
}

// ModeFor returns the mode bound to msg.
func (k MeterKeys) ModeFor(msg tea.KeyMsg) (scpi.Mode, bool) {
	for _, b := range k.Modes {
		if key.Matches(msg, b.Binding) {
			return b.Mode, true
		}
	}
	return 0, false
}

func (k MeterKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Pause, k.Command, k.Quit}
}

func (k MeterKeys) FullHelp() [][]key.Binding {
	modes := make([]key.Binding, 0, len(k.Modes))
	for _, b := range k.Modes {
		modes = append(modes, b.Binding)
	}
	half := (len(modes) + 1) / 2
	return [][]key.Binding{
		modes[:half],
		modes[half:],
		{k.Pause, k.Beep, k.Log, k.Command},
		{k.Help, k.Quit},
	}
}
