package scpi

import (
	"fmt"
	"strings"

	"github.com/allbin/bkmeter/serial"
)

// Mode is a measurement function of the meter.
type Mode int

const (
	ModeVoltDC Mode = iota
	ModeVoltAC
	ModeVoltDCAC
	ModeCurrentDC
	ModeCurrentAC
	ModeCurrentDCAC
	ModeResistance
	ModeFrequency
	ModePeriod
	ModeTemperature
	ModeDiode
	ModeContinuity
	ModeCapacitance
)

type modeInfo struct {
	name    string
	label   string
	token   string
	aliases []string
	sel     serial.Command
	unit    string
	signed  bool
}

var modeInfos = [...]modeInfo{
	ModeVoltDC:      {"vdc", "Volts DC", "VOLT", []string{"VOLT:DC"}, "CONF:VOLT:DC", "V DC", true},
	ModeVoltAC:      {"vac", "Volts AC", "VOLT:AC", nil, "CONF:VOLT:AC", "V AC", true},
	ModeVoltDCAC:    {"vdcac", "Volts DC/AC", "VOLT:DCAC", nil, "CONF:VOLT:DCAC", "V DC/AC", true},
	ModeCurrentDC:   {"adc", "Current DC", "CURR", []string{"CURR:DC"}, "CONF:CURR:DC", "A DC", true},
	ModeCurrentAC:   {"aac", "Current AC", "CURR:AC", nil, "CONF:CURR:AC", "A AC", true},
	ModeCurrentDCAC: {"adcac", "Current DC/AC", "CURR:DCAC", nil, "CONF:CURR:DCAC", "A DC/AC", true},
	ModeResistance:  {"res", "Resistance", "RES", nil, "CONF:RES", "Ω", false},
	ModeFrequency:   {"freq", "Frequency", "FREQ", nil, "CONF:FREQ", "Hz", false},
	ModePeriod:      {"per", "Period", "PER", nil, "CONF:PER", "s", false},
	ModeTemperature: {"temp", "Temperature", "TEMP", []string{"TEMP:RTD"}, "CONF:TEMP:RTD", "°C", true},
	ModeDiode:       {"diode", "Diode", "DIOD", nil, "CONF:DIOD", "V", false},
	ModeContinuity:  {"cont", "Continuity", "CONT", nil, "CONF:CONT", "Ω", false},
	ModeCapacitance: {"cap", "Capacitance", "CAP", nil, "CONF:CAP", "F", false},
}

// Modes returns every mode in display order.
func Modes() []Mode {
	out := make([]Mode, len(modeInfos))
	for i := range modeInfos {
		out[i] = Mode(i)
	}
	return out
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m >= 0 && int(m) < len(modeInfos)
}

func (m Mode) info() modeInfo {
	if !m.Valid() {
		return modeInfo{name: fmt.Sprintf("mode(%d)", int(m)), token: "?", label: "Unknown"}
	}
	return modeInfos[m]
}

// String returns the short name used in configuration, e.g. "vdc".
func (m Mode) String() string { return m.info().name }

// Label is the human readable function name.
func (m Mode) Label() string { return m.info().label }

// Token is what CONF? reports while the mode is active.
func (m Mode) Token() string { return m.info().token }

// Select is the command that switches the meter into m.
func (m Mode) Select() serial.Command { return m.info().sel }

// Unit is the base display unit.
func (m Mode) Unit() string { return m.info().unit }

// Signed reports whether readings are shown with an explicit sign.
func (m Mode) Signed() bool { return m.info().signed }

// Quirks are sent right after Select.
func (m Mode) Quirks() []serial.Command {
	switch m {
	case ModeResistance:
		return []serial.Command{ResistanceAutoZero}
	default:
		return nil
	}
}

// ParseMode accepts a short name, a CONF? token or a label, case-insensitive.
func ParseMode(s string) (Mode, error) {
	key := strings.TrimSpace(s)
	for i, info := range modeInfos {
		if strings.EqualFold(key, info.name) || strings.EqualFold(key, info.label) {
			return Mode(i), nil
		}
	}
	if m, ok := ModeForToken(key); ok {
		return m, nil
	}
	return 0, fmt.Errorf("unknown measurement mode %q", s)
}

// ModeForToken maps a CONF? mode token back to its Mode.
func ModeForToken(token string) (Mode, bool) {
	token = strings.ToUpper(strings.Trim(strings.TrimSpace(token), `"`))
	for i, info := range modeInfos {
		if token == info.token {
			return Mode(i), true
		}
		for _, a := range info.aliases {
			if token == a {
				return Mode(i), true
			}
		}
	}
	return 0, false
}
