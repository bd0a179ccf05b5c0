package scpi

import (
	"fmt"
	"strconv"
)

// DiodeOpenCeiling is the forward voltage above which a diode reads open.
const DiodeOpenCeiling = 10.0

// Threshold is a beep alert level for continuity and diode tests.
type Threshold struct {
	Beep  bool
	Level float64
}

// Decoder formats measurements for display. It never talks to the meter.
type Decoder struct {
	Continuity Threshold
	Diode      Threshold
}

// DefaultDecoder beeps below 1Ω in continuity and below 0.05V in diode mode.
func DefaultDecoder() Decoder {
	return Decoder{
		Continuity: Threshold{Beep: true, Level: 1.0},
		Diode:      Threshold{Beep: true, Level: 0.05},
	}
}

// Reading is the display form of one measurement.
type Reading struct {
	Value string
	Range string

	// Beep asks the caller to sound the meter's beeper.
	Beep      bool
	Overrange bool

	// Matched is false when no range table entry applied.
	Matched bool
}

// Decode maps a measurement to its display text and range label.
//
// Continuity and diode keep their own open-lead text when the meter sends
// the overrange sentinel; every other mode shows "O.L." for it.
func (d Decoder) Decode(m Measurement) Reading {
	switch m.Mode {
	case ModeContinuity:
		return d.continuity(m)
	case ModeDiode:
		return d.diode(m)
	}

	if m.Overrange() {
		return Reading{Value: "O.L.", Range: "", Overrange: true, Matched: true}
	}

	entry, ok := TableFor(m.Mode).Lookup(m.Descriptor)
	if !ok {
		return Reading{Value: rawText(m) + " " + m.Mode.Unit(), Range: "Unknown"}
	}

	return Reading{
		Value:   formatNumber(m.Value*entry.Scale, entry.Precision, m.Mode.Signed()) + " " + entry.Suffix,
		Range:   entry.Label,
		Matched: true,
	}
}

func (d Decoder) continuity(m Measurement) Reading {
	if m.Overrange() {
		return Reading{Value: "OPEN [O.L.]", Overrange: true, Matched: true}
	}
	ohms := m.Value
	if ohms > d.Continuity.Level {
		return Reading{Value: fmt.Sprintf("OPEN [%04.1fΩ]", ohms), Matched: true}
	}
	return Reading{
		Value:   fmt.Sprintf("SHRT [%04.1fΩ]", ohms),
		Beep:    d.Continuity.Beep,
		Matched: true,
	}
}

func (d Decoder) diode(m Measurement) Reading {
	volts := m.Value
	if m.Overrange() || volts > DiodeOpenCeiling {
		return Reading{Value: "OPEN / OL", Overrange: m.Overrange(), Matched: true}
	}
	return Reading{
		Value:   fmt.Sprintf("%06.3f V", volts),
		Beep:    d.Diode.Beep && volts < d.Diode.Level,
		Matched: true,
	}
}

// formatNumber zero pads to two integer digits, with an explicit sign for
// signed modes: 5.12345 at precision 5 is "+05.12345" or "05.12345".
func formatNumber(v float64, precision int, signed bool) string {
	if signed {
		return fmt.Sprintf("%+0*.*f", precision+4, precision, v)
	}
	return fmt.Sprintf("%0*.*f", precision+3, precision, v)
}

func rawText(m Measurement) string {
	if m.Raw != "" {
		return m.Raw
	}
	return strconv.FormatFloat(m.Value, 'g', -1, 64)
}

// ModeLine is the second display line, "<token>, <range>".
func ModeLine(m Measurement, r Reading) string {
	token := m.Descriptor.Token
	if token == "" {
		token = m.Mode.Token()
	}
	return token + ", " + r.Range
}
