package scpi

import (
	"math"
	"strings"
)

// Entry is one row of a range table. Exactly one of Range, Substr or Any
// selects the row.
type Entry struct {
	Range  float64
	Substr string
	Any    bool

	Scale     float64
	Suffix    string
	Precision int
	Label     string
}

func (e Entry) matches(d Descriptor) bool {
	switch {
	case e.Any:
		return true
	case e.Substr != "":
		text := d.RangeText
		if text == "" {
			text = d.Raw
		}
		return strings.Contains(text, e.Substr)
	default:
		return d.HasRange && sameRange(d.Range, e.Range)
	}
}

// sameRange compares with a relative tolerance so "1.00000000E-01" and 0.1
// match.
func sameRange(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}

// Table is an ordered list of entries; the first match wins.
type Table []Entry

// Lookup returns the first entry matching d.
func (t Table) Lookup(d Descriptor) (Entry, bool) {
	for _, e := range t {
		if e.matches(d) {
			return e, true
		}
	}
	return Entry{}, false
}

// TableFor returns the range table of m. Continuity and diode have none.
func TableFor(m Mode) Table {
	return tables[m]
}

func row(rng, scale float64, suffix string, precision int, label string) Entry {
	return Entry{Range: rng, Scale: scale, Suffix: suffix, Precision: precision, Label: label}
}

func voltTable(qual string) Table {
	return Table{
		row(0.1, 1e3, "mV "+qual, 3, "100mV"),
		row(1, 1, "V "+qual, 5, "1V"),
		row(10, 1, "V "+qual, 4, "10V"),
		row(100, 1, "V "+qual, 3, "100V"),
		row(750, 1, "V "+qual, 2, "750V"),
		row(1000, 1, "V "+qual, 2, "1000V"),
	}
}

func currentTable(qual string) Table {
	return Table{
		row(0.0005, 1e6, "µA "+qual, 2, "500µA"),
		row(0.005, 1e3, "mA "+qual, 4, "5mA"),
		row(0.05, 1e3, "mA "+qual, 3, "50mA"),
		row(0.5, 1e3, "mA "+qual, 2, "500mA"),
		row(5, 1, "A "+qual, 4, "5A"),
		row(10, 1, "A "+qual, 3, "10A"),
	}
}

// Older firmware reports DC/AC voltage on 5x ranges.
var dcacVoltTable = append(voltTable("DC/AC"),
	row(0.5, 1e3, "mV DC/AC", 2, "500mV"),
	row(5, 1, "V DC/AC", 4, "5V"),
	row(50, 1, "V DC/AC", 3, "50V"),
	row(500, 1, "V DC/AC", 2, "500V"),
)

var tables = map[Mode]Table{
	ModeVoltDC:      voltTable("DC"),
	ModeVoltAC:      voltTable("AC"),
	ModeVoltDCAC:    dcacVoltTable,
	ModeCurrentDC:   currentTable("DC"),
	ModeCurrentAC:   currentTable("AC"),
	ModeCurrentDCAC: currentTable("DC/AC"),
	ModeResistance: {
		row(10, 1, "Ω", 4, "10Ω"),
		row(100, 1, "Ω", 3, "100Ω"),
		row(1e3, 1e-3, "kΩ", 5, "1kΩ"),
		row(1e4, 1e-3, "kΩ", 4, "10kΩ"),
		row(1e5, 1e-3, "kΩ", 3, "100kΩ"),
		row(1e6, 1e-6, "MΩ", 5, "1MΩ"),
		row(1e7, 1e-6, "MΩ", 4, "10MΩ"),
		row(1e8, 1e-6, "MΩ", 3, "100MΩ"),
	},
	ModeFrequency: {
		row(0.001, 1, "Hz", 5, "10Hz"),
		row(0.01, 1, "Hz", 4, "100Hz"),
		row(0.1, 1, "Hz", 3, "1kHz"),
		row(1, 1e-3, "kHz", 5, "10kHz"),
		row(10, 1e-3, "kHz", 4, "100kHz"),
		row(100, 1e-3, "kHz", 3, "300kHz"),
		row(750, 1e-3, "kHz", 3, "750kHz"),
	},
	ModePeriod: {
		{Any: true, Scale: 1e3, Suffix: "ms", Precision: 4, Label: "Auto"},
	},
	ModeTemperature: {
		{Any: true, Scale: 1, Suffix: "°C", Precision: 2, Label: "RTD"},
	},
	// The range field only carries a stable exponent per decade.
	ModeCapacitance: {
		{Substr: "E-09", Scale: 1e9, Suffix: "nF", Precision: 5, Label: "1nF"},
		{Substr: "E-08", Scale: 1e9, Suffix: "nF", Precision: 4, Label: "10nF"},
		{Substr: "E-07", Scale: 1e9, Suffix: "nF", Precision: 3, Label: "100nF"},
		{Substr: "E-06", Scale: 1e6, Suffix: "µF", Precision: 5, Label: "1µF"},
		{Substr: "E-05", Scale: 1e6, Suffix: "µF", Precision: 4, Label: "10µF"},
		{Substr: "E-04", Scale: 1e6, Suffix: "µF", Precision: 3, Label: "100µF"},
		{Substr: "E-03", Scale: 1e3, Suffix: "mF", Precision: 5, Label: "1mF"},
		{Substr: "E-02", Scale: 1e3, Suffix: "mF", Precision: 4, Label: "10mF"},
	},
}
