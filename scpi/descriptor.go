package scpi

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrProtocolMismatch is returned when a response does not have the
// expected shape. Callers fall back to an "Unknown" decode.
var ErrProtocolMismatch = errors.New("response does not match protocol")

// OverrangeSentinel is what READ? returns when the input exceeds the range.
const OverrangeSentinel = "9.90000000E+37"

const overrangeMagnitude = 9.9e37

// Descriptor is a parsed CONF? response.
type Descriptor struct {
	Token         string
	Range         float64
	Resolution    float64
	HasRange      bool
	HasResolution bool

	// RangeText is the range field as sent by the meter.
	RangeText string
	Raw       string
}

// ParseDescriptor parses "<token>,<range>,<resolution>". Firmware variants
// separate the token from the range with a space instead of a comma and may
// quote the whole answer. Missing or malformed numbers leave the matching
// Has flag false; only a missing token is an error.
func ParseDescriptor(raw string) (Descriptor, error) {
	d := Descriptor{Raw: raw}

	s := strings.Trim(strings.TrimSpace(raw), `"`)
	fields := strings.Split(s, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	head := fields[0]
	rest := fields[1:]
	if token, rangeText, ok := strings.Cut(head, " "); ok {
		head = token
		rest = append([]string{strings.TrimSpace(rangeText)}, rest...)
	}

	d.Token = strings.ToUpper(head)
	if d.Token == "" {
		return d, fmt.Errorf("%w: empty configuration %q", ErrProtocolMismatch, raw)
	}

	if len(rest) > 0 {
		d.RangeText = rest[0]
		d.Range, d.HasRange = parseNumber(rest[0])
	}
	if len(rest) > 1 {
		d.Resolution, d.HasResolution = parseNumber(rest[1])
	}
	return d, nil
}

// Mode resolves the descriptor token, falling back to fallback.
func (d Descriptor) Mode(fallback Mode) Mode {
	if m, ok := ModeForToken(d.Token); ok {
		return m
	}
	return fallback
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Measurement is one READ? value together with the configuration it was
// taken under.
type Measurement struct {
	Mode       Mode
	Descriptor Descriptor
	Value      float64
	Raw        string
}

// ParseMeasurement parses a READ? response. The first numeric field is used.
// On failure the returned Measurement still carries Raw.
func ParseMeasurement(mode Mode, d Descriptor, raw string) (Measurement, error) {
	m := Measurement{Mode: mode, Descriptor: d, Raw: strings.TrimSpace(raw)}

	field := m.Raw
	if i := strings.IndexAny(field, ", "); i >= 0 {
		field = field[:i]
	}

	v, ok := parseNumber(field)
	if !ok {
		return m, fmt.Errorf("%w: reading %q", ErrProtocolMismatch, raw)
	}
	m.Value = v
	return m, nil
}

// Overrange reports whether the meter signalled O.L.
func (m Measurement) Overrange() bool {
	return strings.Contains(m.Raw, OverrangeSentinel) || math.Abs(m.Value) >= overrangeMagnitude
}
