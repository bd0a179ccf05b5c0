package scpi

import (
	"testing"

	"github.com/allbin/bkmeter/serial"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDescriptor(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		token    string
		rng      float64
		hasRange bool
		res      float64
		hasRes   bool
		rngText  string
	}{
		{"comma separated", "VOLT,+1.00000000E+01,+1.00000000E-04", "VOLT", 10, true, 1e-4, true, "+1.00000000E+01"},
		{"space separated and quoted", `"VOLT:AC +1.00000000E+00,+1.00000000E-05"`, "VOLT:AC", 1, true, 1e-5, true, "+1.00000000E+00"},
		{"token only", "CONT", "CONT", 0, false, 0, false, ""},
		{"malformed range", "RES,DEF,+1E-03", "RES", 0, false, 1e-3, true, "DEF"},
		{"missing resolution", "FREQ,+1.0E-01", "FREQ", 0.1, true, 0, false, "+1.0E-01"},
		{"lower case token", "cap,+1.0E-06,+1.0E-10", "CAP", 1e-6, true, 1e-10, true, "+1.0E-06"},
		{"trailing CR", "DIOD,+1.0E+01,+1.0E-05\r", "DIOD", 10, true, 1e-5, true, "+1.0E+01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDescriptor(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.token, d.Token)
			assert.Equal(t, tt.hasRange, d.HasRange)
			assert.InDelta(t, tt.rng, d.Range, 1e-15)
			assert.Equal(t, tt.hasRes, d.HasResolution)
			assert.InDelta(t, tt.res, d.Resolution, 1e-15)
			assert.Equal(t, tt.rngText, d.RangeText)
			assert.Equal(t, tt.raw, d.Raw)
		})
	}
}

func TestParseDescriptorRejectsEmpty(t *testing.T) {
	for _, raw := range []string{"", "  ", `""`, ",1,2"} {
		_, err := ParseDescriptor(raw)
		assert.ErrorIs(t, err, ErrProtocolMismatch, "raw %q", raw)
	}
}

func TestDescriptorMode(t *testing.T) {
	d, err := ParseDescriptor("CURR:AC,+5.0E-01,+1E-06")
	require.NoError(t, err)
	assert.Equal(t, ModeCurrentAC, d.Mode(ModeVoltDC))

	d.Token = "BOGUS"
	assert.Equal(t, ModeVoltDC, d.Mode(ModeVoltDC))
}

func TestParseMeasurement(t *testing.T) {
	m, err := ParseMeasurement(ModeVoltDC, Descriptor{}, " +5.12345000E+00\r")
	require.NoError(t, err)
	assert.InDelta(t, 5.12345, m.Value, 1e-12)
	assert.False(t, m.Overrange())

	m, err = ParseMeasurement(ModeResistance, Descriptor{}, "+9.90000000E+37")
	require.NoError(t, err)
	assert.True(t, m.Overrange())

	m, err = ParseMeasurement(ModeVoltDC, Descriptor{}, "+1.0E+00,+2.0E+00")
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.Value)

	m, err = ParseMeasurement(ModeVoltDC, Descriptor{}, "ERR")
	assert.ErrorIs(t, err, ErrProtocolMismatch)
	assert.Equal(t, "ERR", m.Raw)
}

func TestModes(t *testing.T) {
	assert.Len(t, Modes(), 13)

	for _, m := range Modes() {
		assert.True(t, m.Valid())
		assert.NotEmpty(t, m.Select().String(), m.String())

		got, ok := ModeForToken(m.Token())
		assert.True(t, ok, m.String())
		assert.Equal(t, m, got)

		parsed, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}

	m, err := ParseMode("Volts AC")
	require.NoError(t, err)
	assert.Equal(t, ModeVoltAC, m)

	m, err = ParseMode("volt:dc")
	require.NoError(t, err)
	assert.Equal(t, ModeVoltDC, m)

	_, err = ParseMode("ohms")
	assert.Error(t, err)

	assert.False(t, Mode(99).Valid())
	assert.Equal(t, "Unknown", Mode(99).Label())
}

func TestCommands(t *testing.T) {
	assert.Equal(t, "CONF:TEMP:RTD\r\n", string(ModeTemperature.Select().Bytes()))
	assert.Equal(t, []string{"RES:ZERO:AUTO ON"}, commandStrings(ModeResistance.Quirks()))
	assert.Empty(t, ModeVoltDC.Quirks())
	assert.Equal(t, []string{"SYST:BEEP:STAT 1", "SYST:BEEP", "SYST:BEEP:STAT 0"}, commandStrings(ForcedBeep()))
	assert.Equal(t, BeepOff, BeepPolicy(false))
	assert.Equal(t, BeepOn, BeepPolicy(true))
}

func commandStrings(cmds []serial.Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.String()
	}
	return out
}
