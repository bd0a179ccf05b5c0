package cmd

import (
	"errors"
	"strings"
	"testing"

	"github.com/allbin/bkmeter/scpi"
	"github.com/allbin/bkmeter/session"
)

func TestFilterPorts(t *testing.T) {
	ports := []string{"/dev/ttyACM0", "/dev/ttyAMA0", "/dev/ttyS0", "/dev/ttyUSB0", "COM3"}

	tests := []struct {
		filter string
		want   []string
	}{
		{"", ports},
		{"all", ports},
		{"usb", []string{"/dev/ttyACM0", "/dev/ttyUSB0"}},
		{"standard", []string{"/dev/ttyS0", "COM3"}},
		{"arm", []string{"/dev/ttyAMA0"}},
		{"bogus", nil},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			got := filterPorts(ports, tt.filter)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("filterPorts(%q) = %v, want %v", tt.filter, got, tt.want)
			}
		})
	}
}

func TestReadCommands(t *testing.T) {
	got, err := readCommands(strings.NewReader("*IDN?\r\n\n  CONF? \nLOC\n"))
	if err != nil {
		t.Fatalf("readCommands failed: %v", err)
	}
	want := []string{"*IDN?", "CONF?", "LOC"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatCycle(t *testing.T) {
	tests := []struct {
		name  string
		cycle session.Cycle
		want  string
	}{
		{
			name: "reading",
			cycle: session.Cycle{
				Reading:  scpi.Reading{Value: "+01.5000 V DC"},
				ModeLine: "VOLT, 10V",
			},
			want: "+01.5000 V DC  [VOLT, 10V]",
		},
		{
			name: "stale with error",
			cycle: session.Cycle{
				Reading: scpi.Reading{Value: "O.L."},
				Stale:   true,
				Err:     errors.New("timeout"),
			},
			want: "O.L.  (stale)  timeout",
		},
		{
			name: "beep while paused",
			cycle: session.Cycle{
				Reading: scpi.Reading{Value: "0.4 Ω", Beep: true},
				Paused:  true,
			},
			want: "0.4 Ω  BEEP  (paused)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatCycle(tt.cycle); got != tt.want {
				t.Errorf("formatCycle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrintableIdentity(t *testing.T) {
	if got := printableIdentity(""); got != "(no answer)" {
		t.Errorf("got %q", got)
	}
	if got := printableIdentity("BK Precision,5492C"); got != `"BK Precision,5492C"` {
		t.Errorf("got %q", got)
	}
}
