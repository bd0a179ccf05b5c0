package serial

import (
	"context"
	"errors"
	"testing"
)

const (
	probe     Command = "*IDN?"
	signature         = "BK Precision,549"
)

func newTestLocator(bus *fakeBus) *Locator {
	loc := NewLocator(probe, signature, testOptions(bus)...)
	loc.Enumerate = func() ([]string, error) {
		return []string{"COM3", "COM5"}, nil
	}
	return loc
}

func TestDiscoverPicksFirstMatch(t *testing.T) {
	bus := newFakeBus()
	silent := bus.add("COM3", newFakePort())
	meter := bus.add("COM5", newFakePort().reply("*IDN?", "BK Precision,5492C,A1,1.02\n"))

	tr, err := newTestLocator(bus).Discover(context.Background(), []string{"COM3", "COM5"})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	defer tr.Close()

	if tr.Endpoint().Path != "COM5" {
		t.Errorf("selected %q, want COM5", tr.Endpoint().Path)
	}
	if !silent.isClosed() {
		t.Error("COM3 left open")
	}
	if meter.isClosed() {
		t.Error("matched port was closed")
	}
	if tr.Identity() != "BK Precision,5492C,A1,1.02" {
		t.Errorf("identity = %q", tr.Identity())
	}
}

func TestDiscoverSkipsUnreachableAndForeign(t *testing.T) {
	bus := newFakeBus()
	bus.openErr["/dev/ttyS0"] = ErrPermissionDenied
	other := bus.add("/dev/ttyUSB0", newFakePort().reply("*IDN?", "FLUKE,8846A,1,1\n"))
	bus.add("/dev/ttyUSB1", newFakePort().reply("*IDN?", "BK Precision,5491B,9,2\n"))
	bus.add("/dev/ttyUSB2", newFakePort().reply("*IDN?", "BK Precision,5492C,9,2\n"))

	candidates := []string{"/dev/ttyS0", "/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyUSB2"}
	tr, err := newTestLocator(bus).Discover(context.Background(), candidates)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	defer tr.Close()

	if tr.Endpoint().Path != "/dev/ttyUSB1" {
		t.Errorf("selected %q, want /dev/ttyUSB1", tr.Endpoint().Path)
	}
	if !other.isClosed() {
		t.Error("foreign instrument left open")
	}
	for _, path := range bus.opened {
		if path == "/dev/ttyUSB2" {
			t.Error("probing continued after a match")
		}
	}
}

func TestDiscoverNotFound(t *testing.T) {
	bus := newFakeBus()
	bus.add("COM3", newFakePort())
	bus.add("COM5", newFakePort().reply("*IDN?", "Rigol,DM3058\n"))

	_, err := newTestLocator(bus).Discover(context.Background(), nil)
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("error = %v, want ErrDeviceNotFound", err)
	}
	if len(bus.opened) != 2 {
		t.Errorf("opened %v, want enumerated COM3 and COM5", bus.opened)
	}
}

func TestDiscoverHonoursCancellation(t *testing.T) {
	bus := newFakeBus()
	bus.add("COM5", newFakePort().reply("*IDN?", "BK Precision,5492C\n"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestLocator(bus).Discover(ctx, []string{"COM5"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if len(bus.opened) != 0 {
		t.Error("port opened after cancellation")
	}
}

func TestSurveyClosesEverything(t *testing.T) {
	bus := newFakeBus()
	a := bus.add("COM3", newFakePort())
	b := bus.add("COM5", newFakePort().reply("*IDN?", "BK Precision,5492C\n"))

	results, err := newTestLocator(bus).Survey(context.Background(), nil)
	if err != nil {
		t.Fatalf("Survey failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Matched || !errors.Is(results[0].Err, ErrTransportTimeout) {
		t.Errorf("COM3 result = %+v", results[0])
	}
	if !results[1].Matched || results[1].Identity != "BK Precision,5492C" {
		t.Errorf("COM5 result = %+v", results[1])
	}
	if !a.isClosed() || !b.isClosed() {
		t.Error("Survey left a port open")
	}
}
