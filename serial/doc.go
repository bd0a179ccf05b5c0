// Package serial is the line layer of the BK Precision 549x client: it opens
// a serial endpoint with a fixed line profile, sends CRLF terminated SCPI
// commands and reads LF terminated response frames under bounded timeouts.
//
// # Basic Usage
//
// Open a known port with the default 9600 8N1 profile:
//
//	t, err := serial.Open("/dev/ttyUSB0")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Close()
//
//	frame, err := t.Query("*IDN?", serial.DefaultFrameLimit)
//
// # Timeouts
//
// Every transfer is bounded. A write of n bytes may take
// WriteConstant + n*WriteMultiplier, the first byte of a frame of at most
// limit bytes may take ReadConstant + limit*ReadMultiplier and every
// following byte ReadInterval. Nothing blocks indefinitely:
//
//	ok, err := t.Write("READ?")   // ok == false: timed out, retry next cycle
//	frame, err := t.ReadFrame(64) // errors.Is(err, serial.ErrTransportTimeout)
//
// ErrTransportTimeout and ErrBufferExceeded are recoverable, see IsRecoverable.
// Anything wrapping ErrFatalIO means the device is gone.
//
// # Port Discovery
//
// A Locator probes candidates in order and keeps the first match open:
//
//	loc := serial.NewLocator("*IDN?", "BK Precision,549")
//	t, err := loc.Discover(ctx, nil) // nil: enumerate with ListPorts
//	if errors.Is(err, serial.ErrDeviceNotFound) {
//	    ...
//	}
//
// # Platform Support
//
// On Linux the port is driven directly through termios and poll(2) and is
// locked with flock(2). Other platforms use go.bug.st/serial.
package serial
