package serial

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ReenumerateDelay is how long a reset adapter takes to come back.
	ReenumerateDelay = 2 * time.Second

	sysTTYDir = "/sys/class/tty"

	// runUSBReset runs usbreset with a "BBB/DDD" device path.
	runUSBReset = func(busDev string) ([]byte, error) {
		return exec.Command("usbreset", busDev).CombinedOutput()
	}
	lookUSBReset = func() bool {
		_, err := exec.LookPath("usbreset")
		return err == nil
	}
)

// IsUSBResetAvailable reports whether the usbreset utility is in PATH.
func IsUSBResetAvailable() bool {
	return lookUSBReset()
}

// USBAddress returns the bus and device number of the USB device behind a
// tty, as found in sysfs.
func USBAddress(portPath string) (bus, dev string, err error) {
	dir, err := filepath.EvalSymlinks(filepath.Join(sysTTYDir, filepath.Base(portPath), "device"))
	if err != nil {
		return "", "", fmt.Errorf("%w: %s", ErrUSBInfoNotAvailable, portPath)
	}

	// The tty's interface sits below the USB device that owns busnum/devnum.
	for ; dir != "/" && dir != "."; dir = filepath.Dir(dir) {
		b, berr := os.ReadFile(filepath.Join(dir, "busnum"))
		d, derr := os.ReadFile(filepath.Join(dir, "devnum"))
		if berr == nil && derr == nil {
			return strings.TrimSpace(string(b)), strings.TrimSpace(string(d)), nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", ErrUSBInfoNotAvailable, portPath)
}

// ResetUSBDevice performs a USB-level reset of the adapter behind portPath.
// It recovers a USB serial bridge that stopped answering without unplugging
// the meter. Requires usbreset (usbutils) and usually root.
func ResetUSBDevice(portPath string) error {
	bus, dev, err := USBAddress(portPath)
	if err != nil {
		return err
	}
	if !IsUSBResetAvailable() {
		return ErrUSBResetNotAvailable
	}

	// usbreset expects zero-padded 3-digit bus and device numbers
	busDev := fmt.Sprintf("%03s/%03s", bus, dev)
	if output, err := runUSBReset(busDev); err != nil {
		return fmt.Errorf("usbreset %s failed: %w (output: %s)", busDev, err, strings.TrimSpace(string(output)))
	}

	time.Sleep(ReenumerateDelay)
	return nil
}

// ResetUSBDeviceBySerial resets the adapter with the given USB serial number.
// The port path may change after a reset; the serial number does not.
func ResetUSBDeviceBySerial(serialNumber string) error {
	ports, err := ListPorts()
	if err != nil {
		return err
	}

	for _, portPath := range ports {
		info, err := GetPortInfo(portPath)
		if err != nil {
			continue
		}
		if info.IsUSB && info.SerialNumber == serialNumber {
			return ResetUSBDevice(portPath)
		}
	}

	return fmt.Errorf("%w: no USB device with serial %s", ErrDeviceNotFound, serialNumber)
}
