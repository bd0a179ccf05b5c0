package serial

import "errors"

// Transport-level error classes. Callers classify failures with errors.Is.
var (
	ErrPortUnavailable  = errors.New("serial port unavailable")
	ErrConfiguration    = errors.New("serial port configuration failed")
	ErrTransportTimeout = errors.New("transport timeout waiting for response")
	ErrBufferExceeded   = errors.New("response frame exceeded buffer limit")
	ErrDeviceNotFound   = errors.New("no matching instrument found on any serial port")
	ErrFatalIO          = errors.New("fatal serial I/O failure")
)

// Port-level errors
var (
	ErrPermissionDenied = errors.New("permission denied accessing serial device")
	ErrDeviceInUse      = errors.New("serial device already in use")
	ErrInvalidBaudRate  = errors.New("invalid baud rate")
	ErrInvalidConfig    = errors.New("invalid serial configuration")
	ErrPortClosed       = errors.New("serial port is closed")
	ErrWriteTimeout     = errors.New("write operation timed out")
	ErrReadTimeout      = errors.New("read operation timed out")
	ErrNoSuchDevice     = errors.New("serial device does not exist")

	ErrUSBInfoNotAvailable  = errors.New("USB device information not available")
	ErrUSBResetNotAvailable = errors.New("usbreset utility not available")
)

// IsRecoverable reports whether err only spoils the current request/reply
// exchange and the link can be used again on the next cycle.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrTransportTimeout) || errors.Is(err, ErrBufferExceeded)
}
