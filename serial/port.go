package serial

import "time"

// Port is a raw, already opened serial device.
//
// Read waits at most the current read timeout for the first byte and returns
// ErrReadTimeout when nothing arrived. Write returns ErrWriteTimeout when the
// configured write budget elapsed before all bytes were handed to the driver.
type Port interface {
	Configure(config Config) error
	SetReadTimeout(d time.Duration) error
	Read(buf []byte) (int, error)
	Write(data []byte) (int, error)
	Drain() error
	FlushInput() error
	FlushOutput() error
	Close() error
}

// Opener opens the device at path. The returned port may or may not already
// carry config; Transport always calls Configure afterwards.
type Opener func(path string, config Config) (Port, error)

// DefaultOpener opens a real serial device for the current platform.
var DefaultOpener Opener = openPort
