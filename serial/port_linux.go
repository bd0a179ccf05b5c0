//go:build linux

package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// port is the termios backed Port used on Linux.
type port struct {
	mu          sync.RWMutex
	fd          int
	path        string
	readTimeout time.Duration
	writeBudget Timeouts
	closed      bool
}

// Ensure port implements Port interface at compile time
var _ Port = (*port)(nil)

// openPort opens the device non-blocking and takes an exclusive advisory
// lock so a second process cannot talk to the same meter.
func openPort(path string, config Config) (Port, error) {
	flags := unix.O_RDWR | unix.O_NOCTTY | unix.O_NONBLOCK | unix.O_CLOEXEC

	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, classifyOpenError(err))
	}

	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("failed to lock %s: %w", path, ErrDeviceInUse)
		}
		return nil, fmt.Errorf("failed to lock %s: %v", path, err)
	}

	return &port{
		fd:          fd,
		path:        path,
		readTimeout: config.Timeouts.ReadBudget(1),
		writeBudget: config.Timeouts,
	}, nil
}

func classifyOpenError(err error) error {
	switch {
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENXIO), errors.Is(err, unix.ENODEV):
		return ErrNoSuchDevice
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return ErrPermissionDenied
	case errors.Is(err, unix.EBUSY):
		return ErrDeviceInUse
	default:
		return err
	}
}

// getBaudRate converts an integer baud rate to the unix constant
func getBaudRate(rate int) (uint32, error) {
	switch rate {
	case 50:
		return unix.B50, nil
	case 75:
		return unix.B75, nil
	case 110:
		return unix.B110, nil
	case 134:
		return unix.B134, nil
	case 150:
		return unix.B150, nil
	case 200:
		return unix.B200, nil
	case 300:
		return unix.B300, nil
	case 600:
		return unix.B600, nil
	case 1200:
		return unix.B1200, nil
	case 1800:
		return unix.B1800, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 921600:
		return unix.B921600, nil
	default:
		return 0, ErrInvalidBaudRate
	}
}

// buildTermios derives a raw-mode termios from base for config. Applying the
// result twice leaves the device in the same state.
func buildTermios(base unix.Termios, config Config) (*unix.Termios, error) {
	baudRate, err := getBaudRate(config.BaudRate)
	if err != nil {
		return nil, err
	}

	t := base
	t.Iflag = 0 // No input processing
	t.Oflag = 0 // No output processing
	t.Lflag = 0 // No line processing (raw mode)
	t.Cflag = unix.CREAD | unix.CLOCAL

	switch config.DataBits {
	case 5:
		t.Cflag |= unix.CS5
	case 6:
		t.Cflag |= unix.CS6
	case 7:
		t.Cflag |= unix.CS7
	case 8:
		t.Cflag |= unix.CS8
	default:
		return nil, ErrInvalidConfig
	}

	if config.StopBits == 2 {
		t.Cflag |= unix.CSTOPB
	}

	switch config.Parity {
	case ParityNone:
	case ParityOdd:
		t.Cflag |= unix.PARENB | unix.PARODD
	case ParityEven:
		t.Cflag |= unix.PARENB
	case ParityMark:
		t.Cflag |= unix.PARENB | unix.PARODD | unix.CMSPAR
	case ParitySpace:
		t.Cflag |= unix.PARENB | unix.CMSPAR
	default:
		return nil, ErrInvalidConfig
	}

	t.Cflag = (t.Cflag &^ unix.CBAUD) | baudRate
	t.Ispeed = baudRate
	t.Ospeed = baudRate

	// Reads are driven by poll, the driver must never block on its own.
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0

	return &t, nil
}

// Configure applies the line profile with a single TCSETS.
func (p *port) Configure(config Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}

	current, err := unix.IoctlGetTermios(p.fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("failed to get termios: %w", err)
	}

	termios, err := buildTermios(*current, config)
	if err != nil {
		return err
	}

	if err := unix.IoctlSetTermios(p.fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("failed to set termios: %w", err)
	}

	p.readTimeout = config.Timeouts.ReadBudget(1)
	p.writeBudget = config.Timeouts
	return nil
}

// SetReadTimeout sets how long the next Read waits for its first byte.
func (p *port) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	p.readTimeout = d
	return nil
}

// Read reads data from the serial port
func (p *port) Read(buf []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}
	if len(buf) == 0 {
		return 0, nil
	}

	ready, err := waitFd(p.fd, unix.POLLIN, p.readTimeout)
	if err != nil {
		return 0, err
	}
	if !ready {
		return 0, ErrReadTimeout
	}

	n, err := unix.Read(p.fd, buf)
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return 0, ErrReadTimeout
	case err != nil:
		return 0, err
	case n == 0:
		// Readable with no data means the device went away.
		return 0, io.ErrUnexpectedEOF
	}
	return n, nil
}

// Write writes data to the serial port within the write budget
func (p *port) Write(data []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}

	deadline := time.Now().Add(p.writeBudget.WriteBudget(len(data)))
	written := 0
	for written < len(data) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return written, ErrWriteTimeout
		}

		ready, err := waitFd(p.fd, unix.POLLOUT, remaining)
		if err != nil {
			return written, err
		}
		if !ready {
			return written, ErrWriteTimeout
		}

		n, err := unix.Write(p.fd, data[written:])
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

// waitFd polls fd for events until timeout. It reports false on timeout.
func waitFd(fd int, events int16, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		ms := int(time.Until(deadline) / time.Millisecond)
		if ms < 0 {
			ms = 0
		}

		fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
		n, err := unix.Poll(fds, ms)
		if errors.Is(err, unix.EINTR) {
			if time.Now().After(deadline) {
				return false, nil
			}
			continue
		}
		if err != nil {
			return false, fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			return false, nil
		}

		revents := fds[0].Revents
		if revents&events == 0 && revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return false, fmt.Errorf("poll revents %#x: %w", revents, io.ErrUnexpectedEOF)
		}
		return true, nil
	}
}

// Close closes the serial port. The flock is released with the descriptor.
func (p *port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}

	err := unix.Close(p.fd)
	p.closed = true
	return err
}

// Drain waits until all output written to the port has been transmitted
func (p *port) Drain() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}

	return unix.IoctlSetInt(p.fd, unix.TCSBRK, 1)
}

// FlushInput discards data received but not read
func (p *port) FlushInput() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}

	return unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCIFLUSH)
}

// FlushOutput discards data written but not transmitted
func (p *port) FlushOutput() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}

	return unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCOFLUSH)
}
