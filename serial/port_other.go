//go:build !linux

package serial

import (
	"errors"
	"fmt"
	"sync"
	"time"

	bugst "go.bug.st/serial"
)

type writeResult struct {
	n   int
	err error
}

// port wraps go.bug.st/serial on platforms without the termios backend.
type port struct {
	mu          sync.Mutex
	p           bugst.Port
	readTimeout time.Duration
	timeouts    Timeouts
	closed      bool

	// inflight is the result of a write that outlived its budget. No new
	// write starts until it has finished.
	inflight chan writeResult
}

var _ Port = (*port)(nil)

func toMode(config Config) *bugst.Mode {
	mode := &bugst.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
		StopBits: bugst.OneStopBit,
	}
	if config.StopBits == 2 {
		mode.StopBits = bugst.TwoStopBits
	}
	switch config.Parity {
	case ParityOdd:
		mode.Parity = bugst.OddParity
	case ParityEven:
		mode.Parity = bugst.EvenParity
	case ParityMark:
		mode.Parity = bugst.MarkParity
	case ParitySpace:
		mode.Parity = bugst.SpaceParity
	default:
		mode.Parity = bugst.NoParity
	}
	return mode
}

func classifyPortError(err error) error {
	var portErr *bugst.PortError
	if !errors.As(err, &portErr) {
		return err
	}
	switch portErr.Code() {
	case bugst.PortNotFound, bugst.InvalidSerialPort:
		return ErrNoSuchDevice
	case bugst.PortBusy:
		return ErrDeviceInUse
	case bugst.PermissionDenied:
		return ErrPermissionDenied
	case bugst.InvalidSpeed:
		return ErrInvalidBaudRate
	case bugst.InvalidDataBits, bugst.InvalidParity, bugst.InvalidStopBits, bugst.InvalidTimeoutValue:
		return ErrInvalidConfig
	case bugst.PortClosed:
		return ErrPortClosed
	default:
		return err
	}
}

func openPort(path string, config Config) (Port, error) {
	p, err := bugst.Open(path, toMode(config))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, classifyPortError(err))
	}
	return &port{
		p:           p,
		readTimeout: config.Timeouts.ReadBudget(1),
		timeouts:    config.Timeouts,
	}, nil
}

func (p *port) Configure(config Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	if err := p.p.SetMode(toMode(config)); err != nil {
		return classifyPortError(err)
	}
	p.timeouts = config.Timeouts
	p.readTimeout = config.Timeouts.ReadBudget(1)
	return nil
}

func (p *port) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	p.readTimeout = d
	return nil
}

func (p *port) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrPortClosed
	}
	sp, timeout := p.p, p.readTimeout
	p.mu.Unlock()

	if err := sp.SetReadTimeout(timeout); err != nil {
		return 0, classifyPortError(err)
	}
	n, err := sp.Read(buf)
	if err != nil {
		return n, classifyPortError(err)
	}
	if n == 0 {
		return 0, ErrReadTimeout
	}
	return n, nil
}

// Write hands data to the driver and gives up once the write budget elapsed.
// A write that timed out keeps the port busy: the next Write first waits for
// it within its own budget and reports ErrWriteTimeout if it is still stuck.
func (p *port) Write(data []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrPortClosed
	}
	sp, budget, inflight := p.p, p.timeouts.WriteBudget(len(data)), p.inflight
	p.mu.Unlock()

	timer := time.NewTimer(budget)
	defer timer.Stop()

	if inflight != nil {
		select {
		case <-inflight:
			p.mu.Lock()
			p.inflight = nil
			p.mu.Unlock()
		case <-timer.C:
			return 0, ErrWriteTimeout
		}
	}

	resultCh := make(chan writeResult, 1)
	go func() {
		n, err := sp.Write(data)
		resultCh <- writeResult{n: n, err: err}
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			return result.n, classifyPortError(result.err)
		}
		return result.n, nil
	case <-timer.C:
		p.mu.Lock()
		p.inflight = resultCh
		p.mu.Unlock()
		return 0, ErrWriteTimeout
	}
}

func (p *port) Drain() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	return p.p.Drain()
}

func (p *port) FlushInput() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	return p.p.ResetInputBuffer()
}

func (p *port) FlushOutput() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	return p.p.ResetOutputBuffer()
}

func (p *port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}
	p.closed = true
	return p.p.Close()
}
