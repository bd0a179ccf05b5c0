package serial

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/allbin/bkmeter/internal/trace"
)

// DefaultSettleDelay is the pause after every command write. The meter drops
// characters when commands arrive back to back.
const DefaultSettleDelay = 10 * time.Millisecond

// Transport owns one open serial endpoint and moves CRLF commands out and LF
// terminated frames in. A Transport is not safe for concurrent use.
type Transport struct {
	port     Port
	endpoint Endpoint
	settle   time.Duration
	tracer   trace.Logger
	traceID  string
	logger   *slog.Logger
	identity string
	closed   bool
}

// TransportOption configures Open.
type TransportOption func(*transportOptions)

type transportOptions struct {
	opener   Opener
	portOpts []Option
	settle   time.Duration
	tracer   trace.Logger
	traceID  string
	logger   *slog.Logger
}

// WithOpener replaces the platform opener, mainly for tests.
func WithOpener(opener Opener) TransportOption {
	return func(o *transportOptions) { o.opener = opener }
}

// WithPortOptions applies line profile options on top of 9600 8N1.
func WithPortOptions(opts ...Option) TransportOption {
	return func(o *transportOptions) { o.portOpts = append(o.portOpts, opts...) }
}

// WithSettleDelay overrides DefaultSettleDelay. Zero disables the pause.
func WithSettleDelay(d time.Duration) TransportOption {
	return func(o *transportOptions) { o.settle = d }
}

// WithTrace records every frame to l tagged with id.
func WithTrace(l trace.Logger, id string) TransportOption {
	return func(o *transportOptions) {
		o.tracer = l
		o.traceID = id
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) TransportOption {
	return func(o *transportOptions) { o.logger = l }
}

func newTransportOptions(opts []TransportOption) transportOptions {
	o := transportOptions{
		opener: DefaultOpener,
		settle: DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.tracer = trace.OrNoop(o.tracer)
	return o
}

// claims tracks endpoints held by this process.
var claims = struct {
	sync.Mutex
	held map[string]bool
}{held: make(map[string]bool)}

func claim(path string) bool {
	claims.Lock()
	defer claims.Unlock()
	if claims.held[path] {
		return false
	}
	claims.held[path] = true
	return true
}

func release(path string) {
	claims.Lock()
	defer claims.Unlock()
	delete(claims.held, path)
}

// Open acquires path, applies the line profile and purges both directions.
func Open(path string, opts ...TransportOption) (*Transport, error) {
	o := newTransportOptions(opts)

	endpoint, err := NewEndpoint(path, o.portOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfiguration, path, err)
	}

	if !claim(path) {
		return nil, fmt.Errorf("%w: %s: %w", ErrPortUnavailable, path, ErrDeviceInUse)
	}

	p, err := o.opener(path, endpoint.Config)
	if err != nil {
		release(path)
		return nil, fmt.Errorf("%w: %s: %w", ErrPortUnavailable, path, err)
	}

	t := &Transport{
		port:     p,
		endpoint: endpoint,
		settle:   o.settle,
		tracer:   o.tracer,
		traceID:  o.traceID,
		logger:   o.logger.With("port", path),
	}

	if err := t.Configure(); err != nil {
		return nil, err
	}

	if err := t.Purge(); err != nil {
		t.Close()
		return nil, fmt.Errorf("%w: purge %s: %w", ErrPortUnavailable, path, err)
	}

	t.logger.Debug("port opened", "profile", endpoint.Config.String())
	return t, nil
}

// Configure (re)applies the endpoint's line profile. On failure the port is
// closed and released.
func (t *Transport) Configure() error {
	if t.closed {
		return fmt.Errorf("%w: %w", ErrConfiguration, ErrPortClosed)
	}
	if err := t.port.Configure(t.endpoint.Config); err != nil {
		t.Close()
		return fmt.Errorf("%w: %s: %w", ErrConfiguration, t.endpoint.Path, err)
	}
	return nil
}

// Purge discards pending input and output.
func (t *Transport) Purge() error {
	if t.closed {
		return ErrPortClosed
	}
	if err := t.port.FlushInput(); err != nil {
		return err
	}
	return t.port.FlushOutput()
}

// Write sends cmd terminated by CRLF. It returns false without an error when
// the write budget elapsed, and a wrapped ErrFatalIO when the device failed.
func (t *Transport) Write(cmd Command) (bool, error) {
	if t.closed {
		return false, fmt.Errorf("%w: %w", ErrFatalIO, ErrPortClosed)
	}

	data := cmd.Bytes()
	n, err := t.port.Write(data)
	t.tracer.Log(trace.NewFrameEvent(t.traceID, t.endpoint.Path, trace.DirectionOut, data[:n]))

	switch {
	case errors.Is(err, ErrWriteTimeout):
		t.logger.Warn("write timed out", "command", cmd.String(), "written", n)
		return false, nil
	case err != nil:
		t.tracer.Log(trace.NewErrorEvent(t.traceID, t.endpoint.Path, err, "write"))
		return false, fmt.Errorf("%w: write %q: %w", ErrFatalIO, cmd.String(), err)
	case n != len(data):
		t.logger.Warn("short write", "command", cmd.String(), "written", n)
		return false, nil
	}

	if t.settle > 0 {
		time.Sleep(t.settle)
	}
	return true, nil
}

// ReadFrame reads bytes until LF, which is consumed and not returned.
//
// Every byte, the first included, may take ReadBudget(1); once bytes flow
// the wait drops to ReadInterval.
// A silent line yields ErrTransportTimeout with an empty frame; a line that
// stops mid-frame yields the partial bytes with ErrTransportTimeout. When
// limit bytes arrive without LF the first limit-1 are returned with
// ErrBufferExceeded and the rest stays in the driver.
func (t *Transport) ReadFrame(limit int) (Frame, error) {
	if t.closed {
		return Frame{}, fmt.Errorf("%w: %w", ErrFatalIO, ErrPortClosed)
	}
	if limit < 1 {
		return Frame{}, fmt.Errorf("%w: frame limit %d", ErrInvalidConfig, limit)
	}

	timeouts := t.endpoint.Config.Timeouts
	interval := timeouts.ReadInterval
	if interval <= 0 {
		interval = timeouts.ReadBudget(1)
	}

	buf := make([]byte, 0, limit)
	one := make([]byte, 1)
	timeout := timeouts.ReadBudget(1)
	current := time.Duration(-1)

	for {
		if len(buf) >= limit {
			frame := Frame(buf[:limit-1])
			t.traceIn(frame, true, false)
			return frame, fmt.Errorf("%w: %d bytes without terminator", ErrBufferExceeded, limit)
		}

		if timeout != current {
			if err := t.port.SetReadTimeout(timeout); err != nil {
				return Frame(buf), fmt.Errorf("%w: %w", ErrFatalIO, err)
			}
			current = timeout
		}

		n, err := t.port.Read(one)
		if errors.Is(err, ErrReadTimeout) || (err == nil && n == 0) {
			t.traceIn(Frame(buf), false, true)
			if len(buf) == 0 {
				return Frame{}, ErrTransportTimeout
			}
			return Frame(buf), fmt.Errorf("%w after %d bytes", ErrTransportTimeout, len(buf))
		}
		if err != nil {
			t.tracer.Log(trace.NewErrorEvent(t.traceID, t.endpoint.Path, err, "read"))
			return Frame(buf), fmt.Errorf("%w: read %s: %w", ErrFatalIO, t.endpoint.Path, err)
		}

		if one[0] == '\n' {
			frame := Frame(buf)
			t.traceIn(frame, false, false)
			return frame, nil
		}
		buf = append(buf, one[0])
		timeout = interval
	}
}

func (t *Transport) traceIn(frame Frame, truncated, timedOut bool) {
	event := trace.NewFrameEvent(t.traceID, t.endpoint.Path, trace.DirectionIn, frame)
	event.Frame.Truncated = truncated
	event.Frame.TimedOut = timedOut
	t.tracer.Log(event)
}

// Query writes cmd and reads one response frame.
func (t *Transport) Query(cmd Command, limit int) (Frame, error) {
	ok, err := t.Write(cmd)
	if err != nil {
		return Frame{}, err
	}
	if !ok {
		return Frame{}, fmt.Errorf("%w: writing %q", ErrTransportTimeout, cmd.String())
	}
	return t.ReadFrame(limit)
}

// Identify sends probe and records the response as the endpoint identity.
func (t *Transport) Identify(probe Command, limit int) (string, error) {
	frame, err := t.Query(probe, limit)
	if err != nil && !errors.Is(err, ErrBufferExceeded) {
		return "", err
	}
	t.identity = frame.Text()
	return t.identity, err
}

// Identity is the last response to Identify, or "".
func (t *Transport) Identity() string {
	return t.identity
}

// Endpoint returns the device path and line profile.
func (t *Transport) Endpoint() Endpoint {
	return t.endpoint
}

// Drain blocks until queued output has left the UART.
func (t *Transport) Drain() error {
	if t.closed {
		return ErrPortClosed
	}
	return t.port.Drain()
}

// Close releases the device. Calling Close more than once is a no-op.
func (t *Transport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	release(t.endpoint.Path)

	err := t.port.Close()
	if errors.Is(err, ErrPortClosed) {
		err = nil
	}
	t.logger.Debug("port closed")
	return err
}
