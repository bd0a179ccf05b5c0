// Package session runs the measurement conversation with a 549x meter: it
// connects, selects the measurement function and polls CONF?/READ? pairs.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allbin/bkmeter/internal/trace"
	"github.com/allbin/bkmeter/scpi"
	"github.com/allbin/bkmeter/serial"
)

// Placeholder is shown until the first reading arrives.
const Placeholder = "----"

// Link is the part of serial.Transport a Session needs.
type Link interface {
	Write(cmd serial.Command) (bool, error)
	ReadFrame(limit int) (serial.Frame, error)
	Purge() error
	Close() error
	Endpoint() serial.Endpoint
}

var _ Link = (*serial.Transport)(nil)

// Config holds the start-up settings of a Session.
type Config struct {
	// Port bypasses discovery when set.
	Port string
	// Candidates restricts discovery; empty means every listed port.
	Candidates []string

	InitialMode      scpi.Mode
	FrameLimit       int
	SystemBeep       bool
	BeepOnModeChange bool
	FastReadings     bool
	Decoder          scpi.Decoder

	TransportOptions []serial.TransportOption
}

// DefaultConfig starts in DC volts with the beeper silenced.
func DefaultConfig() Config {
	return Config{
		InitialMode:      scpi.ModeVoltDC,
		FrameLimit:       serial.DefaultFrameLimit,
		BeepOnModeChange: true,
		FastReadings:     true,
		Decoder:          scpi.DefaultDecoder(),
	}
}

// Cycle is the outcome of one Poll.
type Cycle struct {
	Seq         uint64
	At          time.Time
	Mode        scpi.Mode
	Descriptor  scpi.Descriptor
	Measurement scpi.Measurement
	Reading     scpi.Reading
	ModeLine    string

	// Stale means Reading was carried over from an earlier cycle.
	Stale  bool
	Paused bool

	// Err is a recoverable problem of this cycle.
	Err error
}

// Session owns the link to one meter. Its methods must be called from a
// single goroutine.
type Session struct {
	id       string
	cfg      Config
	link     Link
	state    State
	mode     scpi.Mode
	pending  *scpi.Mode
	paused   bool
	identity string
	seq      uint64
	last     Cycle

	locator *serial.Locator
	logger  *slog.Logger
	tracer  trace.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithTracer records state changes and, for links opened by Connect, frames.
func WithTracer(l trace.Logger) Option {
	return func(s *Session) { s.tracer = l }
}

// WithLocator replaces the discovery locator built from Config.
func WithLocator(l *serial.Locator) Option {
	return func(s *Session) { s.locator = l }
}

// New returns a disconnected Session.
func New(cfg Config, opts ...Option) *Session {
	if cfg.FrameLimit <= 0 {
		cfg.FrameLimit = serial.DefaultFrameLimit
	}
	if !cfg.InitialMode.Valid() {
		cfg.InitialMode = scpi.ModeVoltDC
	}

	s := &Session{
		id:    uuid.New().String(),
		cfg:   cfg,
		state: StateDisconnected,
		mode:  cfg.InitialMode,
		last:  placeholderCycle(cfg.InitialMode),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.tracer = trace.OrNoop(s.tracer)
	s.logger = s.logger.With("session", s.id)
	return s
}

func placeholderCycle(mode scpi.Mode) Cycle {
	return Cycle{
		Mode:     mode,
		Reading:  scpi.Reading{Value: Placeholder},
		ModeLine: mode.Token() + ", ",
		Stale:    true,
	}
}

// ID is the session's UUID.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State { return s.state }

// Mode returns the active measurement mode.
func (s *Session) Mode() scpi.Mode { return s.mode }

// Identity returns the *IDN? answer, if one was read.
func (s *Session) Identity() string { return s.identity }

// Paused reports whether polling is suspended.
func (s *Session) Paused() bool { return s.paused }

// Last returns the most recent cycle.
func (s *Session) Last() Cycle { return s.last }

// Endpoint returns the connected endpoint.
func (s *Session) Endpoint() (serial.Endpoint, bool) {
	if s.link == nil {
		return serial.Endpoint{}, false
	}
	return s.link.Endpoint(), true
}

func (s *Session) transportOptions() []serial.TransportOption {
	opts := append([]serial.TransportOption{
		serial.WithLogger(s.logger),
		serial.WithTrace(s.tracer, s.id),
	}, s.cfg.TransportOptions...)
	return opts
}

// Connect opens the configured port or discovers the meter, then attaches.
func (s *Session) Connect(ctx context.Context) error {
	if s.state != StateDisconnected {
		return fmt.Errorf("%w: connect from %s", ErrInvalidState, s.state)
	}

	var (
		t   *serial.Transport
		err error
	)
	if s.cfg.Port != "" {
		t, err = serial.Open(s.cfg.Port, s.transportOptions()...)
		if err != nil {
			return err
		}
		if _, idErr := t.Identify(scpi.Identify, s.cfg.FrameLimit); idErr != nil {
			s.logger.Warn("identification failed", "port", s.cfg.Port, "error", idErr)
		}
	} else {
		loc := s.locator
		if loc == nil {
			loc = serial.NewLocator(scpi.Identify, scpi.IdentitySignature, s.transportOptions()...)
			loc.Logger = s.logger
			loc.FrameLimit = s.cfg.FrameLimit
		}
		t, err = loc.Discover(ctx, s.cfg.Candidates)
		if err != nil {
			return err
		}
	}

	return s.Attach(t, t.Identity())
}

// Attach takes ownership of an already open link, puts the meter into remote
// control and selects the initial mode.
func (s *Session) Attach(link Link, identity string) error {
	if s.state != StateDisconnected {
		return fmt.Errorf("%w: attach from %s", ErrInvalidState, s.state)
	}

	s.link = link
	s.identity = identity
	s.setState(StateConnected, "attached "+link.Endpoint().Path)
	s.logger.Info("connected", "port", link.Endpoint().Path, "identity", identity)

	startup := []serial.Command{scpi.Remote, scpi.BeepPolicy(s.cfg.SystemBeep)}
	if s.cfg.FastReadings {
		startup = append(startup, scpi.FastReadings()...)
	}
	if err := s.sendAll(startup); err != nil {
		if !serial.IsRecoverable(err) {
			return s.fail(err, "startup")
		}
		s.logger.Warn("startup command timed out", "error", err)
	}

	if err := s.selectMode(s.cfg.InitialMode, "initial mode"); err != nil {
		return err
	}
	return nil
}

// RequestMode asks for mode to be selected before the next poll.
func (s *Session) RequestMode(mode scpi.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}
	if s.state == StateClosed {
		return ErrClosed
	}
	s.pending = &mode
	return nil
}

// selectMode runs the ModeSelecting state. Timeouts leave the session in
// Polling; the request is not retried.
func (s *Session) selectMode(mode scpi.Mode, reason string) error {
	s.pending = nil
	s.setState(StateModeSelecting, reason)

	cmds := append([]serial.Command{mode.Select()}, mode.Quirks()...)
	if s.cfg.BeepOnModeChange {
		cmds = append(cmds, scpi.ForcedBeep()...)
	}

	err := s.sendAll(cmds)
	if err != nil && !serial.IsRecoverable(err) {
		return s.fail(err, "mode select")
	}
	if err != nil {
		s.logger.Warn("mode select timed out", "mode", mode.String(), "error", err)
	}

	if s.mode != mode {
		s.last = placeholderCycle(mode)
	}
	s.mode = mode
	s.setState(StatePolling, "mode "+mode.String())
	return nil
}

// Poll runs one CONF?/READ? cycle. Recoverable failures are reported in
// Cycle.Err with the previous reading marked stale; the returned error is
// non-nil only when the session is closed or has just failed fatally.
func (s *Session) Poll(ctx context.Context) (Cycle, error) {
	switch s.state {
	case StateClosed:
		return s.last, ErrClosed
	case StateDisconnected:
		return s.last, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return s.last, err
	}

	// Requests made while paused wait for remote control.
	if s.paused {
		c := s.last
		c.Paused = true
		return c, nil
	}

	var selected *scpi.Mode
	if s.pending != nil {
		selected = s.pending
		if err := s.selectMode(*s.pending, "mode requested"); err != nil {
			return s.last, err
		}
	}

	s.seq++
	cycle := Cycle{Seq: s.seq, At: time.Now(), Mode: s.mode}

	confFrame, err := s.query(scpi.QueryConfig)
	if err != nil {
		return s.recover(cycle, err)
	}

	desc, err := scpi.ParseDescriptor(confFrame.Text())
	if err != nil {
		cycle.Err = err
		desc = scpi.Descriptor{Token: s.mode.Token(), Raw: confFrame.Text()}
	}
	if m := desc.Mode(s.mode); m != s.mode {
		if selected != nil {
			err := fmt.Errorf("%w: meter reports %s after selecting %s", ErrModeNotApplied, m, *selected)
			s.logger.Warn("mode request not applied", "requested", selected.String(), "reported", m.String())
			s.tracer.Log(trace.NewErrorEvent(s.id, s.path(), err, "mode select"))
		} else {
			s.logger.Info("meter changed function", "from", s.mode.String(), "to", m.String())
		}
		s.mode = m
		cycle.Mode = m
	}
	cycle.Descriptor = desc

	readFrame, err := s.query(scpi.Read)
	if err != nil {
		return s.recover(cycle, err)
	}

	meas, err := scpi.ParseMeasurement(cycle.Mode, desc, readFrame.Text())
	cycle.Measurement = meas
	if err != nil {
		cycle.Err = err
		cycle.Reading = scpi.Reading{Value: meas.Raw + " " + cycle.Mode.Unit(), Range: "Unknown"}
	} else {
		cycle.Reading = s.cfg.Decoder.Decode(meas)
	}
	cycle.ModeLine = scpi.ModeLine(meas, cycle.Reading)

	if cycle.Reading.Beep {
		if err := s.sendAll(scpi.ForcedBeep()); err != nil && !serial.IsRecoverable(err) {
			return cycle, s.fail(err, "beep")
		}
	}

	s.last = cycle
	return cycle, nil
}

// recover turns a per-cycle I/O failure into a stale cycle, or closes the
// session when the failure is fatal.
func (s *Session) recover(cycle Cycle, err error) (Cycle, error) {
	if !serial.IsRecoverable(err) {
		return s.last, s.fail(err, "poll")
	}

	s.logger.Debug("cycle failed", "seq", cycle.Seq, "error", err)
	s.tracer.Log(trace.NewErrorEvent(s.id, s.path(), err, "poll"))

	// Late or truncated answers must not be read as the next reply.
	if perr := s.link.Purge(); perr != nil {
		s.logger.Debug("purge failed", "error", perr)
	}

	stale := s.last
	stale.Seq = cycle.Seq
	stale.At = cycle.At
	stale.Stale = true
	stale.Err = err
	return stale, nil
}

// SetPaused hands the front panel back to the user (LOC) or takes remote
// control again (SYST:REM).
func (s *Session) SetPaused(paused bool) error {
	if s.state == StateClosed {
		return ErrClosed
	}
	if s.link == nil {
		return ErrNotConnected
	}
	if paused == s.paused {
		return nil
	}

	cmd := scpi.Remote
	if paused {
		cmd = scpi.Local
	}
	if err := s.send(cmd); err != nil && !serial.IsRecoverable(err) {
		return s.fail(err, "pause")
	}
	s.paused = paused
	s.logger.Info("polling paused", "paused", paused)
	return nil
}

// Beep sounds the meter's beeper once.
func (s *Session) Beep() error {
	if s.link == nil || s.state == StateClosed {
		return ErrNotConnected
	}
	if err := s.sendAll(scpi.ForcedBeep()); err != nil && !serial.IsRecoverable(err) {
		return s.fail(err, "beep")
	}
	return nil
}

// Exchange sends an arbitrary command and, for queries, returns the answer.
func (s *Session) Exchange(cmd serial.Command) (string, error) {
	if s.link == nil || s.state == StateClosed {
		return "", ErrNotConnected
	}
	if !cmd.IsQuery() {
		err := s.send(cmd)
		if err != nil && !serial.IsRecoverable(err) {
			return "", s.fail(err, "exchange")
		}
		return "", err
	}
	frame, err := s.query(cmd)
	if err != nil && !serial.IsRecoverable(err) {
		return "", s.fail(err, "exchange")
	}
	return frame.Text(), err
}

// Close returns the meter to local control and releases the link. Errors
// from the courtesy command are ignored.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return nil
	}
	if s.link == nil {
		s.setState(StateClosed, "closed before connect")
		return nil
	}

	if err := s.send(scpi.Local); err != nil {
		s.logger.Debug("local command failed", "error", err)
	}
	s.setState(StateClosed, "closed")
	return s.link.Close()
}

// fail closes the session after a fatal I/O error and returns err.
func (s *Session) fail(err error, where string) error {
	s.logger.Error("fatal link error", "context", where, "error", err)
	s.tracer.Log(trace.NewErrorEvent(s.id, s.path(), err, where))

	if s.link != nil {
		_ = s.send(scpi.Local)
		s.setState(StateClosed, where+": "+err.Error())
		_ = s.link.Close()
	} else {
		s.setState(StateClosed, where+": "+err.Error())
	}
	return err
}

func (s *Session) send(cmd serial.Command) error {
	ok, err := s.link.Write(cmd)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: writing %q", serial.ErrTransportTimeout, cmd.String())
	}
	return nil
}

// sendAll sends every command and returns the first error. A timeout does
// not stop the remaining commands; a fatal error does.
func (s *Session) sendAll(cmds []serial.Command) error {
	var first error
	for _, cmd := range cmds {
		err := s.send(cmd)
		if err == nil {
			continue
		}
		if !serial.IsRecoverable(err) {
			return err
		}
		if first == nil {
			first = err
		}
	}
	return first
}

func (s *Session) query(cmd serial.Command) (serial.Frame, error) {
	if err := s.send(cmd); err != nil {
		return serial.Frame{}, err
	}
	return s.link.ReadFrame(s.cfg.FrameLimit)
}

func (s *Session) setState(to State, reason string) {
	from := s.state
	if from == to {
		return
	}
	if !canTransition(from, to) {
		s.logger.Error("illegal state transition", "from", from.String(), "to", to.String())
		return
	}
	s.state = to
	s.logger.Debug("state change", "from", from.String(), "to", to.String(), "reason", reason)
	s.tracer.Log(trace.NewStateEvent(s.id, s.path(), from.String(), to.String(), reason))
}

func (s *Session) path() string {
	if s.link == nil {
		return s.cfg.Port
	}
	return s.link.Endpoint().Path
}

// IsFatal reports whether err ended the session.
func IsFatal(err error) bool {
	return err != nil && !serial.IsRecoverable(err) && !errors.Is(err, context.Canceled)
}
