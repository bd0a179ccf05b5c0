package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allbin/bkmeter/internal/trace"
	"github.com/allbin/bkmeter/scpi"
	"github.com/allbin/bkmeter/serial"
)

// ---------------------------------------------------------------------------
// stubLink
// ---------------------------------------------------------------------------

type stubLink struct {
	mock.Mock
	sent []string
}

func (l *stubLink) Write(cmd serial.Command) (bool, error) {
	l.sent = append(l.sent, cmd.String())
	ret := l.Called(cmd)
	return ret.Bool(0), ret.Error(1)
}

func (l *stubLink) ReadFrame(limit int) (serial.Frame, error) {
	ret := l.Called(limit)
	var f serial.Frame
	if ret.Get(0) != nil {
		f = ret.Get(0).(serial.Frame)
	}
	return f, ret.Error(1)
}

func (l *stubLink) Purge() error { return l.Called().Error(0) }
func (l *stubLink) Close() error { return l.Called().Error(0) }
func (l *stubLink) Endpoint() serial.Endpoint {
	return serial.Endpoint{Path: "/dev/ttyUSB0", Config: serial.DefaultConfig()}
}

func newStubLink() *stubLink {
	l := &stubLink{}
	l.On("Purge").Return(nil).Maybe()
	return l
}

func (l *stubLink) acceptWrites() *stubLink {
	l.On("Write", mock.Anything).Return(true, nil)
	return l
}

func (l *stubLink) frames(frames ...string) *stubLink {
	for _, f := range frames {
		l.On("ReadFrame", mock.Anything).Return(serial.Frame(f), nil).Once()
	}
	return l
}

func (l *stubLink) resetSent() { l.sent = nil }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FastReadings = false
	cfg.BeepOnModeChange = false
	return cfg
}

func attached(t *testing.T, cfg Config, l *stubLink) *Session {
	t.Helper()
	s := New(cfg)
	require.NoError(t, s.Attach(l, "BK Precision,5492C,1,1"))
	require.Equal(t, StatePolling, s.State())
	l.resetSent()
	return s
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestAttachStartupSequence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialMode = scpi.ModeResistance
	l := newStubLink().acceptWrites()

	s := New(cfg)
	assert.Equal(t, StateDisconnected, s.State())
	assert.NotEmpty(t, s.ID())

	require.NoError(t, s.Attach(l, "BK Precision,5492C"))

	assert.Equal(t, StatePolling, s.State())
	assert.Equal(t, scpi.ModeResistance, s.Mode())
	assert.Equal(t, []string{
		"SYST:REM",
		"SYST:BEEP:STAT 0",
		"VOLT:AC:SPEE FAST",
		"VOLT:NPLC 1",
		"CONF:RES",
		"RES:ZERO:AUTO ON",
		"SYST:BEEP:STAT 1",
		"SYST:BEEP",
		"SYST:BEEP:STAT 0",
	}, l.sent)
	assert.Equal(t, Placeholder, s.Last().Reading.Value)
}

func TestAttachTwiceIsInvalid(t *testing.T) {
	l := newStubLink().acceptWrites()
	s := attached(t, testConfig(), l)

	err := s.Attach(l, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestPollDecodes(t *testing.T) {
	l := newStubLink().acceptWrites().frames(
		"VOLT,+1.00000000E+00,+1.00000000E-05",
		"+5.12345000E+00",
	)
	s := attached(t, testConfig(), l)

	c, err := s.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"CONF?", "READ?"}, l.sent)
	assert.Equal(t, "+05.12345 V DC", c.Reading.Value)
	assert.Equal(t, "1V", c.Reading.Range)
	assert.Equal(t, "VOLT, 1V", c.ModeLine)
	assert.Equal(t, uint64(1), c.Seq)
	assert.False(t, c.Stale)
	assert.NoError(t, c.Err)
	assert.Equal(t, StatePolling, s.State())
	assert.Equal(t, c, s.Last())
}

func TestPollTimeoutKeepsLastReading(t *testing.T) {
	l := newStubLink().acceptWrites().frames(
		"VOLT,+1.00000000E+01,+1.00000000E-04",
		"+1.23400000E+00",
	)
	l.On("ReadFrame", mock.Anything).Return(serial.Frame{}, serial.ErrTransportTimeout).Once()
	s := attached(t, testConfig(), l)

	first, err := s.Poll(context.Background())
	require.NoError(t, err)

	second, err := s.Poll(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, second.Err, serial.ErrTransportTimeout)
	assert.True(t, second.Stale)
	assert.Equal(t, first.Reading, second.Reading)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, StatePolling, s.State())
	l.AssertCalled(t, "Purge")
}

func TestPollWriteTimeoutIsRecoverable(t *testing.T) {
	l := newStubLink()
	l.On("Write", serial.Command("CONF?")).Return(false, nil).Once()
	l.On("Write", mock.Anything).Return(true, nil)
	s := New(testConfig())
	require.NoError(t, s.Attach(l, ""))

	c, err := s.Poll(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, c.Err, serial.ErrTransportTimeout)
	assert.Equal(t, Placeholder, c.Reading.Value)
	assert.True(t, c.Stale)
}

func TestPollBufferExceededIsRecoverable(t *testing.T) {
	l := newStubLink().acceptWrites().frames("VOLT,+1.0E+00,+1.0E-05")
	l.On("ReadFrame", mock.Anything).Return(serial.Frame("+5.123"), serial.ErrBufferExceeded).Once()
	s := attached(t, testConfig(), l)

	c, err := s.Poll(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, c.Err, serial.ErrBufferExceeded)
	assert.True(t, c.Stale)
	l.AssertCalled(t, "Purge")
}

func TestPollFatalClosesSession(t *testing.T) {
	l := newStubLink().acceptWrites()
	l.On("ReadFrame", mock.Anything).Return(serial.Frame{}, fmt.Errorf("%w: %w", serial.ErrFatalIO, io.ErrUnexpectedEOF)).Once()
	l.On("Close").Return(nil).Once()
	s := attached(t, testConfig(), l)

	_, err := s.Poll(context.Background())
	require.ErrorIs(t, err, serial.ErrFatalIO)
	assert.True(t, IsFatal(err))
	assert.Equal(t, StateClosed, s.State())
	assert.Contains(t, l.sent, "LOC")
	l.AssertExpectations(t)

	_, err = s.Poll(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPollProtocolMismatch(t *testing.T) {
	l := newStubLink().acceptWrites().frames("VOLT,+1.0E+00,+1.0E-05", "garbage")
	s := attached(t, testConfig(), l)

	c, err := s.Poll(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, c.Err, scpi.ErrProtocolMismatch)
	assert.Equal(t, "garbage V DC", c.Reading.Value)
	assert.Equal(t, "Unknown", c.Reading.Range)
	assert.Equal(t, StatePolling, s.State())
}

func TestPollFollowsFrontPanelMode(t *testing.T) {
	l := newStubLink().acceptWrites().frames("RES,+1.00000000E+04,+1E-01", "+4.7E+03")
	s := attached(t, testConfig(), l)

	c, err := s.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scpi.ModeResistance, c.Mode)
	assert.Equal(t, scpi.ModeResistance, s.Mode())
	assert.Equal(t, "04.7000 kΩ", c.Reading.Value)
}

func TestRequestModeSelectsBeforeNextPoll(t *testing.T) {
	l := newStubLink().acceptWrites().frames("CAP,+1.00000000E-06,+1E-10", "+4.7E-07")
	cfg := testConfig()
	cfg.BeepOnModeChange = true
	s := attached(t, cfg, l)

	require.NoError(t, s.RequestMode(scpi.ModeCapacitance))
	assert.Equal(t, StatePolling, s.State())
	assert.Empty(t, l.sent)

	c, err := s.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"CONF:CAP",
		"SYST:BEEP:STAT 1", "SYST:BEEP", "SYST:BEEP:STAT 0",
		"CONF?", "READ?",
	}, l.sent)
	assert.Equal(t, "1µF", c.Reading.Range)
	assert.Equal(t, scpi.ModeCapacitance, s.Mode())

	assert.ErrorIs(t, s.RequestMode(scpi.Mode(42)), ErrInvalidMode)
}

func TestContinuityBeepAdvisory(t *testing.T) {
	l := newStubLink().acceptWrites().frames("CONT,+1.0E+03,+1E-01", "+5.00000000E-01")
	cfg := testConfig()
	cfg.InitialMode = scpi.ModeContinuity
	s := attached(t, cfg, l)

	c, err := s.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "SHRT [00.5Ω]", c.Reading.Value)
	assert.True(t, c.Reading.Beep)
	assert.Equal(t, []string{"CONF?", "READ?", "SYST:BEEP:STAT 1", "SYST:BEEP", "SYST:BEEP:STAT 0"}, l.sent)
}

func TestPauseHandsBackFrontPanel(t *testing.T) {
	l := newStubLink().acceptWrites()
	s := attached(t, testConfig(), l)

	require.NoError(t, s.SetPaused(true))
	assert.True(t, s.Paused())
	require.NoError(t, s.SetPaused(true))

	c, err := s.Poll(context.Background())
	require.NoError(t, err)
	assert.True(t, c.Paused)

	require.NoError(t, s.RequestMode(scpi.ModeDiode))
	_, err = s.Poll(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.SetPaused(false))
	assert.Equal(t, []string{"LOC", "SYST:REM"}, l.sent)
	l.AssertNotCalled(t, "ReadFrame", mock.Anything)
}

func TestCloseSendsLocal(t *testing.T) {
	l := newStubLink().acceptWrites()
	l.On("Close").Return(nil).Once()
	s := attached(t, testConfig(), l)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, []string{"LOC"}, l.sent)
	l.AssertNumberOfCalls(t, "Close", 1)
}

func TestCloseIgnoresCourtesyFailure(t *testing.T) {
	l := newStubLink()
	l.On("Write", serial.Command("LOC")).Return(false, errors.New("gone")).Once()
	l.On("Write", mock.Anything).Return(true, nil)
	l.On("Close").Return(nil).Once()
	s := attached(t, testConfig(), l)

	assert.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())
}

func TestPollBeforeConnect(t *testing.T) {
	s := New(testConfig())
	_, err := s.Poll(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())
}

func TestConnectExplicitPortUnavailable(t *testing.T) {
	cfg := testConfig()
	cfg.Port = "/dev/ttyNOPE0"
	cfg.TransportOptions = []serial.TransportOption{
		serial.WithOpener(func(string, serial.Config) (serial.Port, error) {
			return nil, serial.ErrNoSuchDevice
		}),
	}
	s := New(cfg)

	err := s.Connect(context.Background())
	assert.ErrorIs(t, err, serial.ErrPortUnavailable)
	assert.Equal(t, StateDisconnected, s.State())
}

func TestConnectDiscoveryExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.TransportOptions = []serial.TransportOption{
		serial.WithOpener(func(string, serial.Config) (serial.Port, error) {
			return nil, serial.ErrPermissionDenied
		}),
	}
	loc := serial.NewLocator(scpi.Identify, scpi.IdentitySignature, cfg.TransportOptions...)
	loc.Enumerate = func() ([]string, error) { return []string{"COM3", "COM5"}, nil }

	s := New(cfg, WithLocator(loc))
	err := s.Connect(context.Background())
	assert.ErrorIs(t, err, serial.ErrDeviceNotFound)
}

func TestExchange(t *testing.T) {
	l := newStubLink().acceptWrites().frames("+1.00000000E+00")
	s := attached(t, testConfig(), l)

	out, err := s.Exchange("SENS:CONT:THR?")
	require.NoError(t, err)
	assert.Equal(t, "+1.00000000E+00", out)

	out, err = s.Exchange("*RST")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, canTransition(StateDisconnected, StateConnected))
	assert.True(t, canTransition(StatePolling, StateModeSelecting))
	assert.True(t, canTransition(StateModeSelecting, StatePolling))
	assert.False(t, canTransition(StateClosed, StatePolling))
	assert.False(t, canTransition(StateDisconnected, StatePolling))
	assert.Equal(t, "ModeSelecting", StateModeSelecting.String())
	assert.Equal(t, "Unknown", State(9).String())
}

func TestBeepSendsForcedSequence(t *testing.T) {
	l := newStubLink().acceptWrites()
	s := attached(t, testConfig(), l)

	require.NoError(t, s.Beep())
	assert.Equal(t, []string{"SYST:BEEP:STAT 1", "SYST:BEEP", "SYST:BEEP:STAT 0"}, l.sent)

	assert.ErrorIs(t, New(testConfig()).Beep(), ErrNotConnected)
}

type traceRecorder struct{ events []trace.Event }

func (r *traceRecorder) Log(e trace.Event) { r.events = append(r.events, e) }

func TestModeSelectTimeoutKeepsPolling(t *testing.T) {
	l := newStubLink().frames("RES,+1.00000000E+04,+1E-01", "+4.7E+03")
	l.On("Write", serial.Command("CONF:RES")).Return(false, nil).Once()
	l.acceptWrites()
	s := attached(t, testConfig(), l)

	require.NoError(t, s.RequestMode(scpi.ModeResistance))
	c, err := s.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatePolling, s.State())
	assert.Equal(t, []string{"CONF:RES", "RES:ZERO:AUTO ON", "CONF?", "READ?"}, l.sent)
	assert.Equal(t, scpi.ModeResistance, c.Mode)
	assert.Equal(t, "04.7000 kΩ", c.Reading.Value)
	assert.False(t, c.Stale)
}

func TestModeSelectFatalClosesSession(t *testing.T) {
	l := newStubLink()
	l.On("Write", serial.Command("CONF:RES")).Return(false, fmt.Errorf("%w: %w", serial.ErrFatalIO, io.ErrUnexpectedEOF)).Once()
	l.acceptWrites()
	l.On("Close").Return(nil).Once()
	s := attached(t, testConfig(), l)

	require.NoError(t, s.RequestMode(scpi.ModeResistance))
	_, err := s.Poll(context.Background())

	require.ErrorIs(t, err, serial.ErrFatalIO)
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, []string{"CONF:RES", "LOC"}, l.sent)
	l.AssertNotCalled(t, "ReadFrame", mock.Anything)
	l.AssertExpectations(t)
}

func TestModeSelectIgnoredByMeterIsLogged(t *testing.T) {
	var logs bytes.Buffer
	rec := &traceRecorder{}
	l := newStubLink().frames("VOLT,+1.00000000E+01,+1E-04", "+1.5E+00")
	l.On("Write", serial.Command("CONF:RES")).Return(false, nil).Once()
	l.acceptWrites()

	s := New(testConfig(), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))), WithTracer(rec))
	require.NoError(t, s.Attach(l, "BK Precision,5492C,1,1"))
	require.NoError(t, s.RequestMode(scpi.ModeResistance))

	c, err := s.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, scpi.ModeVoltDC, c.Mode)
	assert.Equal(t, scpi.ModeVoltDC, s.Mode())
	assert.Contains(t, logs.String(), "mode request not applied")

	var found bool
	for _, e := range rec.events {
		if e.Error != nil && e.Error.Context == "mode select" {
			found = true
			assert.Contains(t, e.Error.Message, ErrModeNotApplied.Error())
		}
	}
	assert.True(t, found, "trace must record the ignored mode request")
}
