package serial

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.BaudRate != 9600 {
		t.Errorf("Expected BaudRate 9600, got %d", config.BaudRate)
	}
	if config.DataBits != 8 {
		t.Errorf("Expected DataBits 8, got %d", config.DataBits)
	}
	if config.StopBits != 1 {
		t.Errorf("Expected StopBits 1, got %d", config.StopBits)
	}
	if config.Parity != ParityNone {
		t.Errorf("Expected Parity None, got %v", config.Parity)
	}
	if config.String() != "9600 8N1" {
		t.Errorf("Expected profile 9600 8N1, got %s", config.String())
	}
}

func TestTimeoutBudgets(t *testing.T) {
	tm := DefaultTimeouts()

	if got := tm.ReadBudget(0); got != 100*time.Millisecond {
		t.Errorf("ReadBudget(0) = %v, want 100ms", got)
	}
	if got := tm.ReadBudget(256); got != 2660*time.Millisecond {
		t.Errorf("ReadBudget(256) = %v, want 2.66s", got)
	}
	if got := tm.WriteBudget(7); got != 120*time.Millisecond {
		t.Errorf("WriteBudget(7) = %v, want 120ms", got)
	}
}

func TestFunctionalOptions(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		wantErr error
		check   func(Config) bool
	}{
		{"baud 19200", WithBaudRate(19200), nil, func(c Config) bool { return c.BaudRate == 19200 }},
		{"baud invalid", WithBaudRate(12345), ErrInvalidBaudRate, nil},
		{"data bits 7", WithDataBits(7), nil, func(c Config) bool { return c.DataBits == 7 }},
		{"data bits 9", WithDataBits(9), ErrInvalidConfig, nil},
		{"stop bits 2", WithStopBits(2), nil, func(c Config) bool { return c.StopBits == 2 }},
		{"stop bits 3", WithStopBits(3), ErrInvalidConfig, nil},
		{"parity even", WithParity(ParityEven), nil, func(c Config) bool { return c.Parity == ParityEven }},
		{"parity bogus", WithParity(Parity(42)), ErrInvalidConfig, nil},
		{"negative timeout", WithTimeouts(Timeouts{ReadConstant: -1}), ErrInvalidConfig, nil},
		{"zero budgets", WithTimeouts(Timeouts{}), ErrInvalidConfig, nil},
		{"custom timeouts", WithTimeouts(Timeouts{ReadConstant: time.Second, WriteConstant: time.Second}), nil,
			func(c Config) bool { return c.Timeouts.ReadConstant == time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			err := tt.opt(&config)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.check(config) {
				t.Errorf("option not applied: %+v", config)
			}
		})
	}
}

func TestNewEndpoint(t *testing.T) {
	ep, err := NewEndpoint("/dev/ttyUSB0", WithParity(ParityOdd), WithStopBits(2))
	if err != nil {
		t.Fatalf("NewEndpoint failed: %v", err)
	}
	if ep.String() != "/dev/ttyUSB0 @ 9600 8O2" {
		t.Errorf("String() = %q", ep.String())
	}

	if _, err := NewEndpoint("/dev/ttyUSB0", WithDataBits(4)); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}

func TestCommandFraming(t *testing.T) {
	tests := []struct {
		cmd   Command
		wire  string
		query bool
	}{
		{"*IDN?", "*IDN?\r\n", true},
		{"SYST:REM\r\n", "SYST:REM\r\n", false},
		{"CONF:VOLT:DC\n", "CONF:VOLT:DC\r\n", false},
		{"READ?", "READ?\r\n", true},
	}

	for _, tt := range tests {
		if got := string(tt.cmd.Bytes()); got != tt.wire {
			t.Errorf("%q.Bytes() = %q, want %q", tt.cmd, got, tt.wire)
		}
		if tt.cmd.IsQuery() != tt.query {
			t.Errorf("%q.IsQuery() = %v", tt.cmd, tt.cmd.IsQuery())
		}
	}

	if got := Frame("VOLT +1.0\r").Text(); got != "VOLT +1.0" {
		t.Errorf("Frame.Text() = %q", got)
	}
}

func TestIsRecoverable(t *testing.T) {
	if !IsRecoverable(ErrTransportTimeout) || !IsRecoverable(ErrBufferExceeded) {
		t.Error("timeout and overflow must be recoverable")
	}
	if IsRecoverable(ErrFatalIO) || IsRecoverable(nil) {
		t.Error("fatal and nil must not be recoverable")
	}
}
