package serial

import (
	"fmt"
	"time"
)

// Parity represents the parity mode
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "N"
	case ParityOdd:
		return "O"
	case ParityEven:
		return "E"
	case ParityMark:
		return "M"
	case ParitySpace:
		return "S"
	default:
		return "?"
	}
}

// Timeouts describes the read and write time budgets of a port. A budget for
// an n byte transfer is Constant + n*Multiplier. ReadInterval bounds the gap
// between two received bytes.
type Timeouts struct {
	ReadInterval    time.Duration
	ReadConstant    time.Duration
	ReadMultiplier  time.Duration
	WriteConstant   time.Duration
	WriteMultiplier time.Duration
}

// DefaultTimeouts matches the meter's serial stack: 50ms between bytes,
// 100ms + 10ms/byte for reads and 50ms + 10ms/byte for writes.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		ReadInterval:    50 * time.Millisecond,
		ReadConstant:    100 * time.Millisecond,
		ReadMultiplier:  10 * time.Millisecond,
		WriteConstant:   50 * time.Millisecond,
		WriteMultiplier: 10 * time.Millisecond,
	}
}

// ReadBudget returns how long a read of n bytes may block.
func (t Timeouts) ReadBudget(n int) time.Duration {
	return t.ReadConstant + time.Duration(n)*t.ReadMultiplier
}

// WriteBudget returns how long a write of n bytes may block.
func (t Timeouts) WriteBudget(n int) time.Duration {
	return t.WriteConstant + time.Duration(n)*t.WriteMultiplier
}

// Config holds the line profile of a serial endpoint
type Config struct {
	BaudRate int
	DataBits int
	StopBits int
	Parity   Parity
	Timeouts Timeouts
}

// String renders the profile as e.g. "9600 8N1".
func (c Config) String() string {
	return fmt.Sprintf("%d %d%s%d", c.BaudRate, c.DataBits, c.Parity, c.StopBits)
}

// Option is a functional option for configuring a serial port
type Option func(*Config) error

// DefaultConfig returns the fixed 9600 8N1 profile the meter speaks
func DefaultConfig() Config {
	return Config{
		BaudRate: 9600,
		DataBits: 8,
		StopBits: 1,
		Parity:   ParityNone,
		Timeouts: DefaultTimeouts(),
	}
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) Option {
	return func(c *Config) error {
		if !validBaudRate(rate) {
			return ErrInvalidBaudRate
		}
		c.BaudRate = rate
		return nil
	}
}

// WithDataBits sets the number of data bits (5, 6, 7, or 8)
func WithDataBits(bits int) Option {
	return func(c *Config) error {
		if bits < 5 || bits > 8 {
			return ErrInvalidConfig
		}
		c.DataBits = bits
		return nil
	}
}

// WithStopBits sets the number of stop bits (1 or 2)
func WithStopBits(bits int) Option {
	return func(c *Config) error {
		if bits != 1 && bits != 2 {
			return ErrInvalidConfig
		}
		c.StopBits = bits
		return nil
	}
}

// WithParity sets the parity mode
func WithParity(parity Parity) Option {
	return func(c *Config) error {
		if parity < ParityNone || parity > ParitySpace {
			return ErrInvalidConfig
		}
		c.Parity = parity
		return nil
	}
}

// WithTimeouts replaces the read/write timeout profile
func WithTimeouts(t Timeouts) Option {
	return func(c *Config) error {
		if t.ReadInterval < 0 || t.ReadConstant < 0 || t.ReadMultiplier < 0 ||
			t.WriteConstant < 0 || t.WriteMultiplier < 0 {
			return ErrInvalidConfig
		}
		if t.ReadBudget(1) == 0 || t.WriteBudget(1) == 0 {
			return ErrInvalidConfig
		}
		c.Timeouts = t
		return nil
	}
}

// Endpoint is a serial device path together with its line profile.
type Endpoint struct {
	Path   string
	Config Config
}

// NewEndpoint applies opts on top of DefaultConfig.
func NewEndpoint(path string, opts ...Option) (Endpoint, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return Endpoint{}, err
		}
	}
	return Endpoint{Path: path, Config: config}, nil
}

func (e Endpoint) String() string {
	return e.Path + " @ " + e.Config.String()
}

var supportedBaudRates = []int{
	50, 75, 110, 134, 150, 200, 300, 600, 1200, 1800, 2400, 4800, 9600,
	19200, 38400, 57600, 115200, 230400, 460800, 921600,
}

func validBaudRate(rate int) bool {
	for _, r := range supportedBaudRates {
		if r == rate {
			return true
		}
	}
	return false
}
