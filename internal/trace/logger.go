// Package trace records the byte-level conversation with the meter.
//
// Events are written as a CBOR stream so a session can be replayed and
// inspected later with `bk549x trace <file>`.
package trace

// Logger receives trace events. Implementations must be safe for concurrent
// use and should not block.
type Logger interface {
	Log(event Event)
}

// NoopLogger discards all events. It is usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

var _ Logger = NoopLogger{}

// OrNoop returns l, or a NoopLogger when l is nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l
}

// MultiLogger fans events out to several loggers.
type MultiLogger []Logger

// Log forwards the event to every non-nil logger.
func (m MultiLogger) Log(event Event) {
	for _, l := range m {
		if l != nil {
			l.Log(event)
		}
	}
}

var _ Logger = MultiLogger(nil)
