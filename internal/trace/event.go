package trace

import "time"

// Event represents one entry of the meter link trace.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the measurement session (UUID).
	SessionID string `cbor:"2,keyasint,omitempty"`

	// Port is the serial device path.
	Port string `cbor:"3,keyasint,omitempty"`

	// Direction indicates data flow relative to the host.
	Direction Direction `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"6,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"7,keyasint,omitempty"`
	Error       *ErrorEvent       `cbor:"8,keyasint,omitempty"`
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	// DirectionIn is a frame received from the instrument.
	DirectionIn Direction = 0
	// DirectionOut is a command sent to the instrument.
	DirectionOut Direction = 1
	// DirectionNone is used for state and error events.
	DirectionNone Direction = 2
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	case DirectionNone:
		return "-"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	CategoryFrame Category = 0
	CategoryState Category = 1
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryFrame:
		return "FRAME"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent carries the bytes of a command or response frame.
type FrameEvent struct {
	Data      []byte `cbor:"1,keyasint"`
	Size      int    `cbor:"2,keyasint"`
	Truncated bool   `cbor:"3,keyasint,omitempty"`
	TimedOut  bool   `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent records a session state transition.
type StateChangeEvent struct {
	OldState string `cbor:"1,keyasint"`
	NewState string `cbor:"2,keyasint"`
	Reason   string `cbor:"3,keyasint,omitempty"`
}

// ErrorEvent records a failure at the link or session level.
type ErrorEvent struct {
	Message string `cbor:"1,keyasint"`
	Context string `cbor:"2,keyasint,omitempty"`
}

// NewFrameEvent builds a frame event stamped with the current time.
func NewFrameEvent(sessionID, port string, dir Direction, data []byte) Event {
	buf := make([]byte, len(data))
	copy(buf, data)
	return Event{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Port:      port,
		Direction: dir,
		Category:  CategoryFrame,
		Frame:     &FrameEvent{Data: buf, Size: len(buf)},
	}
}

// NewStateEvent builds a state change event stamped with the current time.
func NewStateEvent(sessionID, port, oldState, newState, reason string) Event {
	return Event{
		Timestamp:   time.Now(),
		SessionID:   sessionID,
		Port:        port,
		Direction:   DirectionNone,
		Category:    CategoryState,
		StateChange: &StateChangeEvent{OldState: oldState, NewState: newState, Reason: reason},
	}
}

// NewErrorEvent builds an error event stamped with the current time.
func NewErrorEvent(sessionID, port string, err error, context string) Event {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Event{
		Timestamp: time.Now(),
		SessionID: sessionID,
		Port:      port,
		Direction: DirectionNone,
		Category:  CategoryError,
		Error:     &ErrorEvent{Message: msg, Context: context},
	}
}
