package session

// State is the connection state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StatePolling
	StateModeSelecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnected:
		return "Connected"
	case StatePolling:
		return "Polling"
	case StateModeSelecting:
		return "ModeSelecting"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// canTransition lists the edges of the session state machine.
func canTransition(from, to State) bool {
	switch from {
	case StateDisconnected:
		return to == StateConnected || to == StateClosed
	case StateConnected:
		return to == StateModeSelecting || to == StatePolling || to == StateClosed
	case StatePolling:
		return to == StateModeSelecting || to == StateClosed
	case StateModeSelecting:
		return to == StatePolling || to == StateClosed
	default:
		return false
	}
}
