package session

import "errors"

var (
	ErrNotConnected = errors.New("session is not connected")
	ErrClosed       = errors.New("session is closed")
	ErrInvalidState = errors.New("invalid session state transition")
	ErrInvalidMode  = errors.New("invalid measurement mode")

	ErrModeNotApplied = errors.New("requested mode not applied by the meter")
)
