package session

import "errors"

var (
	// ErrInvalidState is returned for operations the current state forbids
	ErrInvalidState = errors.New("invalid session state")
	// ErrInputQueueFull is returned when input waited past the input timeout
	ErrInputQueueFull = errors.New("input queue full")
	// ErrSessionClosing is returned for input submitted while closing
	ErrSessionClosing = errors.New("session closing")
)
