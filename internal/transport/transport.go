package transport

import (
	"context"
	"fmt"
)

// Kind names a transport variant
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// Size is a terminal size in character cells
type Size struct {
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// DefaultSize is used when a spec leaves the size unset
var DefaultSize = Size{Rows: 24, Cols: 80}

// OrDefault returns s, or DefaultSize when either dimension is zero
func (s Size) OrDefault() Size {
	if s.Rows == 0 || s.Cols == 0 {
		return DefaultSize
	}
	return s
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Cols, s.Rows)
}

// EventType discriminates transport events
type EventType int

const (
	EventData EventType = iota
	EventClosed
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventData:
		return "data"
	case EventClosed:
		return "closed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// CloseReason explains an EventClosed
type CloseReason string

const (
	// ReasonExit means the process or remote command exited on its own
	ReasonExit CloseReason = "exit"
	// ReasonClosed means Close was called
	ReasonClosed CloseReason = "closed"
	// ReasonNetwork means the remote connection dropped
	ReasonNetwork CloseReason = "network"
)

// Event is one item from Transport.Events
type Event struct {
	Type EventType
	Data []byte

	// Set on EventClosed
	Reason   CloseReason
	ExitCode int
	HasCode  bool

	// Cause for EventError, and for EventClosed with ReasonNetwork
	Err error
}

// Terminal reports whether the event ends the stream
func (e Event) Terminal() bool {
	return e.Type == EventClosed || e.Type == EventError
}

// Transport is a live byte channel to a local process or remote shell
type Transport interface {
	Kind() Kind
	// Write sends p in full or fails; ErrTransportClosed after Close
	Write(p []byte) error
	// Resize is best effort
	Resize(size Size) error
	// Events yields Data events then one terminal event, then closes
	Events() <-chan Event
	// Close is idempotent
	Close() error
}

// Opener opens transports from specs
type Opener interface {
	Open(ctx context.Context, spec Spec) (Transport, error)
}

// OpenerFunc adapts a function to Opener
type OpenerFunc func(ctx context.Context, spec Spec) (Transport, error)

// Open calls f
func (f OpenerFunc) Open(ctx context.Context, spec Spec) (Transport, error) {
	return f(ctx, spec)
}
