package session

import (
	"fmt"
	"time"

	"github.com/GriffinCanCode/termengine/internal/stream"
	"github.com/GriffinCanCode/termengine/internal/transport"
)

// EventType discriminates session events
type EventType int

const (
	EventChunk EventType = iota
	EventTransition
	// EventOverrun tells a lagging subscriber how many entries it missed
	EventOverrun
)

func (t EventType) String() string {
	switch t {
	case EventChunk:
		return "chunk"
	case EventTransition:
		return "transition"
	case EventOverrun:
		return "overrun"
	default:
		return "unknown"
	}
}

// MarshalText renders the type by name
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *EventType) UnmarshalText(text []byte) error {
	for _, c := range []EventType{EventChunk, EventTransition, EventOverrun} {
		if c.String() == string(text) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", text)
}

// Transition records one lifecycle change
type Transition struct {
	From State `json:"from"`
	To   State `json:"to"`

	// Why the transport ended, when it did
	Reason   transport.CloseReason `json:"reason,omitempty"`
	ExitCode int                   `json:"exit_code,omitempty"`
	HasCode  bool                  `json:"has_exit_code,omitempty"`

	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// Event is one entry of a session's ordered log, or an overrun notice
type Event struct {
	Type EventType `json:"type"`
	// Seq increases by one per logged entry; overrun notices carry the first
	// missed sequence
	Seq  uint64    `json:"seq"`
	Time time.Time `json:"time"`

	Chunk      *stream.Chunk `json:"chunk,omitempty"`
	Transition *Transition   `json:"transition,omitempty"`
	Missed     uint64        `json:"missed,omitempty"`
}

// Terminal reports whether the event is the transition into Closed or Failed
func (e Event) Terminal() bool {
	return e.Type == EventTransition && e.Transition != nil && e.Transition.To.Terminal()
}
