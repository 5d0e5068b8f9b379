package dispatch

import (
	"time"

	"github.com/GriffinCanCode/termengine/internal/session"
	"github.com/GriffinCanCode/termengine/internal/shared/id"
	"github.com/GriffinCanCode/termengine/internal/stream"
	"github.com/GriffinCanCode/termengine/internal/transport"
)

// UIEventType names a raw presentation event
type UIEventType string

const (
	UIKey       UIEventType = "key"
	UIPaste     UIEventType = "paste"
	UICommand   UIEventType = "command"
	UIResize    UIEventType = "resize"
	UIOpen      UIEventType = "open"
	UIClose     UIEventType = "close"
	UIReconnect UIEventType = "reconnect"
)

// UIEvent is a raw event from a presentation layer. SessionID names the
// focused session; Open carries Spec instead.
type UIEvent struct {
	Type      UIEventType     `json:"type"`
	SessionID id.SessionID    `json:"session_id,omitempty"`
	Key       string          `json:"key,omitempty"`
	Text      string          `json:"text,omitempty"`
	Rows      uint16          `json:"rows,omitempty"`
	Cols      uint16          `json:"cols,omitempty"`
	Spec      *transport.Spec `json:"spec,omitempty"`
}

// Output is one session event tagged with its session
type Output struct {
	SessionID  id.SessionID        `json:"session_id"`
	Kind       session.EventType   `json:"kind"`
	Seq        uint64              `json:"seq"`
	Time       time.Time           `json:"time"`
	Chunk      *stream.Chunk       `json:"chunk,omitempty"`
	Transition *session.Transition `json:"transition,omitempty"`
	Missed     uint64              `json:"missed,omitempty"`
}

// Terminal reports whether o is the session's final transition
func (o Output) Terminal() bool {
	return o.Kind == session.EventTransition && o.Transition != nil && o.Transition.To.Terminal()
}

func toOutput(sid id.SessionID, ev session.Event) Output {
	return Output{
		SessionID:  sid,
		Kind:       ev.Type,
		Seq:        ev.Seq,
		Time:       ev.Time,
		Chunk:      ev.Chunk,
		Transition: ev.Transition,
		Missed:     ev.Missed,
	}
}
