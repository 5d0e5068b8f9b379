package ws

import (
	"github.com/GriffinCanCode/termengine/internal/dispatch"
	"github.com/GriffinCanCode/termengine/internal/shared/id"
)

// Client frame types beyond the dispatch UI events
const (
	TypeAttach = "attach"
	TypeDetach = "detach"
	TypePing   = "ping"
)

// Server frame types
const (
	TypeWelcome = "welcome"
	TypeOutput  = "output"
	TypeAck     = "ack"
	TypeError   = "error"
	TypePong    = "pong"
)

// Request is a client frame. Ref is echoed back on the matching ack or
// error so clients can correlate replies.
type Request struct {
	dispatch.UIEvent
	Ref string `json:"ref,omitempty"`
}

// Message is a server frame
type Message struct {
	Type      string           `json:"type"`
	Ref       string           `json:"ref,omitempty"`
	Request   string           `json:"request,omitempty"`
	ClientID  id.ClientID      `json:"client_id,omitempty"`
	SessionID id.SessionID     `json:"session_id,omitempty"`
	Output    *dispatch.Output `json:"output,omitempty"`
	Error     string           `json:"error,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

// isInput reports whether a frame writes to a session
func isInput(t dispatch.UIEventType) bool {
	switch t {
	case dispatch.UIKey, dispatch.UIPaste, dispatch.UICommand:
		return true
	}
	return false
}
