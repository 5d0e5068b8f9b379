package session

import (
	"time"

	"github.com/GriffinCanCode/termengine/internal/shared/id"
)

// Command is one line submitted through SendCommand. The exit status is
// filled in when the shell reports it with OSC 133 marks.
type Command struct {
	ID          id.RequestID `json:"id"`
	Line        string       `json:"line"`
	SubmittedAt time.Time    `json:"submitted_at"`

	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ExitCode   int        `json:"exit_code,omitempty"`
	HasCode    bool       `json:"has_exit_code,omitempty"`
}

// Finished reports whether the shell marked the command as done
func (c Command) Finished() bool { return c.FinishedAt != nil }

// history keeps the most recent commands
type history struct {
	max      int
	commands []Command
}

func (h *history) add(c Command) {
	h.commands = append(h.commands, c)
	if over := len(h.commands) - h.max; over > 0 {
		h.commands = append(h.commands[:0:0], h.commands[over:]...)
	}
}

// nextUnfinished returns the oldest command the shell has not finished
func (h *history) nextUnfinished() id.RequestID {
	for _, c := range h.commands {
		if !c.Finished() {
			return c.ID
		}
	}
	return ""
}

func (h *history) finish(req id.RequestID, code int, hasCode bool, at time.Time) {
	for i := range h.commands {
		if c := &h.commands[i]; c.ID == req {
			c.FinishedAt = &at
			c.ExitCode, c.HasCode = code, hasCode
			return
		}
	}
}

func (h *history) snapshot() []Command {
	out := append([]Command(nil), h.commands...)
	for i := range out {
		if t := out[i].FinishedAt; t != nil {
			at := *t
			out[i].FinishedAt = &at
		}
	}
	return out
}
