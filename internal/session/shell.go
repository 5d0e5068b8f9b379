package session

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/GriffinCanCode/termengine/internal/shared/id"
	"github.com/GriffinCanCode/termengine/internal/stream"
)

const (
	oscWorkingDirectory = 7
	oscSemanticPrompt   = 133
)

// shellState is what the shell reports about itself through OSC 7 and the
// OSC 133 semantic prompt marks
type shellState struct {
	host string
	cwd  string
	// running is the command between a C (executed) and D (finished) mark
	running id.RequestID
}

// observeShellLocked updates shell state from an OSC chunk. Unknown or
// malformed payloads are ignored; the chunk itself is logged unchanged.
func (s *Session) observeShellLocked(c stream.Chunk, now time.Time) {
	if len(c.Params) == 0 {
		return
	}

	switch c.Params[0] {
	case oscWorkingDirectory:
		u, err := url.Parse(c.Text)
		if err != nil || u.Scheme != "file" || u.Path == "" {
			return
		}
		s.shell.host, s.shell.cwd = u.Host, u.Path

	case oscSemanticPrompt:
		mark, rest, _ := strings.Cut(c.Text, ";")
		switch mark {
		case "C":
			s.shell.running = s.history.nextUnfinished()
		case "D":
			if s.shell.running == "" {
				return
			}
			code, err := strconv.Atoi(strings.SplitN(rest, ";", 2)[0])
			s.history.finish(s.shell.running, code, err == nil, now)
			s.shell.running = ""
		}
	}
}
