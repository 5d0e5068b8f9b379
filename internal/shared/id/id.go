// Package id mints the identifiers the engine hands out.
//
// Session and request ids are prefixed ULIDs (term_*, req_*). A single
// Generator draws from a monotonic entropy source, so its ids strictly
// increase even within one millisecond: sorting session ids sorts sessions
// by creation, and an id is never handed out twice while the process runs.
package id

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	SessionPrefix = "term"
	RequestPrefix = "req"
)

// ErrMalformed is returned when a string is not a prefixed ULID
var ErrMalformed = errors.New("malformed id")

// SessionID identifies a terminal session inside a Registry
type SessionID string

// RequestID identifies one submitted input write
type RequestID string

// ClientID identifies a connected websocket client. Clients get UUIDs
// rather than ULIDs since they carry no ordering.
type ClientID string

func (id SessionID) String() string { return string(id) }
func (id RequestID) String() string { return string(id) }
func (id ClientID) String() string  { return string(id) }

// Generator mints monotonic prefixed ULIDs. It is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0))
}

// NewGeneratorWithEntropy creates a generator over entropy. Tests pass a
// deterministic reader.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

func (g *Generator) next(prefix string) string {
	g.mu.Lock()
	u := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
	g.mu.Unlock()
	return prefix + "_" + u.String()
}

// SessionID mints a session id
func (g *Generator) SessionID() SessionID { return SessionID(g.next(SessionPrefix)) }

// RequestID mints a request id
func (g *Generator) RequestID() RequestID { return RequestID(g.next(RequestPrefix)) }

// NewSessionID mints a session id from the default generator
func NewSessionID() SessionID { return Default().SessionID() }

// NewRequestID mints a request id from the default generator
func NewRequestID() RequestID { return Default().RequestID() }

// IsValidPrefixed checks that s has the form prefix_ULID
func IsValidPrefixed(s, prefix string) bool {
	rest, ok := strings.CutPrefix(s, prefix+"_")
	if !ok {
		return false
	}
	_, err := ulid.ParseStrict(rest)
	return err == nil
}

// Timestamp extracts the mint time from a prefixed or bare ULID
func Timestamp(s string) (time.Time, error) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return ulid.Time(u.Time()), nil
}
