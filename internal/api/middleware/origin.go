package middleware

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// LocalOrigins are the browser origins trusted when none are configured
var LocalOrigins = []string{
	"http://localhost",
	"http://localhost:*",
	"http://127.0.0.1",
	"http://127.0.0.1:*",
}

// OriginPolicy decides which browser origins may drive sessions. Entries are
// exact origins or doublestar patterns such as "https://*.example.com"; a
// lone "*" admits every origin for plain HTTP.
type OriginPolicy struct {
	any      bool
	patterns []string
}

// NewOriginPolicy validates origins. An empty list means LocalOrigins.
func NewOriginPolicy(origins []string) (OriginPolicy, error) {
	if len(origins) == 0 {
		origins = LocalOrigins
	}

	var p OriginPolicy
	for _, o := range origins {
		o = strings.ToLower(strings.TrimSpace(o))
		switch {
		case o == "":
			continue
		case o == "*":
			p.any = true
			continue
		case !doublestar.ValidatePattern(o):
			return OriginPolicy{}, fmt.Errorf("invalid origin pattern %q", o)
		}
		p.patterns = append(p.patterns, o)
	}
	return p, nil
}

// MustOriginPolicy is NewOriginPolicy for fixed lists
func MustOriginPolicy(origins ...string) OriginPolicy {
	p, err := NewOriginPolicy(origins)
	if err != nil {
		panic(err)
	}
	return p
}

// AllowsAny reports whether the policy holds the "*" entry
func (p OriginPolicy) AllowsAny() bool { return p.any }

// Match reports whether origin is listed
func (p OriginPolicy) Match(origin string) bool {
	if p.any {
		return true
	}
	return p.listed(origin)
}

func (p OriginPolicy) listed(origin string) bool {
	origin = strings.ToLower(origin)
	for _, pattern := range p.patterns {
		if ok, _ := doublestar.Match(pattern, origin); ok {
			return true
		}
	}
	return false
}

// CheckRequest is a websocket CheckOrigin. Requests without an Origin come
// from non-browser clients and pass, as do same-host pages; anything else
// must be listed explicitly. Browsers do not apply CORS to upgrades, so "*"
// does not extend to sockets.
func (p OriginPolicy) CheckRequest(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return p.listed(origin)
}
