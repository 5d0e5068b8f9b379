package resilience

import "sync"

// Gate hands out one Breaker per key (a remote host:port) built from shared
// settings. Breakers are created lazily and live for the Gate's lifetime.
type Gate struct {
	settings Settings

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewGate creates a Gate whose breakers use settings
func NewGate(settings Settings) *Gate {
	return &Gate{
		settings: settings,
		breakers: make(map[string]*Breaker),
	}
}

// For returns the breaker for key, creating it on first use
func (g *Gate) For(key string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.breakers[key]
	if !ok {
		b = New(key, g.settings)
		g.breakers[key] = b
	}
	return b
}

// States reports the state of every breaker created so far
func (g *Gate) States() map[string]State {
	g.mu.Lock()
	breakers := make([]*Breaker, 0, len(g.breakers))
	for _, b := range g.breakers {
		breakers = append(breakers, b)
	}
	g.mu.Unlock()

	out := make(map[string]State, len(breakers))
	for _, b := range breakers {
		out[b.Name()] = b.State()
	}
	return out
}
