package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen rejects an attempt against a host that is failing
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests rejects an attempt while the trial quota is spent
	ErrTooManyRequests = errors.New("too many requests")
)

// State is a breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures a Breaker. Zero fields take defaults.
type Settings struct {
	// MaxRequests is the number of trials admitted while half-open, and the
	// run of trial successes that closes the circuit (default 1)
	MaxRequests uint32
	// Interval clears the closed-state counts periodically (default 60s)
	Interval time.Duration
	// Timeout is how long the circuit stays open (default 60s)
	Timeout time.Duration
	// ReadyToTrip decides, after each closed-state failure, whether to open
	// (default: more than 5 consecutive failures)
	ReadyToTrip func(counts Counts) bool
	// OnStateChange observes every transition
	OnStateChange func(name string, from State, to State)
	// Now is the clock (default time.Now)
	Now func() time.Time
}

// Counts are the attempt statistics of the current window
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker guards attempts against one host in two steps: Allow admits an
// attempt and the returned done func reports its outcome once known. A
// session open finishes long after Allow returns.
type Breaker struct {
	name     string
	settings Settings

	mu     sync.Mutex
	state  State
	counts Counts
	// window increments whenever counts reset, so late outcomes from an
	// earlier window are dropped
	window   uint64
	deadline time.Time
}

// New creates a closed breaker
func New(name string, settings Settings) *Breaker {
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	if settings.Interval <= 0 {
		settings.Interval = 60 * time.Second
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 60 * time.Second
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts Counts) bool {
			return counts.ConsecutiveFailures > 5
		}
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}

	return &Breaker{
		name:     name,
		settings: settings,
		deadline: settings.Now().Add(settings.Interval),
	}
}

// Name is the guarded host
func (b *Breaker) Name() string { return b.name }

// State reports the state at the current time
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.settings.Now())
	return b.state
}

// Counts returns a copy of the current window's counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Allow admits one attempt or fails with ErrCircuitOpen or
// ErrTooManyRequests. done must be called with the attempt's outcome; calls
// after the first are ignored.
func (b *Breaker) Allow() (done func(success bool), err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.settings.Now())
	switch {
	case b.state == StateOpen:
		return nil, ErrCircuitOpen
	case b.state == StateHalfOpen && b.counts.Requests >= b.settings.MaxRequests:
		return nil, ErrTooManyRequests
	}
	b.counts.Requests++

	window := b.window
	var once sync.Once
	return func(success bool) {
		once.Do(func() { b.report(window, success) })
	}, nil
}

func (b *Breaker) report(window uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.settings.Now()
	b.advance(now)
	if window != b.window {
		return
	}

	if success {
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.MaxRequests {
			b.moveTo(StateClosed, now)
		}
		return
	}

	switch b.state {
	case StateClosed:
		b.counts.TotalFailures++
		b.counts.ConsecutiveFailures++
		b.counts.ConsecutiveSuccesses = 0
		if b.settings.ReadyToTrip(b.counts) {
			b.moveTo(StateOpen, now)
		}
	case StateHalfOpen:
		b.moveTo(StateOpen, now)
	}
}

// advance applies the time-driven transitions due at now
func (b *Breaker) advance(now time.Time) {
	switch b.state {
	case StateClosed:
		if now.After(b.deadline) {
			b.reset()
			b.deadline = now.Add(b.settings.Interval)
		}
	case StateOpen:
		if now.After(b.deadline) {
			b.moveTo(StateHalfOpen, now)
		}
	}
}

func (b *Breaker) moveTo(state State, now time.Time) {
	if b.state == state {
		return
	}
	prev := b.state
	b.state = state
	b.reset()

	switch state {
	case StateClosed:
		b.deadline = now.Add(b.settings.Interval)
	case StateOpen:
		b.deadline = now.Add(b.settings.Timeout)
	case StateHalfOpen:
		b.deadline = time.Time{}
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}

func (b *Breaker) reset() {
	b.counts = Counts{}
	b.window++
}
