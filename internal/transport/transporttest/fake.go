// Package transporttest provides scripted transports for testing the layers
// above the transport package.
package transporttest

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/termengine/internal/transport"
)

// Fake is a Transport driven by the test. Writes are recorded; output and
// termination are injected with Emit, Exit, Drop and Fail.
type Fake struct {
	kind   transport.Kind
	events chan transport.Event

	mu       sync.Mutex
	writes   [][]byte
	sizes    []transport.Size
	closes   int
	ended    bool
	writeErr error
	// echo makes every successful Write show up as output
	echo bool

	// WriteHook runs before each write is recorded, outside the lock
	WriteHook func(p []byte)
	// CloseGate, when set, holds Close until it is closed
	CloseGate chan struct{}
}

// NewFake creates a Fake of the given kind
func NewFake(kind transport.Kind) *Fake {
	return &Fake{kind: kind, events: make(chan transport.Event, 1024)}
}

// Echo makes the fake echo written bytes back as output
func (f *Fake) Echo() *Fake {
	f.mu.Lock()
	f.echo = true
	f.mu.Unlock()
	return f
}

func (f *Fake) Kind() transport.Kind { return f.kind }

func (f *Fake) Events() <-chan transport.Event { return f.events }

// Write records p
func (f *Fake) Write(p []byte) error {
	if f.WriteHook != nil {
		f.WriteHook(p)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ended || f.closes > 0 {
		return transport.ErrTransportClosed
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	if f.echo {
		f.events <- transport.Event{Type: transport.EventData, Data: append([]byte(nil), p...)}
	}
	return nil
}

// FailWrites makes later writes return err
func (f *Fake) FailWrites(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

// Resize records size
func (f *Fake) Resize(size transport.Size) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ended || f.closes > 0 {
		return transport.ErrTransportClosed
	}
	f.sizes = append(f.sizes, size)
	return nil
}

// Close ends the stream with ReasonClosed on first call
func (f *Fake) Close() error {
	f.mu.Lock()
	f.closes++
	first := f.closes == 1
	f.mu.Unlock()

	if first {
		if f.CloseGate != nil {
			<-f.CloseGate
		}
		f.end(transport.Event{Type: transport.EventClosed, Reason: transport.ReasonClosed})
	}
	return nil
}

// Emit injects output
func (f *Fake) Emit(data string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ended {
		return
	}
	f.events <- transport.Event{Type: transport.EventData, Data: []byte(data)}
}

// Exit ends the stream as if the process exited with code
func (f *Fake) Exit(code int) {
	f.end(transport.Event{Type: transport.EventClosed, Reason: transport.ReasonExit, ExitCode: code, HasCode: true})
}

// Drop ends the stream as a lost connection
func (f *Fake) Drop(cause error) {
	f.end(transport.Event{Type: transport.EventClosed, Reason: transport.ReasonNetwork, Err: cause})
}

// Fail ends the stream with an error event
func (f *Fake) Fail(cause error) {
	f.end(transport.Event{Type: transport.EventError, Err: cause})
}

func (f *Fake) end(ev transport.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ended {
		return
	}
	f.ended = true
	f.events <- ev
	close(f.events)
}

// Writes returns a copy of every recorded write
func (f *Fake) Writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

// Written returns all recorded writes joined
func (f *Fake) Written() string {
	var s string
	for _, w := range f.Writes() {
		s += string(w)
	}
	return s
}

// Sizes returns every recorded resize
func (f *Fake) Sizes() []transport.Size {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.Size(nil), f.sizes...)
}

// Closes reports how many times Close was called
func (f *Fake) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// Opener hands out Fakes. Each Open blocks until Release is called when Hold
// is set, and fails with Err when set.
type Opener struct {
	mu     sync.Mutex
	Err    error
	Hold   bool
	Echo   bool
	// Configure runs on each new Fake before Open returns it
	Configure func(*Fake)

	opened []*Fake
	specs  []transport.Spec
	gate   chan struct{}
	notify chan *Fake
}

// NewOpener creates an Opener that opens immediately
func NewOpener() *Opener {
	return &Opener{gate: make(chan struct{}), notify: make(chan *Fake, 1024)}
}

// Open implements transport.Opener
func (o *Opener) Open(ctx context.Context, spec transport.Spec) (transport.Transport, error) {
	o.mu.Lock()
	hold, err, echo, gate, configure := o.Hold, o.Err, o.Echo, o.gate, o.Configure
	o.specs = append(o.specs, spec)
	o.mu.Unlock()

	if hold {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	f := NewFake(spec.Kind)
	if echo {
		f.Echo()
	}
	if configure != nil {
		configure(f)
	}

	o.mu.Lock()
	o.opened = append(o.opened, f)
	o.mu.Unlock()

	o.notify <- f
	return f, nil
}

// Release unblocks held and future Opens
func (o *Opener) Release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Hold {
		o.Hold = false
		close(o.gate)
		o.gate = make(chan struct{})
	}
}

// Opened returns the channel on which each new Fake is announced
func (o *Opener) Opened() <-chan *Fake { return o.notify }

// Specs returns every spec passed to Open
func (o *Opener) Specs() []transport.Spec {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]transport.Spec(nil), o.specs...)
}

// Count reports how many transports were opened
func (o *Opener) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.opened)
}

// SetErr changes the error returned by later Opens
func (o *Opener) SetErr(err error) {
	o.mu.Lock()
	o.Err = err
	o.mu.Unlock()
}
