package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termengine/internal/infrastructure/config"
	"github.com/GriffinCanCode/termengine/internal/infrastructure/logging"
	"github.com/GriffinCanCode/termengine/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/termengine/internal/session"
	"github.com/GriffinCanCode/termengine/internal/shared/id"
	"github.com/GriffinCanCode/termengine/internal/transport"
)

var (
	// ErrDispatcherClosed is returned once Close has been called
	ErrDispatcherClosed = errors.New("dispatcher closed")
	// ErrUnknownEvent is returned by Handle for unrecognised UI events
	ErrUnknownEvent = errors.New("unknown ui event")
)

// Sessions is the registry surface the Dispatcher needs
type Sessions interface {
	Open(spec transport.Spec) (*session.Session, error)
	Get(sid id.SessionID) (*session.Session, error)
	Close(sid id.SessionID) error
	List() []session.Info
}

// Options configures a Dispatcher
type Options struct {
	// Gate guards reconnects per remote host; nil disables gating
	Gate *resilience.Gate
	// OutputBuffer is the capacity of the fan-in stream
	OutputBuffer int
	Logger       *zap.Logger
}

// GateFromConfig builds the reconnect gate: a host trips open after the
// configured run of failed opens and admits one trial open after the cooldown
func GateFromConfig(cfg config.ReconnectConfig, logger *zap.Logger) *resilience.Gate {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 3
	}
	logger = logging.For(logger, logging.Reconnect)

	return resilience.NewGate(resilience.Settings{
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Info("reconnect gate changed",
				zap.String("host", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})
}

// Dispatcher turns presentation intents into session operations
type Dispatcher struct {
	sessions Sessions
	gate     *resilience.Gate
	logger   *zap.Logger

	out    chan Output
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	forward sync.WaitGroup
}

// New creates a Dispatcher over sessions
func New(sessions Sessions, opts Options) *Dispatcher {
	if opts.OutputBuffer <= 0 {
		opts.OutputBuffer = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		sessions: sessions,
		gate:     opts.Gate,
		logger:   logging.For(opts.Logger, logging.Dispatch),
		out:      make(chan Output, opts.OutputBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Events is the merged output of every session opened through the
// Dispatcher. It is closed by Close.
func (d *Dispatcher) Events() <-chan Output { return d.out }

// RequestOpen creates a session and starts forwarding its output to Events
func (d *Dispatcher) RequestOpen(ctx context.Context, spec transport.Spec) (id.SessionID, error) {
	s, err := d.open(ctx, spec)
	if err != nil {
		return "", err
	}
	return s.ID(), nil
}

func (d *Dispatcher) open(ctx context.Context, spec transport.Spec) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDispatcherClosed
	}
	s, err := d.sessions.Open(spec)
	if err != nil {
		return nil, err
	}

	d.forward.Add(1)
	go d.forwardOutput(s)
	return s, nil
}

// RequestClose closes a session and waits until it is terminal
func (d *Dispatcher) RequestClose(sid id.SessionID) error {
	return d.sessions.Close(sid)
}

// SubmitInput sends raw bytes to a session
func (d *Dispatcher) SubmitInput(ctx context.Context, sid id.SessionID, p []byte) error {
	s, err := d.sessions.Get(sid)
	if err != nil {
		return err
	}
	return s.SendInput(ctx, p)
}

// SubmitKey translates a named key and sends it
func (d *Dispatcher) SubmitKey(ctx context.Context, sid id.SessionID, name string) error {
	p, err := KeyBytes(name)
	if err != nil {
		return err
	}
	return d.SubmitInput(ctx, sid, p)
}

// SubmitCommand sends line followed by Enter and records it in history
func (d *Dispatcher) SubmitCommand(ctx context.Context, sid id.SessionID, line string) (session.Command, error) {
	s, err := d.sessions.Get(sid)
	if err != nil {
		return session.Command{}, err
	}
	return s.SendCommand(ctx, line)
}

// RequestResize changes a session's terminal size
func (d *Dispatcher) RequestResize(sid id.SessionID, rows, cols uint16) error {
	s, err := d.sessions.Get(sid)
	if err != nil {
		return err
	}
	return s.Resize(transport.Size{Rows: rows, Cols: cols})
}

// Lookup returns the session for sid, for read-only views such as
// scrollback and history
func (d *Dispatcher) Lookup(sid id.SessionID) (*session.Session, error) {
	return d.sessions.Get(sid)
}

// List returns every session the registry holds
func (d *Dispatcher) List() []session.Info {
	return d.sessions.List()
}

// RequestReconnect opens a new session with the spec of a finished one.
// Remote targets are refused with resilience.ErrCircuitOpen while their host
// is cooling down.
func (d *Dispatcher) RequestReconnect(ctx context.Context, sid id.SessionID) (id.SessionID, error) {
	old, err := d.sessions.Get(sid)
	if err != nil {
		return "", err
	}
	if state := old.State(); !state.Terminal() {
		return "", fmt.Errorf("%w: reconnect while %s", session.ErrInvalidState, state)
	}

	spec := old.Spec()
	if spec.Kind != transport.KindRemote || d.gate == nil {
		return d.RequestOpen(ctx, spec)
	}

	breaker := d.gate.For(spec.Remote.Addr())
	done, err := breaker.Allow()
	if err != nil {
		d.logger.Info("reconnect refused",
			zap.String("session_id", sid.String()),
			zap.String("host", spec.Remote.Addr()),
			zap.Error(err))
		return "", fmt.Errorf("reconnect %s: %w", spec.Remote.Addr(), err)
	}

	s, err := d.open(ctx, spec)
	if err != nil {
		done(false)
		return "", err
	}
	go reportOutcome(s, done)

	d.logger.Info("reconnecting",
		zap.String("previous_id", sid.String()),
		zap.String("session_id", s.ID().String()),
		zap.String("host", spec.Remote.Addr()))
	return s.ID(), nil
}

// reportOutcome resolves a gate admission once the session leaves Opening
func reportOutcome(s *session.Session, done func(success bool)) {
	sub := s.Subscribe()
	defer sub.Cancel()

	for ev := range sub.Events() {
		if ev.Type != session.EventTransition {
			continue
		}
		switch ev.Transition.To {
		case session.StateActive:
			done(true)
			return
		case session.StateFailed:
			done(false)
			return
		case session.StateClosing, session.StateClosed:
			if ev.Transition.From == session.StateOpening {
				done(true)
				return
			}
		}
	}
	done(true)
}

// Handle translates one raw UI event. Open and reconnect events return the
// new session's id; the others return the event's own session id.
func (d *Dispatcher) Handle(ctx context.Context, ev UIEvent) (id.SessionID, error) {
	switch ev.Type {
	case UIKey:
		return ev.SessionID, d.SubmitKey(ctx, ev.SessionID, ev.Key)
	case UIPaste:
		return ev.SessionID, d.SubmitInput(ctx, ev.SessionID, []byte(ev.Text))
	case UICommand:
		_, err := d.SubmitCommand(ctx, ev.SessionID, ev.Text)
		return ev.SessionID, err
	case UIResize:
		return ev.SessionID, d.RequestResize(ev.SessionID, ev.Rows, ev.Cols)
	case UIOpen:
		if ev.Spec == nil {
			return "", fmt.Errorf("%w: open without spec", transport.ErrInvalidSpec)
		}
		return d.RequestOpen(ctx, *ev.Spec)
	case UIClose:
		return ev.SessionID, d.RequestClose(ev.SessionID)
	case UIReconnect:
		return d.RequestReconnect(ctx, ev.SessionID)
	default:
		return ev.SessionID, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
}

// Attach returns an independent stream of one session's output, replaying
// the retained log first. The stream ends after the terminal transition or
// when ctx is done.
func (d *Dispatcher) Attach(ctx context.Context, sid id.SessionID) (<-chan Output, error) {
	s, err := d.sessions.Get(sid)
	if err != nil {
		return nil, err
	}

	sub := s.Subscribe()
	out := make(chan Output)
	go func() {
		defer close(out)
		defer sub.Cancel()

		for {
			select {
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				select {
				case out <- toOutput(sid, ev):
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close stops forwarding and closes Events. Sessions are left to the registry.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.forward.Wait()
	close(d.out)
}

func (d *Dispatcher) forwardOutput(s *session.Session) {
	defer d.forward.Done()

	sub := s.Subscribe()
	defer sub.Cancel()

	for {
		var ev session.Event
		select {
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			ev = e
		case <-d.ctx.Done():
			return
		}

		if ev.Type == session.EventOverrun {
			d.logger.Warn("fan-in fell behind",
				zap.String("session_id", s.ID().String()),
				zap.Uint64("missed", ev.Missed))
		}
		select {
		case d.out <- toOutput(s.ID(), ev):
		case <-d.ctx.Done():
			return
		}
	}
}
