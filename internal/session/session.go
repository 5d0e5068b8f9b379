package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termengine/internal/infrastructure/logging"
	"github.com/GriffinCanCode/termengine/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termengine/internal/shared/id"
	"github.com/GriffinCanCode/termengine/internal/stream"
	"github.com/GriffinCanCode/termengine/internal/transport"
)

// pendingWrite is one queued input write
type pendingWrite struct {
	data        []byte
	request     id.RequestID
	submittedAt time.Time
}

// Info is a snapshot of a session for listings
type Info struct {
	ID        id.SessionID   `json:"id"`
	Kind      transport.Kind `json:"kind"`
	State     State          `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
	Target    string         `json:"target"`
	Size      transport.Size `json:"size"`
	Error     string         `json:"error,omitempty"`

	// Reported by the shell through OSC 7
	Host string `json:"host,omitempty"`
	Cwd  string `json:"cwd,omitempty"`
}

// Session owns one transport and its reader. All output and lifecycle changes
// go through a single ordered log that subscribers replay and follow.
type Session struct {
	id        id.SessionID
	spec      transport.Spec
	createdAt time.Time
	opener    transport.Opener
	opts      Options
	logger    *zap.Logger
	metrics   *monitoring.Metrics

	// reader is only touched by the run goroutine
	reader *stream.Reader
	input  chan pendingWrite

	mu         sync.Mutex
	state      State
	err        error
	log        *ring
	notify     chan struct{}
	subs       map[*Subscription]struct{}
	tr         transport.Transport
	size       transport.Size
	history    history
	shell      shellState
	started    bool
	cancelOpen context.CancelFunc

	stop        chan struct{} // closed when input must stop flowing
	stopOnce    sync.Once
	done        chan struct{} // closed on entering a terminal state
	drained     chan struct{}
	drainedOnce sync.Once
}

// New creates a session in Opening. Start begins opening the transport.
func New(sid id.SessionID, spec transport.Spec, opener transport.Opener, opts Options) *Session {
	opts = opts.withDefaults()
	logger := logging.For(opts.Logger, logging.Session).With(
		zap.String("session_id", sid.String()),
		zap.String("kind", string(spec.Kind)),
	)

	return &Session{
		id:        sid,
		spec:      spec,
		createdAt: time.Now(),
		opener:    opener,
		opts:      opts,
		logger:    logger,
		metrics:   opts.Metrics,
		reader:    stream.NewReader(),
		input:     make(chan pendingWrite, opts.InputQueueSize),
		state:     StateOpening,
		log:       newRing(opts.ScrollbackSize),
		notify:    make(chan struct{}),
		subs:      make(map[*Subscription]struct{}),
		size:      spec.Size(),
		history:   history{max: opts.HistorySize},
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		drained:   make(chan struct{}),
	}
}

// ID returns the session identifier
func (s *Session) ID() id.SessionID { return s.id }

// Kind returns the transport kind
func (s *Session) Kind() transport.Kind { return s.spec.Kind }

// Spec returns a copy of the spec the session was opened with
func (s *Session) Spec() transport.Spec { return s.spec.Clone() }

// CreatedAt returns the creation time
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the cause of a Failed session
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the session is Closed or Failed
func (s *Session) Done() <-chan struct{} { return s.done }

// Drained is closed once the session is terminal and no subscriber is still
// owed the terminal transition
func (s *Session) Drained() <-chan struct{} { return s.drained }

// Info returns a snapshot for listings
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		ID:        s.id,
		Kind:      s.spec.Kind,
		State:     s.state,
		CreatedAt: s.createdAt,
		Target:    s.spec.Target(),
		Size:      s.size,
		Host:      s.shell.host,
		Cwd:       s.shell.cwd,
	}
	if s.err != nil {
		info.Error = s.err.Error()
	}
	return info
}

// Start opens the transport in the background
func (s *Session) Start() {
	s.mu.Lock()
	if s.started || s.state != StateOpening {
		s.mu.Unlock()
		return
	}
	s.started = true
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelOpen = cancel
	s.mu.Unlock()

	go s.run(ctx)
}

// run opens the transport and then pumps its events into the log
func (s *Session) run(ctx context.Context) {
	started := time.Now()
	tr, err := s.opener.Open(ctx, s.spec)

	s.mu.Lock()
	s.cancelOpen()
	if err != nil {
		closing := s.state == StateClosing
		if closing {
			s.transitionLocked(StateClosed, Transition{})
		} else {
			s.err = err
			s.transitionLocked(StateFailed, Transition{Err: err})
		}
		s.mu.Unlock()

		if !closing {
			s.logger.Warn("open failed", zap.Error(err))
			s.metrics.SessionFailed(string(s.spec.Kind), failureReason(err))
		}
		return
	}

	s.tr = tr
	if s.state == StateClosing {
		// Closed while opening
		s.mu.Unlock()
		_ = tr.Close()
		s.pump(tr)
		return
	}
	s.transitionLocked(StateActive, Transition{})
	s.mu.Unlock()

	s.logger.Info("session active", zap.Duration("took", time.Since(started)))
	s.metrics.SessionOpened(string(s.spec.Kind), time.Since(started))

	go s.writeLoop(tr)
	s.pump(tr)
}

// pump feeds transport output through the reader until the terminal event
func (s *Session) pump(tr transport.Transport) {
	kind := string(s.spec.Kind)

	for ev := range tr.Events() {
		switch ev.Type {
		case transport.EventData:
			chunks := s.reader.Feed(ev.Data)
			s.metrics.AddOutput(kind, len(ev.Data), len(chunks))
			s.appendChunks(chunks)
		case transport.EventClosed, transport.EventError:
			s.appendChunks(s.reader.Flush())
			s.finish(ev)
		}
	}

	// A transport that closes its channel without a terminal event
	s.mu.Lock()
	terminal := s.state.Terminal()
	s.mu.Unlock()
	if !terminal {
		s.appendChunks(s.reader.Flush())
		s.finish(transport.Event{Type: transport.EventError, Err: errors.New("transport ended without a terminal event")})
	}
	s.reader.Reset()
}

// finish maps the transport's terminal event onto the lifecycle
func (s *Session) finish(ev transport.Event) {
	t := Transition{Reason: ev.Reason, ExitCode: ev.ExitCode, HasCode: ev.HasCode, Err: ev.Err}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosing:
		s.transitionLocked(StateClosed, t)
	case StateActive:
		if ev.Type == transport.EventClosed && ev.Reason != transport.ReasonNetwork {
			s.stopInput()
			s.transitionLocked(StateClosing, t)
			s.transitionLocked(StateClosed, t)
			return
		}
		cause := ev.Err
		if cause == nil {
			cause = fmt.Errorf("transport closed: %s", ev.Reason)
		}
		s.err = cause
		t.Err = cause
		s.transitionLocked(StateFailed, t)
		s.logger.Warn("session failed", zap.Error(cause))
		s.metrics.SessionFailed(string(s.spec.Kind), string(ev.Reason))
	}
}

// writeLoop forwards queued input in submission order
func (s *Session) writeLoop(tr transport.Transport) {
	kind := string(s.spec.Kind)
	for {
		select {
		case <-s.stop:
			return
		case w := <-s.input:
			select {
			case <-s.stop:
				return
			default:
			}
			if err := tr.Write(w.data); err != nil {
				if errors.Is(err, transport.ErrTransportClosed) {
					return
				}
				s.logger.Warn("input write failed",
					zap.String("request_id", w.request.String()),
					zap.Error(err))
				continue
			}
			s.metrics.AddInput(kind, len(w.data))
		}
	}
}

// SendInput queues p for transmission. Opening queues, Active forwards,
// Closing fails with ErrSessionClosing and terminal states with
// ErrInvalidState. A full queue waits up to the input timeout.
func (s *Session) SendInput(ctx context.Context, p []byte) error {
	_, err := s.enqueue(ctx, p)
	return err
}

func (s *Session) enqueue(ctx context.Context, p []byte) (id.RequestID, error) {
	w := pendingWrite{
		data:        append([]byte(nil), p...),
		request:     id.NewRequestID(),
		submittedAt: time.Now(),
	}

	// The state check and the fast-path send share the lock with Close, so
	// input is never accepted once Closing has begun
	s.mu.Lock()
	if err := s.acceptsInputLocked(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	select {
	case s.input <- w:
		s.mu.Unlock()
		return w.request, nil
	default:
	}
	s.mu.Unlock()

	timer := time.NewTimer(s.opts.InputTimeout)
	defer timer.Stop()

	select {
	case s.input <- w:
		return w.request, nil
	case <-s.stop:
		return "", ErrSessionClosing
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		s.metrics.IncInputQueueFull()
		return "", ErrInputQueueFull
	}
}

func (s *Session) acceptsInputLocked() error {
	switch s.state {
	case StateOpening, StateActive:
		return nil
	case StateClosing:
		return ErrSessionClosing
	default:
		return fmt.Errorf("%w: send input while %s", ErrInvalidState, s.state)
	}
}

// SendCommand sends line followed by a carriage return and records it in the
// command history
func (s *Session) SendCommand(ctx context.Context, line string) (Command, error) {
	req, err := s.enqueue(ctx, []byte(line+"\r"))
	if err != nil {
		return Command{}, err
	}

	c := Command{ID: req, Line: line, SubmittedAt: time.Now()}
	s.mu.Lock()
	s.history.add(c)
	s.mu.Unlock()
	return c, nil
}

// History returns the recorded commands, oldest first
func (s *Session) History() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.snapshot()
}

// Resize propagates a size change. Only Active sessions accept it; transport
// failures are logged and absorbed.
func (s *Session) Resize(size transport.Size) error {
	if size.Rows == 0 || size.Cols == 0 {
		return fmt.Errorf("%w: size %s", ErrInvalidState, size)
	}

	s.mu.Lock()
	if s.state != StateActive {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: resize while %s", ErrInvalidState, state)
	}
	tr := s.tr
	s.size = size
	s.mu.Unlock()

	if err := tr.Resize(size); err != nil {
		s.logger.Warn("resize failed", zap.Stringer("size", size), zap.Error(err))
	}
	return nil
}

// Close is idempotent. It discards untransmitted input, closes the transport
// and returns once the session is terminal.
func (s *Session) Close() error {
	s.mu.Lock()
	switch s.state {
	case StateOpening:
		s.stopInput()
		s.transitionLocked(StateClosing, Transition{})
		if !s.started {
			s.transitionLocked(StateClosed, Transition{})
		} else {
			s.cancelOpen()
		}
		s.mu.Unlock()

	case StateActive:
		s.stopInput()
		s.transitionLocked(StateClosing, Transition{})
		tr := s.tr
		s.mu.Unlock()

		if err := tr.Close(); err != nil {
			s.logger.Warn("transport close failed", zap.Error(err))
		}

	default:
		s.mu.Unlock()
	}

	<-s.done
	return nil
}

// Scrollback returns the retained chunks, oldest first. It is readable in
// every state.
func (s *Session) Scrollback() []stream.Chunk {
	s.mu.Lock()
	events, _ := s.log.since(0)
	s.mu.Unlock()

	chunks := make([]stream.Chunk, 0, len(events))
	for _, ev := range events {
		if ev.Type == EventChunk {
			chunks = append(chunks, *ev.Chunk)
		}
	}
	return chunks
}

// Replay returns the retained log, chunks and transitions, oldest first
func (s *Session) Replay() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, _ := s.log.since(0)
	return events
}

func (s *Session) appendChunks(chunks []stream.Chunk) {
	if len(chunks) == 0 {
		return
	}

	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range chunks {
		c := chunks[i]
		if c.Control == stream.ControlOSC {
			s.observeShellLocked(c, now)
		}
		s.log.push(Event{Type: EventChunk, Time: now, Chunk: &c})
	}
	s.wakeLocked()
}

// transitionLocked moves to next and logs the transition. Illegal edges are
// logged and ignored.
func (s *Session) transitionLocked(next State, t Transition) bool {
	if !CanTransition(s.state, next) {
		s.logger.Error("illegal transition ignored",
			zap.Stringer("from", s.state),
			zap.Stringer("to", next))
		return false
	}

	t.From, t.To = s.state, next
	if t.Err != nil {
		t.Error = t.Err.Error()
	}
	s.state = next
	s.log.push(Event{Type: EventTransition, Time: time.Now(), Transition: &t})
	s.wakeLocked()

	s.logger.Debug("transition", zap.Stringer("from", t.From), zap.Stringer("to", t.To))

	if next.Terminal() {
		s.stopInput()
		close(s.done)
		if len(s.subs) == 0 {
			s.markDrained()
		}
	}
	return true
}

func (s *Session) wakeLocked() {
	close(s.notify)
	s.notify = make(chan struct{})
}

func (s *Session) stopInput() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Session) markDrained() {
	s.drainedOnce.Do(func() { close(s.drained) })
}

// failureReason is a low-cardinality label for open failures
func failureReason(err error) string {
	var ce *transport.ConnectError
	if errors.As(err, &ce) {
		return string(ce.Stage)
	}
	var se *transport.SpawnError
	if errors.As(err, &se) {
		return "spawn"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "other"
}
