package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termengine/internal/infrastructure/config"
	"github.com/GriffinCanCode/termengine/internal/infrastructure/logging"
	"github.com/GriffinCanCode/termengine/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termengine/internal/session"
	"github.com/GriffinCanCode/termengine/internal/shared/id"
	"github.com/GriffinCanCode/termengine/internal/transport"
)

var (
	// ErrUnknownSession is returned for ids that were never issued or are already reaped
	ErrUnknownSession = errors.New("unknown session")
	// ErrRegistryClosed is returned by Create after Shutdown
	ErrRegistryClosed = errors.New("registry closed")
)

const defaultDrainTimeout = 5 * time.Second

// Options configures a Manager
type Options struct {
	Opener       transport.Opener
	Session      session.Options
	DrainTimeout time.Duration

	// Retain keeps finished sessions listed this long after they drain, for
	// scrollback reads and reconnects
	Retain time.Duration

	IDs     *id.Generator
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// OptionsFromConfig maps session configuration onto Options
func OptionsFromConfig(cfg config.SessionConfig) Options {
	return Options{
		Session:      session.OptionsFromConfig(cfg),
		DrainTimeout: cfg.DrainTimeout,
		Retain:       cfg.Retain,
	}
}

// Manager holds sessions by id
type Manager struct {
	opener  transport.Opener
	opts    session.Options
	drain   time.Duration
	retain  time.Duration
	ids     *id.Generator
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu       sync.RWMutex
	sessions map[id.SessionID]*session.Session
	closed   bool
	reapers  sync.WaitGroup
	stopping chan struct{}
}

// New creates a Manager
func New(opts Options) *Manager {
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = defaultDrainTimeout
	}
	if opts.IDs == nil {
		opts.IDs = id.Default()
	}
	logger := logging.For(opts.Logger, logging.Registry)

	sessOpts := opts.Session
	if sessOpts.Logger == nil {
		sessOpts.Logger = opts.Logger
	}
	if sessOpts.Metrics == nil {
		sessOpts.Metrics = opts.Metrics
	}

	return &Manager{
		opener:   opts.Opener,
		opts:     sessOpts,
		drain:    opts.DrainTimeout,
		retain:   opts.Retain,
		ids:      opts.IDs,
		logger:   logger,
		metrics:  opts.Metrics,
		sessions: make(map[id.SessionID]*session.Session),
		stopping: make(chan struct{}),
	}
}

// Create registers a new session and starts opening it. It returns while the
// session is still Opening.
func (m *Manager) Create(spec transport.Spec) (id.SessionID, error) {
	s, err := m.Open(spec)
	if err != nil {
		return "", err
	}
	return s.ID(), nil
}

// Open is Create returning the session itself, which stays usable after it
// is reaped
func (m *Manager) Open(spec transport.Spec) (*session.Session, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	sid := m.ids.SessionID()
	s := session.New(sid, spec.Clone(), m.opener, m.opts)
	m.sessions[sid] = s
	active := len(m.sessions)
	m.reapers.Add(1)
	m.mu.Unlock()

	m.metrics.SetSessionsActive(active)
	m.logger.Info("session created",
		zap.String("session_id", sid.String()),
		zap.String("kind", string(spec.Kind)),
		zap.String("target", spec.Target()))

	s.Start()
	go m.reap(s)
	return s, nil
}

// Get returns the session for sid
func (m *Manager) Get(sid id.SessionID) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sid)
	}
	return s, nil
}

// Close closes the session for sid and waits until it is terminal
func (m *Manager) Close(sid id.SessionID) error {
	s, err := m.Get(sid)
	if err != nil {
		return err
	}
	return s.Close()
}

// List returns a snapshot of every held session ordered by id
func (m *Manager) List() []session.Info {
	m.mu.RLock()
	infos := make([]session.Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Len reports how many sessions are held
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown refuses new sessions, closes every held session and waits until
// all of them are reaped or ctx ends
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.stopping)
	}
	sessions := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	m.logger.Info("shutting down", zap.Int("sessions", len(sessions)))

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			_ = s.Close()
		}(s)
	}

	reaped := make(chan struct{})
	go func() {
		wg.Wait()
		m.reapers.Wait()
		close(reaped)
	}()

	select {
	case <-reaped:
		return nil
	case <-ctx.Done():
		for _, s := range sessions {
			s.CancelSubscribers()
		}
		return ctx.Err()
	}
}

// reap removes s once it is terminal and drained, or once the drain timeout
// passes after it became terminal. Retention is skipped during Shutdown.
func (m *Manager) reap(s *session.Session) {
	defer m.reapers.Done()

	<-s.Done()

	timer := time.NewTimer(m.drain)
	defer timer.Stop()

	select {
	case <-s.Drained():
	case <-timer.C:
		m.logger.Warn("discarding undrained subscribers",
			zap.String("session_id", s.ID().String()),
			zap.Int("subscribers", s.Subscribers()))
		s.CancelSubscribers()
	}

	if m.retain > 0 {
		retain := time.NewTimer(m.retain)
		select {
		case <-retain.C:
		case <-m.stopping:
			retain.Stop()
		}
	}

	m.mu.Lock()
	delete(m.sessions, s.ID())
	active := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SessionReaped()
	m.metrics.SetSessionsActive(active)
	m.logger.Debug("session reaped",
		zap.String("session_id", s.ID().String()),
		zap.Stringer("state", s.State()))
}
