package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/termengine/internal/api/http"
	"github.com/GriffinCanCode/termengine/internal/api/middleware"
	"github.com/GriffinCanCode/termengine/internal/api/ws"
	"github.com/GriffinCanCode/termengine/internal/credentials"
	"github.com/GriffinCanCode/termengine/internal/dispatch"
	"github.com/GriffinCanCode/termengine/internal/infrastructure/config"
	"github.com/GriffinCanCode/termengine/internal/infrastructure/logging"
	"github.com/GriffinCanCode/termengine/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termengine/internal/registry"
	"github.com/GriffinCanCode/termengine/internal/transport"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	config     *config.Config
	logger     *logging.Logger
	metrics    *monitoring.Metrics
	registry   *registry.Manager
	dispatcher *dispatch.Dispatcher
	router     *gin.Engine
	http       *http.Server
	watched    chan struct{}
}

// Options overrides collaborators NewServer would otherwise build from
// config. Zero fields take the defaults.
type Options struct {
	Logger *logging.Logger
	// Opener replaces the PTY/SSH dialer
	Opener transport.Opener
	// Registry receives the engine metrics and backs /metrics
	Registry *prometheus.Registry
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.FromConfig(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
			Components:  cfg.Logging.Components,
		})
	}

	logger.Info("Initializing termengine server",
		zap.String("addr", net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)),
		zap.Int("scrollback", cfg.Session.ScrollbackSize),
		zap.Duration("retain", cfg.Session.Retain),
	)

	promReg := opts.Registry
	if promReg == nil {
		promReg = prometheus.NewRegistry()
		promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	metrics := monitoring.NewMetrics(promReg)

	opener := opts.Opener
	if opener == nil {
		dialerOpts := transport.OptionsFromConfig(cfg.Transport)
		dialerOpts.Logger = logger.Logger
		if cfg.Credentials.File != "" {
			store, err := credentials.Load(cfg.Credentials.File, logger.Logger)
			if err != nil {
				return nil, fmt.Errorf("failed to load credentials: %w", err)
			}
			dialerOpts.Credentials = store
			logger.Info("Credential profiles loaded",
				zap.String("file", cfg.Credentials.File),
				zap.Strings("profiles", store.Names()))
		}
		opener = transport.NewDialer(dialerOpts)
	}

	regOpts := registry.OptionsFromConfig(cfg.Session)
	regOpts.Opener = opener
	regOpts.Logger = logger.Logger
	regOpts.Metrics = metrics
	sessions := registry.New(regOpts)

	gate := dispatch.GateFromConfig(cfg.Reconnect, logger.Logger)
	dispatcher := dispatch.New(sessions, dispatch.Options{Gate: gate, Logger: logger.Logger})

	origins, err := middleware.NewOriginPolicy(cfg.Server.AllowedOrigins)
	if err != nil {
		return nil, fmt.Errorf("invalid CORS_ORIGINS: %w", err)
	}
	if origins.AllowsAny() {
		logger.Warn("CORS admits every origin; websocket upgrades still require a listed or same-host origin")
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestLog(logger.Logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig().WithOrigins(origins)))

	var openGuards []gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
			zap.Int("input_rps", cfg.RateLimit.InputPerSecond),
			zap.Int("open_rps", cfg.RateLimit.OpenPerSecond),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
		if cfg.RateLimit.OpenPerSecond > 0 {
			openGuards = append(openGuards, middleware.GlobalRateLimit(middleware.RateLimitConfig{
				RequestsPerSecond: cfg.RateLimit.OpenPerSecond,
				Burst:             max(cfg.RateLimit.OpenBurst, 1),
			}))
		}
	}

	apihttp.NewHandlers(dispatcher, gate, metrics, logger.Logger).Register(router, openGuards...)

	wsOpts := ws.Options{Origins: origins, Logger: logger.Logger, Metrics: metrics}
	if cfg.RateLimit.Enabled {
		wsOpts.InputPerSecond = cfg.RateLimit.InputPerSecond
	}
	router.GET("/ws", ws.NewHandler(dispatcher, wsOpts).HandleConnection)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})))

	s := &Server{
		config:     cfg,
		logger:     logger,
		metrics:    metrics,
		registry:   sessions,
		dispatcher: dispatcher,
		router:     router,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		watched: make(chan struct{}),
	}
	go s.watch()

	logger.Info("Server initialized successfully")
	return s, nil
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler { return s.router }

// Run starts the HTTP server and blocks until it stops. A Shutdown is not
// reported as an error.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, closes every session and waits for
// them to be reaped, bounded by ctx
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.registry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("registry shutdown: %w", err))
	} else {
		s.logger.Info("All sessions closed")
	}
	s.dispatcher.Close()
	<-s.watched

	_ = s.logger.Sync()
	return errors.Join(errs...)
}

// watch drains the dispatcher fan-in and logs how each session ended
func (s *Server) watch() {
	defer close(s.watched)

	for out := range s.dispatcher.Events() {
		if !out.Terminal() {
			continue
		}
		t := out.Transition
		fields := []zap.Field{
			zap.String("session_id", out.SessionID.String()),
			zap.Stringer("state", t.To),
			zap.String("reason", string(t.Reason)),
		}
		if t.HasCode {
			fields = append(fields, zap.Int("exit_code", t.ExitCode))
		}
		if t.Error != "" {
			fields = append(fields, zap.String("error", t.Error))
			s.logger.Warn("Session failed", fields...)
			continue
		}
		s.logger.Info("Session ended", fields...)
	}
}
