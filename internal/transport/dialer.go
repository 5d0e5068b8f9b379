package transport

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termengine/internal/infrastructure/config"
	"github.com/GriffinCanCode/termengine/internal/infrastructure/logging"
)

// Options configures a Dialer
type Options struct {
	CloseGrace       time.Duration
	DialTimeout      time.Duration
	LoginTimeout     time.Duration
	KeepAlive        time.Duration
	TermType         string
	DefaultShell     string
	KnownHostsFile   string
	InsecureHostKeys bool
	DisableAgent     bool

	Credentials CredentialResolver
	Logger      *zap.Logger
}

// OptionsFromConfig maps transport configuration onto Options
func OptionsFromConfig(cfg config.TransportConfig) Options {
	return Options{
		CloseGrace:       cfg.CloseGrace,
		DialTimeout:      cfg.DialTimeout,
		LoginTimeout:     cfg.LoginTimeout,
		KeepAlive:        cfg.KeepAlive,
		TermType:         cfg.TermType,
		DefaultShell:     cfg.DefaultShell,
		KnownHostsFile:   cfg.KnownHostsFile,
		InsecureHostKeys: cfg.InsecureHostKeys,
		DisableAgent:     cfg.DisableSSHAgent,
	}
}

// Dialer is the production Opener for both transport kinds
type Dialer struct {
	opts   Options
	logger *zap.Logger
}

// NewDialer creates a Dialer, filling unset options with defaults
func NewDialer(opts Options) *Dialer {
	if opts.CloseGrace <= 0 {
		opts.CloseGrace = 3 * time.Second
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.LoginTimeout <= 0 {
		opts.LoginTimeout = 10 * time.Second
	}
	if opts.TermType == "" {
		opts.TermType = "xterm-256color"
	}
	if opts.DefaultShell == "" {
		opts.DefaultShell = os.Getenv("SHELL")
	}
	if opts.DefaultShell == "" {
		opts.DefaultShell = "/bin/sh"
	}
	if opts.Credentials == nil {
		opts.Credentials = StaticCredentials{}
	}

	return &Dialer{
		opts:   opts,
		logger: logging.For(opts.Logger, logging.Transport),
	}
}

// Open implements Opener
func (d *Dialer) Open(ctx context.Context, spec Spec) (Transport, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	switch spec.Kind {
	case KindLocal:
		return d.openLocal(ctx, spec.Local)
	case KindRemote:
		return d.openRemote(ctx, spec.Remote)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, spec.Kind)
	}
}
