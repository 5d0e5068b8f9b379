package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termengine/internal/infrastructure/config"
	"github.com/GriffinCanCode/termengine/internal/infrastructure/monitoring"
)

// Options bounds a session's memory and input backpressure
type Options struct {
	ScrollbackSize int
	InputQueueSize int
	InputTimeout   time.Duration
	HistorySize    int

	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// OptionsFromConfig maps session configuration onto Options
func OptionsFromConfig(cfg config.SessionConfig) Options {
	return Options{
		ScrollbackSize: cfg.ScrollbackSize,
		InputQueueSize: cfg.InputQueueSize,
		InputTimeout:   cfg.InputTimeout,
		HistorySize:    cfg.HistorySize,
	}
}

func (o Options) withDefaults() Options {
	if o.ScrollbackSize <= 0 {
		o.ScrollbackSize = 5000
	}
	if o.InputQueueSize <= 0 {
		o.InputQueueSize = 256
	}
	if o.InputTimeout <= 0 {
		o.InputTimeout = 2 * time.Second
	}
	if o.HistorySize <= 0 {
		o.HistorySize = 500
	}
	return o
}
