package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Component names. Each engine layer names its logger with one of these,
// and per-component levels key on the first segment of the logger name.
const (
	Transport   = "transport"
	Session     = "session"
	Registry    = "registry"
	Dispatch    = "dispatch"
	Reconnect   = "reconnect"
	Credentials = "credentials"
	API         = "api"
	HTTP        = "http"
	WS          = "ws"
)

// Logger wraps zap.Logger for the server root.
type Logger struct {
	*zap.Logger
}

// Config defines logger configuration.
type Config struct {
	Level       string // "debug", "info", "warn", "error"
	Development bool
	// Components overrides Level per component, e.g. {"transport": "debug"}
	Components  map[string]string
	OutputPaths []string
}

// DefaultConfig returns production logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:       "info",
		OutputPaths: []string{"stdout"},
	}
}

// New creates a logger. The core is built at the most verbose configured
// level and each entry is then held to the level of its component.
func New(cfg Config) (*Logger, error) {
	lv, err := newLevels(cfg.Level, cfg.Components)
	if err != nil {
		return nil, err
	}
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stdout"}
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(lv.min()),
		Development:       cfg.Development,
		Encoding:          encodingFormat(cfg.Development),
		EncoderConfig:     encoderConfig(cfg.Development),
		OutputPaths:       cfg.OutputPaths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
	}

	logger, err := zapCfg.Build(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return &componentCore{Core: c, levels: lv}
	}))
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: logger}, nil
}

// FromConfig is New that falls back to an info-level production logger when
// cfg is invalid, and to a no-op logger when even that cannot be built.
func FromConfig(cfg Config) *Logger {
	if cfg.Development && cfg.Level == "" {
		cfg.Level = "debug"
	}
	if logger, err := New(cfg); err == nil {
		return logger
	}
	if logger, err := New(DefaultConfig()); err == nil {
		logger.Warn("Invalid logging config, using defaults",
			zap.String("level", cfg.Level),
			zap.Any("components", cfg.Components),
		)
		return logger
	}
	return NewNop()
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// OrNop returns l, or a no-op zap logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// For names l after an engine component, tolerating a nil l.
func For(l *zap.Logger, component string) *zap.Logger {
	return OrNop(l).Named(component)
}

// levels maps components to their minimum enabled level
type levels struct {
	base       zapcore.Level
	components map[string]zapcore.Level
}

func newLevels(base string, components map[string]string) (levels, error) {
	lvl, err := parseLevel(base)
	if err != nil {
		return levels{}, err
	}
	lv := levels{base: lvl, components: make(map[string]zapcore.Level, len(components))}
	for name, level := range components {
		l, err := parseLevel(level)
		if err != nil {
			return levels{}, fmt.Errorf("component %s: %w", name, err)
		}
		lv.components[strings.ToLower(name)] = l
	}
	return lv, nil
}

func (l levels) of(loggerName string) zapcore.Level {
	component, _, _ := strings.Cut(loggerName, ".")
	if lvl, ok := l.components[component]; ok {
		return lvl
	}
	return l.base
}

func (l levels) min() zapcore.Level {
	m := l.base
	for _, lvl := range l.components {
		if lvl < m {
			m = lvl
		}
	}
	return m
}

// componentCore drops entries below the level of the component that logged them
type componentCore struct {
	zapcore.Core
	levels levels
}

func (c *componentCore) With(fields []zapcore.Field) zapcore.Core {
	return &componentCore{Core: c.Core.With(fields), levels: c.levels}
}

func (c *componentCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if ent.Level < c.levels.of(ent.LoggerName) {
		return ce
	}
	return c.Core.Check(ent, ce)
}

// parseLevel converts string level to zapcore.Level.
func parseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

// encodingFormat returns encoding format based on environment.
func encodingFormat(development bool) string {
	if development {
		return "console"
	}
	return "json"
}

// encoderConfig returns encoder configuration based on environment.
func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		return zapcore.EncoderConfig{
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			CallerKey:      "C",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "M",
			StacktraceKey:  "S",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}
	}

	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "component",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}
