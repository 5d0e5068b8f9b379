package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Logging     LogConfig
	Session     SessionConfig
	Transport   TransportConfig
	Credentials CredentialsConfig
	RateLimit   RateLimitConfig
	Reconnect   ReconnectConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"127.0.0.1"`
	AllowedOrigins  []string      `envconfig:"CORS_ORIGINS" default:"http://localhost,http://localhost:*,http://127.0.0.1,http://127.0.0.1:*"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
	// Components overrides the level per component, e.g. "transport:debug,ws:warn"
	Components map[string]string `envconfig:"LOG_COMPONENTS"`
}

// SessionConfig bounds per-session memory and input backpressure.
type SessionConfig struct {
	ScrollbackSize int           `envconfig:"TERM_SCROLLBACK" default:"5000"`
	InputQueueSize int           `envconfig:"TERM_INPUT_QUEUE" default:"256"`
	InputTimeout   time.Duration `envconfig:"TERM_INPUT_TIMEOUT" default:"2s"`
	DrainTimeout   time.Duration `envconfig:"TERM_DRAIN_TIMEOUT" default:"5s"`
	// Retain keeps finished sessions listed for reconnect and scrollback
	// reads; zero removes them as soon as they drain
	Retain         time.Duration `envconfig:"TERM_RETAIN" default:"0s"`
	HistorySize    int           `envconfig:"TERM_HISTORY" default:"500"`
}

// TransportConfig holds local process and SSH settings.
type TransportConfig struct {
	CloseGrace       time.Duration `envconfig:"TERM_CLOSE_GRACE" default:"3s"`
	DialTimeout      time.Duration `envconfig:"SSH_DIAL_TIMEOUT" default:"10s"`
	LoginTimeout     time.Duration `envconfig:"SSH_LOGIN_TIMEOUT" default:"10s"`
	KeepAlive        time.Duration `envconfig:"SSH_KEEPALIVE" default:"30s"`
	TermType         string        `envconfig:"TERM_TYPE" default:"xterm-256color"`
	DefaultShell     string        `envconfig:"TERM_SHELL" default:""`
	KnownHostsFile   string        `envconfig:"SSH_KNOWN_HOSTS" default:""`
	InsecureHostKeys bool          `envconfig:"SSH_INSECURE_HOST_KEYS" default:"false"`
	DisableSSHAgent  bool          `envconfig:"SSH_NO_AGENT" default:"false"`
}

// CredentialsConfig points at the credential profile file (YAML or TOML).
type CredentialsConfig struct {
	File string `envconfig:"TERM_CREDENTIALS" default:""`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	InputPerSecond    int  `envconfig:"RATE_LIMIT_INPUT_RPS" default:"2000"`
	// Session opens and reconnects across all clients
	OpenPerSecond int `envconfig:"RATE_LIMIT_OPEN_RPS" default:"5"`
	OpenBurst     int `envconfig:"RATE_LIMIT_OPEN_BURST" default:"20"`
}

// ReconnectConfig gates reconnect attempts per remote host.
type ReconnectConfig struct {
	FailureThreshold uint32        `envconfig:"RECONNECT_FAILURES" default:"3"`
	Cooldown         time.Duration `envconfig:"RECONNECT_COOLDOWN" default:"30s"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Session.ScrollbackSize <= 0 {
		return fmt.Errorf("invalid config: TERM_SCROLLBACK must be positive, got %d", c.Session.ScrollbackSize)
	}
	if c.Session.InputQueueSize <= 0 {
		return fmt.Errorf("invalid config: TERM_INPUT_QUEUE must be positive, got %d", c.Session.InputQueueSize)
	}
	if c.Transport.CloseGrace < 0 {
		return fmt.Errorf("invalid config: TERM_CLOSE_GRACE must not be negative")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "127.0.0.1",
			AllowedOrigins:  []string{"http://localhost", "http://localhost:*", "http://127.0.0.1", "http://127.0.0.1:*"},
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Session: SessionConfig{
			ScrollbackSize: 5000,
			InputQueueSize: 256,
			InputTimeout:   2 * time.Second,
			DrainTimeout:   5 * time.Second,
			HistorySize:    500,
		},
		Transport: TransportConfig{
			CloseGrace:   3 * time.Second,
			DialTimeout:  10 * time.Second,
			LoginTimeout: 10 * time.Second,
			KeepAlive:    30 * time.Second,
			TermType:     "xterm-256color",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
			InputPerSecond:    2000,
			OpenPerSecond:     5,
			OpenBurst:         20,
		},
		Reconnect: ReconnectConfig{
			FailureThreshold: 3,
			Cooldown:         30 * time.Second,
		},
	}
}
