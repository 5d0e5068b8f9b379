// Package config provides 12-factor configuration management for the engine.
//
// Configuration is loaded from environment variables with sensible defaults.
//
// Configuration Sections:
//   - Server: HTTP/WebSocket adapter settings (port, host)
//   - Logging: Log level and output format
//   - Session: scrollback capacity, input queue depth and timeout, drain timeout
//   - Transport: close grace period, SSH dial/login timeouts, keepalive, host keys
//   - Credentials: credential profile file (YAML or TOML)
//   - RateLimit: per-IP HTTP limits and per-connection input limits
//   - Reconnect: per-host circuit breaker for reconnect attempts
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Listening on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, LOG_LEVEL, LOG_DEV
//   - TERM_SCROLLBACK, TERM_INPUT_QUEUE, TERM_INPUT_TIMEOUT, TERM_DRAIN_TIMEOUT, TERM_HISTORY
//   - TERM_CLOSE_GRACE, TERM_TYPE, TERM_SHELL, TERM_CREDENTIALS
//   - SSH_DIAL_TIMEOUT, SSH_LOGIN_TIMEOUT, SSH_KEEPALIVE, SSH_KNOWN_HOSTS,
//     SSH_INSECURE_HOST_KEYS, SSH_NO_AGENT
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED, RATE_LIMIT_INPUT_RPS
//   - RECONNECT_FAILURES, RECONNECT_COOLDOWN
package config
