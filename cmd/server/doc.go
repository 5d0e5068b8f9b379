// Package main is the entry point for the termengine server.
//
// termengine owns interactive terminal sessions, local PTYs and SSH logins,
// and exposes them to presentation clients.
//
// The server provides:
//   - REST API for opening, driving and closing sessions
//   - WebSocket streaming of parsed terminal output
//   - Scrollback export and command history
//   - Prometheus metrics
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -credentials /etc/termengine/profiles.yaml
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
