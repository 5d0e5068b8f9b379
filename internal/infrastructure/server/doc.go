// Package server wires the session engine behind its HTTP and WebSocket
// adapters.
//
// Server Lifecycle:
//  1. Load configuration from the environment
//  2. Initialize logger (production or development)
//  3. Register metrics on a dedicated Prometheus registry
//  4. Load credential profiles, when a file is configured
//  5. Build the PTY/SSH dialer, session registry and dispatcher
//  6. Setup HTTP routes, /ws and /metrics behind the middleware stack
//  7. Start HTTP server
//  8. Graceful shutdown: stop HTTP, close every session, wait for reaping
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg, server.Options{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	go srv.Run()
//	defer srv.Shutdown(ctx)
package server
