// Package logging provides structured logging using uber/zap.
//
// Two output modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Engine components accept a plain *zap.Logger and name it with For and one
// of the component constants, so every line carries the emitting layer plus
// the session_id field where one applies. Levels can be raised or lowered per
// component:
//
//	logger := logging.FromConfig(logging.Config{
//		Level:      "info",
//		Components: map[string]string{logging.Transport: "debug"},
//	})
//	log := logging.For(logger.Logger, logging.Session)
//	log.Info("Session opened", zap.String("session_id", id))
package logging
