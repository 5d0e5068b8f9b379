// Package middleware provides the HTTP middleware in front of the engine's
// presentation adapters.
//
// Middleware stack includes:
//   - RequestLog: request ids (X-Request-ID) and zap request logging
//   - CORS: Cross-origin resource sharing; origins outside the OriginPolicy
//     get 403
//   - RateLimit: Per-IP token bucket rate limiting
//   - GlobalRateLimit: one shared bucket, used to bound session opens
//
// OriginPolicy also backs the websocket upgrader's origin check. It defaults
// to LocalOrigins.
//
// Limiters is the keyed token bucket behind RateLimit; the websocket adapter
// uses one per connection to bound input frames. Idle keys are swept after
// IdleTTL.
//
// Example Usage:
//
//	router.Use(middleware.RequestLog(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
