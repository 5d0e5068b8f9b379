package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	Origins          OriginPolicy
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSConfig admits LocalOrigins only
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		Origins:      MustOriginPolicy(LocalOrigins...),
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"Authorization",
			"Accept",
			"Origin",
			"Cache-Control",
			"X-Requested-With",
			RequestIDHeader,
		},
		ExposeHeaders:    []string{RequestIDHeader, "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

// WithOrigins returns a copy that admits origins
func (c CORSConfig) WithOrigins(origins OriginPolicy) CORSConfig {
	c.Origins = origins
	return c
}

// CORS creates a CORS middleware. Cross-origin requests from origins outside
// the policy are refused with 403 before any handler runs.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	conf := cors.Config{
		AllowMethods:     cfg.AllowMethods,
		AllowHeaders:     cfg.AllowHeaders,
		ExposeHeaders:    cfg.ExposeHeaders,
		AllowCredentials: cfg.AllowCredentials,
		AllowWebSockets:  true,
		MaxAge:           cfg.MaxAge,
	}
	if cfg.Origins.AllowsAny() {
		conf.AllowAllOrigins = true
	} else {
		conf.AllowOriginFunc = cfg.Origins.Match
	}
	return cors.New(conf)
}
