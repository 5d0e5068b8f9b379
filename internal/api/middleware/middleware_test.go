package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/termengine/internal/shared/id"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestCORS(t *testing.T) {
	router := setupTestRouter()
	router.Use(CORS(DefaultCORSConfig()))
	router.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": []string{}})
	})

	tests := []struct {
		name           string
		method         string
		origin         string
		wantStatus     int
		wantCORSHeader bool
	}{
		{"simple GET request with origin", "GET", "http://localhost:3000", http.StatusOK, true},
		{"preflight OPTIONS request", "OPTIONS", "http://localhost:3000", http.StatusNoContent, true},
		{"no origin header", "GET", "", http.StatusOK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/sessions", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.method == "OPTIONS" {
				req.Header.Set("Access-Control-Request-Method", "POST")
			}

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCORSHeader {
				assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestCORSRestrictedOrigins(t *testing.T) {
	cfg := DefaultCORSConfig().WithOrigins(MustOriginPolicy("https://console.example.com"))

	router := setupTestRouter()
	router.Use(CORS(cfg))
	router.GET("/sessions", func(c *gin.Context) { c.Status(http.StatusOK) })

	get := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/sessions", nil)
		req.Header.Set("Origin", origin)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusForbidden, get("https://evil.example.com").Code)
	w := get("https://console.example.com")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://console.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSRejectsForeignSessionOpen(t *testing.T) {
	router := setupTestRouter()
	router.Use(CORS(DefaultCORSConfig()))
	opened := false
	router.POST("/sessions", func(c *gin.Context) {
		opened = true
		c.Status(http.StatusCreated)
	})

	req := httptest.NewRequest("POST", "/sessions", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, opened)
}

func TestOriginPolicy(t *testing.T) {
	local := MustOriginPolicy()
	corp := MustOriginPolicy("https://*.corp.example", "http://localhost:3000")
	wide := MustOriginPolicy("*")

	tests := []struct {
		name   string
		policy OriginPolicy
		origin string
		want   bool
	}{
		{"localhost with port", local, "http://localhost:5173", true},
		{"loopback without port", local, "http://127.0.0.1", true},
		{"case insensitive", local, "HTTP://LOCALHOST:8080", true},
		{"foreign", local, "https://evil.example", false},
		{"lookalike host", local, "http://localhost.evil.example", false},
		{"wildcard subdomain", corp, "https://term.corp.example", true},
		{"wildcard wrong scheme", corp, "http://term.corp.example", false},
		{"exact port only", corp, "http://localhost:3001", false},
		{"star", wide, "https://anything.example", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Match(tt.origin))
		})
	}

	_, err := NewOriginPolicy([]string{"http://[bad"})
	assert.Error(t, err)
}

func TestOriginPolicyCheckRequest(t *testing.T) {
	upgrade := func(host, origin string) *http.Request {
		req := httptest.NewRequest("GET", "http://"+host+"/ws", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		return req
	}

	local := MustOriginPolicy()
	assert.True(t, local.CheckRequest(upgrade("127.0.0.1:8000", "")), "non-browser client")
	assert.True(t, local.CheckRequest(upgrade("127.0.0.1:8000", "http://127.0.0.1:8000")), "same host")
	assert.True(t, local.CheckRequest(upgrade("127.0.0.1:8000", "http://localhost:5173")))
	assert.False(t, local.CheckRequest(upgrade("127.0.0.1:8000", "https://evil.example")))

	// A wildcard opens CORS but never sockets
	wide := MustOriginPolicy("*")
	assert.False(t, wide.CheckRequest(upgrade("127.0.0.1:8000", "https://evil.example")))
	assert.True(t, wide.CheckRequest(upgrade("term.example:443", "https://term.example:443")))
}

func TestRateLimit(t *testing.T) {
	router := setupTestRouter()
	router.Use(RateLimit(RateLimitConfig{RequestsPerSecond: 2, Burst: 2}))
	router.GET("/sessions", func(c *gin.Context) { c.Status(http.StatusOK) })

	get := func(addr string) int {
		req := httptest.NewRequest("GET", "/sessions", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	// Burst capacity first
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, get("192.168.1.1:1234"), "request %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, get("192.168.1.1:1234"))
	assert.Equal(t, http.StatusOK, get("192.168.1.2:1234"), "other clients keep their own bucket")
}

func TestGlobalRateLimit(t *testing.T) {
	router := setupTestRouter()
	router.Use(GlobalRateLimit(RateLimitConfig{RequestsPerSecond: 2, Burst: 2}))
	router.GET("/sessions", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1"} {
		req := httptest.NewRequest("GET", "/sessions", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestLimitersSweepIdleKeys(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	l := NewLimiters(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, IdleTTL: time.Minute})
	l.now = func() time.Time { return clock }

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
	assert.Equal(t, 2, l.Len())

	clock = clock.Add(2 * time.Minute)
	assert.True(t, l.Allow("c"))
	assert.Equal(t, 1, l.Len(), "idle keys are dropped")
}

func TestRequestLog(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	router := setupTestRouter()
	router.Use(RequestLog(zap.New(core)))

	var seen string
	router.GET("/sessions/:id", func(c *gin.Context) {
		seen = RequestID(c)
		c.Status(http.StatusNotFound)
	})

	req := httptest.NewRequest("GET", "/sessions/term_x", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	rid := w.Header().Get(RequestIDHeader)
	assert.True(t, id.IsValidPrefixed(rid, id.RequestPrefix))
	assert.Equal(t, rid, seen)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, int64(http.StatusNotFound), entries[0].ContextMap()["status"])

	req = httptest.NewRequest("GET", "/sessions/term_y", nil)
	req.Header.Set(RequestIDHeader, "upstream-7")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "upstream-7", w.Header().Get(RequestIDHeader))
}

func TestDefaultConfigs(t *testing.T) {
	cors := DefaultCORSConfig()
	assert.True(t, cors.Origins.Match("http://localhost:5173"))
	assert.False(t, cors.Origins.AllowsAny())
	assert.Contains(t, cors.AllowMethods, "DELETE")
	assert.Contains(t, cors.AllowHeaders, RequestIDHeader)
	assert.Equal(t, 12*time.Hour, cors.MaxAge)

	rl := DefaultRateLimitConfig()
	assert.Equal(t, 100, rl.RequestsPerSecond)
	assert.Equal(t, 200, rl.Burst)
}

func BenchmarkRateLimit(b *testing.B) {
	router := setupTestRouter()
	router.Use(RateLimit(DefaultRateLimitConfig()))
	router.GET("/sessions", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest("GET", "/sessions", nil)
	req.RemoteAddr = "192.168.1.1:1234"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}
}
