package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive   prometheus.Gauge
	SessionsOpened   *prometheus.CounterVec
	SessionsFailed   *prometheus.CounterVec
	SessionsReaped   prometheus.Counter
	OpenDuration     *prometheus.HistogramVec
	BytesIn          *prometheus.CounterVec
	BytesOut         *prometheus.CounterVec
	ChunksOut        *prometheus.CounterVec
	InputQueueFull   prometheus.Counter
	SubscriberLagged prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// Snapshot for JSON API - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON health endpoint
type Snapshot struct {
	SessionsActive int64 `json:"sessions_active"`
	SessionsOpened int64 `json:"sessions_opened"`
	SessionsFailed int64 `json:"sessions_failed"`
	TotalRequests  int64 `json:"total_requests"`
}

// NewMetrics creates a metrics collector registered on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termengine_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "termengine_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "termengine_sessions_active",
				Help: "Number of sessions currently held by the registry",
			},
		),
		SessionsOpened: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termengine_sessions_opened_total",
				Help: "Total number of sessions that reached Active",
			},
			[]string{"kind"},
		),
		SessionsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termengine_sessions_failed_total",
				Help: "Total number of sessions that ended Failed",
			},
			[]string{"kind", "reason"},
		),
		SessionsReaped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termengine_sessions_reaped_total",
				Help: "Total number of sessions removed from the registry",
			},
		),
		OpenDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "termengine_session_open_duration_seconds",
				Help:    "Time from open request to Active or Failed",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind"},
		),
		BytesIn: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termengine_input_bytes_total",
				Help: "Bytes written to transports",
			},
			[]string{"kind"},
		),
		BytesOut: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termengine_output_bytes_total",
				Help: "Bytes read from transports",
			},
			[]string{"kind"},
		),
		ChunksOut: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termengine_output_chunks_total",
				Help: "Display chunks produced by readers",
			},
			[]string{"kind"},
		),
		InputQueueFull: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termengine_input_queue_full_total",
				Help: "Input writes rejected because the session queue stayed full",
			},
		),
		SubscriberLagged: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termengine_subscriber_overruns_total",
				Help: "Times a subscriber fell behind the scrollback window",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "termengine_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termengine_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.mu.Unlock()
}

// SessionOpened records a session reaching Active
func (m *Metrics) SessionOpened(kind string, took time.Duration) {
	if m == nil {
		return
	}
	m.SessionsOpened.WithLabelValues(kind).Inc()
	m.OpenDuration.WithLabelValues(kind).Observe(took.Seconds())

	m.mu.Lock()
	m.snapshot.SessionsOpened++
	m.mu.Unlock()
}

// SessionFailed records a session ending Failed
func (m *Metrics) SessionFailed(kind, reason string) {
	if m == nil {
		return
	}
	m.SessionsFailed.WithLabelValues(kind, reason).Inc()

	m.mu.Lock()
	m.snapshot.SessionsFailed++
	m.mu.Unlock()
}

// SessionReaped records a registry removal
func (m *Metrics) SessionReaped() {
	if m == nil {
		return
	}
	m.SessionsReaped.Inc()
}

// SetSessionsActive sets the number of sessions held by the registry
func (m *Metrics) SetSessionsActive(count int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(count))

	m.mu.Lock()
	m.snapshot.SessionsActive = int64(count)
	m.mu.Unlock()
}

// AddInput records bytes handed to a transport
func (m *Metrics) AddInput(kind string, n int) {
	if m == nil {
		return
	}
	m.BytesIn.WithLabelValues(kind).Add(float64(n))
}

// AddOutput records bytes read from a transport and the chunks they produced
func (m *Metrics) AddOutput(kind string, n, chunks int) {
	if m == nil {
		return
	}
	m.BytesOut.WithLabelValues(kind).Add(float64(n))
	m.ChunksOut.WithLabelValues(kind).Add(float64(chunks))
}

// IncInputQueueFull records a rejected input write
func (m *Metrics) IncInputQueueFull() {
	if m == nil {
		return
	}
	m.InputQueueFull.Inc()
}

// IncSubscriberOverrun records a subscriber skipping evicted scrollback
func (m *Metrics) IncSubscriberOverrun() {
	if m == nil {
		return
	}
	m.SubscriberLagged.Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// GetSnapshot returns current values for the JSON API
func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
