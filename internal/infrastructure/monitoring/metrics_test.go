package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSessionMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SessionOpened("local", 10*time.Millisecond)
	m.SessionOpened("remote", time.Second)
	m.SessionFailed("remote", "connect")
	m.SetSessionsActive(2)
	m.AddOutput("local", 128, 3)
	m.AddInput("local", 5)
	m.IncInputQueueFull()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsOpened.WithLabelValues("local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsFailed.WithLabelValues("remote", "connect")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, 128.0, testutil.ToFloat64(m.BytesOut.WithLabelValues("local")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ChunksOut.WithLabelValues("local")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.BytesIn.WithLabelValues("local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InputQueueFull))

	snap := m.GetSnapshot()
	assert.Equal(t, int64(2), snap.SessionsActive)
	assert.Equal(t, int64(2), snap.SessionsOpened)
	assert.Equal(t, int64(1), snap.SessionsFailed)
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.SessionOpened("local", time.Millisecond)
		m.SessionFailed("local", "spawn")
		m.SetSessionsActive(1)
		m.AddOutput("local", 1, 1)
		m.RecordWSMessage("in", "input")
		m.IncWSConnections()
	})
	assert.Equal(t, Snapshot{}, m.GetSnapshot())
}
