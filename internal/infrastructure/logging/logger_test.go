package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRejectsBadLevels(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Config{Level: "info", Components: map[string]string{Transport: "loud"}})
	assert.ErrorContains(t, err, "component transport")
}

func TestFromConfigFallsBack(t *testing.T) {
	logger := FromConfig(Config{Level: "loud"})
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Logger)
}

func TestComponentLevels(t *testing.T) {
	lv, err := newLevels("info", map[string]string{"Transport": "debug", WS: "error"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lv.min())

	core, logs := observer.New(zapcore.DebugLevel)
	root := zap.New(&componentCore{Core: core, levels: lv})

	For(root, Transport).Debug("dialing")
	For(root, Transport).Named("ssh").Debug("handshake")
	For(root, Session).With(zap.String("session_id", "s1")).Debug("chunk")
	For(root, Session).Info("opened")
	For(root, WS).Warn("slow client")
	For(root, WS).Error("upgrade failed")
	root.Debug("root debug")

	var got []string
	for _, e := range logs.All() {
		got = append(got, e.LoggerName+": "+e.Message)
	}
	assert.Equal(t, []string{
		"transport: dialing",
		"transport.ssh: handshake",
		"session: opened",
		"ws: upgrade failed",
	}, got)
}

func TestOrNopAndFor(t *testing.T) {
	assert.NotNil(t, OrNop(nil))

	l := NewNop().Logger
	assert.Same(t, l, OrNop(l))
	assert.NotNil(t, For(nil, Registry))
}

func TestEncodingFormat(t *testing.T) {
	assert.Equal(t, "console", encodingFormat(true))
	assert.Equal(t, "json", encodingFormat(false))
}
