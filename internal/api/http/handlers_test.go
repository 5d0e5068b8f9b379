package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/termengine/internal/dispatch"
	"github.com/GriffinCanCode/termengine/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termengine/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/termengine/internal/registry"
	"github.com/GriffinCanCode/termengine/internal/session"
	"github.com/GriffinCanCode/termengine/internal/transport"
	"github.com/GriffinCanCode/termengine/internal/transport/transporttest"
)

type testAPI struct {
	router *gin.Engine
	opener *transporttest.Opener
	reg    *registry.Manager
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	opener := transporttest.NewOpener()
	reg := registry.New(registry.Options{Opener: opener, Retain: time.Minute})
	d := dispatch.New(reg, dispatch.Options{})
	gate := resilience.NewGate(resilience.Settings{})
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	router := gin.New()
	NewHandlers(d, gate, metrics, nil).Register(router)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = reg.Shutdown(ctx)
		d.Close()
	})
	return &testAPI{router: router, opener: opener, reg: reg}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

// open creates a local session and waits for it to be active
func (a *testAPI) open(t *testing.T) (string, *transporttest.Fake) {
	t.Helper()
	w := a.do(t, "POST", "/sessions", transport.LocalShell("bash"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct{ ID string }
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	fake := <-a.opener.Opened()
	require.Eventually(t, func() bool {
		var info session.Info
		w := a.do(t, "GET", "/sessions/"+resp.ID, nil)
		_ = json.Unmarshal(w.Body.Bytes(), &info)
		return info.State == session.StateActive
	}, 5*time.Second, 10*time.Millisecond)
	return resp.ID, fake
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestRootAndHealth(t *testing.T) {
	api := setupAPI(t)

	w := api.do(t, "GET", "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "termengine", decode(t, w)["service"])

	w = api.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(0), body["sessions"])
}

func TestSessionLifecycle(t *testing.T) {
	api := setupAPI(t)
	sid, fake := api.open(t)

	w := api.do(t, "GET", "/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = api.do(t, "POST", "/sessions/"+sid+"/input", InputRequest{Data: "ls"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	w = api.do(t, "POST", "/sessions/"+sid+"/input", InputRequest{Key: "Enter"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	w = api.do(t, "POST", "/sessions/"+sid+"/command", CommandRequest{Line: "pwd"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool { return fake.Written() == "ls\rpwd\r" }, 5*time.Second, 5*time.Millisecond)

	w = api.do(t, "POST", "/sessions/"+sid+"/resize", ResizeRequest{Rows: 40, Cols: 120})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []transport.Size{{Rows: 40, Cols: 120}}, fake.Sizes())

	w = api.do(t, "GET", "/sessions/"+sid+"/history", nil)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = api.do(t, "POST", "/sessions/"+sid+"/reconnect", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "live sessions cannot be reconnected")

	w = api.do(t, "DELETE", "/sessions/"+sid, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, fake.Closes())

	w = api.do(t, "POST", "/sessions/"+sid+"/input", InputRequest{Data: "late"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, "POST", "/sessions/"+sid+"/reconnect", nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, sid, decode(t, w)["previous_id"])
}

func TestBadRequests(t *testing.T) {
	api := setupAPI(t)
	sid, _ := api.open(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown session", "GET", "/sessions/term_missing", nil, http.StatusNotFound},
		{"close unknown", "DELETE", "/sessions/term_missing", nil, http.StatusNotFound},
		{"invalid spec", "POST", "/sessions", transport.Spec{Kind: "telnet"}, http.StatusBadRequest},
		{"remote without host", "POST", "/sessions", transport.Spec{Kind: transport.KindRemote, Remote: &transport.RemoteSpec{}}, http.StatusBadRequest},
		{"input needs data or key", "POST", "/sessions/" + sid + "/input", InputRequest{}, http.StatusBadRequest},
		{"input not both", "POST", "/sessions/" + sid + "/input", InputRequest{Data: "a", Key: "b"}, http.StatusBadRequest},
		{"unknown key", "POST", "/sessions/" + sid + "/input", InputRequest{Key: "hyper"}, http.StatusBadRequest},
		{"empty command", "POST", "/sessions/" + sid + "/command", CommandRequest{}, http.StatusBadRequest},
		{"zero size", "POST", "/sessions/" + sid + "/resize", ResizeRequest{Rows: 0, Cols: 80}, http.StatusBadRequest},
		{"bad format", "GET", "/sessions/" + sid + "/scrollback?format=pdf", nil, http.StatusBadRequest},
		{"bad compression", "GET", "/sessions/" + sid + "/scrollback?compress=lz4", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.NotEmpty(t, decode(t, w)["error"])
		})
	}
}

func TestScrollbackExport(t *testing.T) {
	api := setupAPI(t)
	sid, fake := api.open(t)

	fake.Emit("\x1b[32mok\x1b[0m done\r\n")
	require.Eventually(t, func() bool {
		return api.do(t, "GET", "/sessions/"+sid+"/scrollback", nil).Body.String() == "ok done\n"
	}, 5*time.Second, 10*time.Millisecond)

	w := api.do(t, "GET", "/sessions/"+sid+"/scrollback?format=raw", nil)
	assert.Equal(t, "\x1b[32mok\x1b[0m done\r\n", w.Body.String())
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))

	w = api.do(t, "GET", "/sessions/"+sid+"/scrollback?format=json", nil)
	body := decode(t, w)
	assert.Greater(t, body["count"], float64(1))

	w = api.do(t, "GET", "/sessions/"+sid+"/scrollback?compress=gzip", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), sid+".txt.gz")
	gz, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	plain, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, "ok done\n", string(plain))

	w = api.do(t, "GET", "/sessions/"+sid+"/scrollback?format=raw&compress=zstd", nil)
	require.Equal(t, http.StatusOK, w.Code)
	zr, err := zstd.NewReader(w.Body)
	require.NoError(t, err)
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "\x1b[32m"))

	// still readable after close
	require.Equal(t, http.StatusOK, api.do(t, "DELETE", "/sessions/"+sid, nil).Code)
	w = api.do(t, "GET", "/sessions/"+sid+"/scrollback", nil)
	assert.Equal(t, "ok done\n", w.Body.String())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{registry.ErrUnknownSession, http.StatusNotFound},
		{session.ErrInvalidState, http.StatusConflict},
		{session.ErrSessionClosing, http.StatusConflict},
		{session.ErrInputQueueFull, http.StatusServiceUnavailable},
		{resilience.ErrCircuitOpen, http.StatusServiceUnavailable},
		{registry.ErrRegistryClosed, http.StatusServiceUnavailable},
		{transport.ErrInvalidSpec, http.StatusBadRequest},
		{dispatch.ErrUnknownKey, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusRequestTimeout},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
