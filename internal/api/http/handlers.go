package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termengine/internal/dispatch"
	"github.com/GriffinCanCode/termengine/internal/infrastructure/logging"
	"github.com/GriffinCanCode/termengine/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termengine/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/termengine/internal/shared/id"
	"github.com/GriffinCanCode/termengine/internal/transport"
)

// Version is reported by the root and health endpoints
const Version = "0.1.0"

// Handlers contains all HTTP handlers
type Handlers struct {
	dispatcher *dispatch.Dispatcher
	gate       *resilience.Gate
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

// NewHandlers creates a new handler set. gate and metrics may be nil.
func NewHandlers(d *dispatch.Dispatcher, gate *resilience.Gate, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	return &Handlers{
		dispatcher: d,
		gate:       gate,
		metrics:    metrics,
		logger:     logging.For(logger, logging.API),
	}
}

// Register mounts every session route on r. openGuards run in front of the
// routes that open a transport.
func (h *Handlers) Register(r gin.IRouter, openGuards ...gin.HandlerFunc) {
	guarded := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc(nil), openGuards...), handler)
	}

	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	sessions := r.Group("/sessions")
	sessions.GET("", h.ListSessions)
	sessions.POST("", guarded(h.OpenSession)...)
	sessions.GET("/:id", h.GetSession)
	sessions.DELETE("/:id", h.CloseSession)
	sessions.POST("/:id/input", h.SendInput)
	sessions.POST("/:id/command", h.SendCommand)
	sessions.POST("/:id/resize", h.Resize)
	sessions.POST("/:id/reconnect", guarded(h.Reconnect)...)
	sessions.GET("/:id/scrollback", h.Scrollback)
	sessions.GET("/:id/history", h.History)
}

// Root identifies the service
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "termengine",
		"version": Version,
	})
}

// Health reports session counts and reconnect gate states
func (h *Handlers) Health(c *gin.Context) {
	gates := map[string]string{}
	if h.gate != nil {
		for host, state := range h.gate.States() {
			gates[host] = state.String()
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"version":         Version,
		"sessions":        len(h.dispatcher.List()),
		"metrics":         h.metrics.GetSnapshot(),
		"reconnect_gates": gates,
	})
}

// ListSessions lists every held session in creation order
func (h *Handlers) ListSessions(c *gin.Context) {
	infos := h.dispatcher.List()
	c.JSON(http.StatusOK, gin.H{
		"sessions": infos,
		"count":    len(infos),
	})
}

// OpenSession opens a session from a transport spec. It answers while the
// session is still opening; follow its state over /ws or GET /sessions/:id.
func (h *Handlers) OpenSession(c *gin.Context) {
	var spec transport.Spec
	if err := c.ShouldBindJSON(&spec); err != nil {
		badRequest(c, fmt.Errorf("invalid spec: %w", err))
		return
	}

	sid, err := h.dispatcher.RequestOpen(c.Request.Context(), spec)
	if err != nil {
		fail(c, err)
		return
	}

	h.logger.Info("session opened via api",
		zap.String("session_id", sid.String()),
		zap.String("target", spec.Target()))
	c.JSON(http.StatusCreated, gin.H{"id": sid})
}

// GetSession returns one session's info
func (h *Handlers) GetSession(c *gin.Context) {
	s, err := h.dispatcher.Lookup(sessionID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Info())
}

// CloseSession closes a session and answers once it is terminal
func (h *Handlers) CloseSession(c *gin.Context) {
	sid := sessionID(c)
	if err := h.dispatcher.RequestClose(sid); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": sid, "closed": true})
}

// InputRequest carries raw text or a named key
type InputRequest struct {
	Data string `json:"data"`
	Key  string `json:"key"`
}

// SendInput queues raw input or a named key
func (h *Handlers) SendInput(c *gin.Context) {
	var req InputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if (req.Data == "") == (req.Key == "") {
		badRequest(c, errors.New("exactly one of data or key is required"))
		return
	}

	sid := sessionID(c)
	var err error
	if req.Key != "" {
		err = h.dispatcher.SubmitKey(c.Request.Context(), sid, req.Key)
	} else {
		err = h.dispatcher.SubmitInput(c.Request.Context(), sid, []byte(req.Data))
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": sid, "queued": true})
}

// CommandRequest is one command line
type CommandRequest struct {
	Line string `json:"line" binding:"required"`
}

// SendCommand sends a line followed by Enter
func (h *Handlers) SendCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	cmd, err := h.dispatcher.SubmitCommand(c.Request.Context(), sessionID(c), req.Line)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, cmd)
}

// ResizeRequest is a terminal size
type ResizeRequest struct {
	Rows uint16 `json:"rows" binding:"required"`
	Cols uint16 `json:"cols" binding:"required"`
}

// Resize changes the terminal size
func (h *Handlers) Resize(c *gin.Context) {
	var req ResizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sid := sessionID(c)
	if err := h.dispatcher.RequestResize(sid, req.Rows, req.Cols); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": sid, "size": transport.Size{Rows: req.Rows, Cols: req.Cols}})
}

// Reconnect reopens a finished session's spec as a new session
func (h *Handlers) Reconnect(c *gin.Context) {
	previous := sessionID(c)
	sid, err := h.dispatcher.RequestReconnect(c.Request.Context(), previous)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": sid, "previous_id": previous})
}

// History lists the commands submitted to a session
func (h *Handlers) History(c *gin.Context) {
	s, err := h.dispatcher.Lookup(sessionID(c))
	if err != nil {
		fail(c, err)
		return
	}
	history := s.History()
	c.JSON(http.StatusOK, gin.H{"id": s.ID(), "commands": history, "count": len(history)})
}

func sessionID(c *gin.Context) id.SessionID {
	return id.SessionID(c.Param("id"))
}
