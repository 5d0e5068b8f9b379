package ws

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termengine/internal/api/middleware"
	"github.com/GriffinCanCode/termengine/internal/dispatch"
	"github.com/GriffinCanCode/termengine/internal/infrastructure/logging"
	"github.com/GriffinCanCode/termengine/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termengine/internal/shared/id"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1 << 20
)

// Options configures a Handler
type Options struct {
	// InputPerSecond bounds key, paste and command frames per connection;
	// zero disables the limit
	InputPerSecond int
	InputBurst     int
	// SendBuffer is the per-connection outgoing frame queue (default 256)
	SendBuffer int
	// Origins lists the browser origins allowed to upgrade besides the
	// server's own host
	Origins middleware.OriginPolicy

	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// Handler manages WebSocket connections
type Handler struct {
	dispatcher *dispatch.Dispatcher
	upgrader   websocket.Upgrader
	limiters   *middleware.Limiters
	sendBuffer int
	logger     *zap.Logger
	metrics    *monitoring.Metrics
}

// NewHandler creates a new WebSocket handler
func NewHandler(d *dispatch.Dispatcher, opts Options) *Handler {
	h := &Handler{
		dispatcher: d,
		sendBuffer: opts.SendBuffer,
		logger:     logging.For(opts.Logger, logging.WS),
		metrics:    opts.Metrics,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     opts.Origins.CheckRequest,
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = 256
	}
	if opts.InputPerSecond > 0 {
		burst := opts.InputBurst
		if burst <= 0 {
			burst = opts.InputPerSecond
		}
		h.limiters = middleware.NewLimiters(middleware.RateLimitConfig{
			RequestsPerSecond: opts.InputPerSecond,
			Burst:             burst,
			IdleTTL:           pongWait,
		})
	}
	return h
}

// HandleConnection handles WebSocket upgrade and messages
func (h *Handler) HandleConnection(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("origin", c.GetHeader("Origin")),
			zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	conn := &conn{
		h:        h,
		ws:       ws,
		id:       id.ClientID(uuid.NewString()),
		ctx:      ctx,
		cancel:   cancel,
		send:     make(chan Message, h.sendBuffer),
		attached: make(map[id.SessionID]*attachment),
	}

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()
	h.logger.Info("client connected", zap.String("client_id", conn.id.String()))

	conn.wg.Add(1)
	go conn.writeLoop()

	conn.push(Message{Type: TypeWelcome, ClientID: conn.id})
	conn.readLoop()

	cancel()
	conn.wg.Wait()
	h.logger.Info("client disconnected", zap.String("client_id", conn.id.String()))
}

type attachment struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// conn is one client connection. Only writeLoop writes to ws.
type conn struct {
	h      *Handler
	ws     *websocket.Conn
	id     id.ClientID
	ctx    context.Context
	cancel context.CancelFunc
	send   chan Message

	mu       sync.Mutex
	attached map[id.SessionID]*attachment
	wg       sync.WaitGroup
}

func (c *conn) readLoop() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.h.logger.Debug("websocket read error",
					zap.String("client_id", c.id.String()),
					zap.Error(err))
			}
			return
		}

		var req Request
		if err := sonic.Unmarshal(data, &req); err != nil {
			c.push(Message{Type: TypeError, Error: "malformed frame: " + err.Error()})
			continue
		}
		c.h.metrics.RecordWSMessage("in", string(req.Type))
		c.handle(req)
	}
}

func (c *conn) handle(req Request) {
	switch req.Type {
	case TypePing:
		c.push(Message{Type: TypePong, Ref: req.Ref})
		return
	case TypeAttach:
		if err := c.attach(req.SessionID); err != nil {
			c.fail(req, err)
			return
		}
		c.ack(req, req.SessionID)
		return
	case TypeDetach:
		c.detach(req.SessionID)
		c.ack(req, req.SessionID)
		return
	}

	if isInput(req.Type) && c.h.limiters != nil && !c.h.limiters.Allow(c.id.String()) {
		c.push(Message{Type: TypeError, Ref: req.Ref, Request: string(req.Type), SessionID: req.SessionID,
			Error: "input rate limit exceeded"})
		return
	}

	sid, err := c.h.dispatcher.Handle(c.ctx, req.UIEvent)
	if err != nil {
		c.fail(req, err)
		return
	}
	c.ack(req, sid)

	if req.Type == dispatch.UIOpen || req.Type == dispatch.UIReconnect {
		if err := c.attach(sid); err != nil {
			c.fail(req, err)
		}
	}
}

func (c *conn) ack(req Request, sid id.SessionID) {
	c.push(Message{Type: TypeAck, Ref: req.Ref, Request: string(req.Type), SessionID: sid})
}

func (c *conn) fail(req Request, err error) {
	c.h.logger.Debug("request failed",
		zap.String("client_id", c.id.String()),
		zap.String("request", string(req.Type)),
		zap.Error(err))
	c.push(Message{Type: TypeError, Ref: req.Ref, Request: string(req.Type), SessionID: req.SessionID, Error: err.Error()})
}

// attach streams sid to this client. Attaching twice is a no-op.
func (c *conn) attach(sid id.SessionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.attached[sid]; ok {
		return nil
	}
	ctx, cancel := context.WithCancel(c.ctx)
	out, err := c.h.dispatcher.Attach(ctx, sid)
	if err != nil {
		cancel()
		return err
	}

	a := &attachment{ctx: ctx, cancel: cancel}
	c.attached[sid] = a
	c.wg.Add(1)
	go c.stream(sid, out, a)
	return nil
}

func (c *conn) detach(sid id.SessionID) {
	c.mu.Lock()
	a, ok := c.attached[sid]
	delete(c.attached, sid)
	c.mu.Unlock()
	if ok {
		a.cancel()
	}
}

func (c *conn) stream(sid id.SessionID, out <-chan dispatch.Output, a *attachment) {
	defer c.wg.Done()
	defer a.cancel()

	for o := range out {
		if a.ctx.Err() != nil {
			break
		}
		if !c.push(Message{Type: TypeOutput, SessionID: sid, Output: &o}) {
			break
		}
	}

	c.mu.Lock()
	if c.attached[sid] == a {
		delete(c.attached, sid)
	}
	c.mu.Unlock()
}

// push queues m for the writer; it reports false once the connection is gone
func (c *conn) push(m Message) bool {
	m.Timestamp = time.Now().Unix()
	select {
	case c.send <- m:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *conn) writeLoop() {
	defer c.wg.Done()
	defer c.ws.Close()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case m := <-c.send:
			data, err := sonic.Marshal(m)
			if err != nil {
				c.h.logger.Error("failed to encode frame", zap.String("type", m.Type), zap.Error(err))
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.cancel()
				return
			}
			c.h.metrics.RecordWSMessage("out", m.Type)
		case <-ping.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}
