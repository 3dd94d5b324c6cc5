package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Dispatcher consumes inbound frames and departures
type Dispatcher interface {
	// Dispatch handles one inbound frame. Calls for a connection are sequential.
	Dispatch(ctx context.Context, conn *Connection, data []byte)
	// Disconnected is called once after a connection that was in a room closes
	Disconnected(dep Departure)
}

// HandlerConfig controls transport timing and limits
type HandlerConfig struct {
	PingInterval    time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	SendBuffer      int
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultHandlerConfig returns the production transport settings
// TECHNICAL DISCOVERY: 60-second read deadline with 30-second ping interval
// keeps idle classroom tabs alive through typical proxies
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		PingInterval:    30 * time.Second,
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		SendBuffer:      100,
		MaxMessageSize:  1 << 20,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}

// Handler upgrades HTTP requests and runs the per-connection read loop
// ARCHITECTURAL DISCOVERY: Identity is not taken from the URL; every socket
// starts unauthenticated and the first auth envelope binds it
type Handler struct {
	registry   *Registry
	dispatcher Dispatcher
	config     HandlerConfig
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

// NewHandler creates a WebSocket handler
func NewHandler(registry *Registry, dispatcher Dispatcher, config HandlerConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultHandlerConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		config:     config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   config.ReadBufferSize,
			WriteBufferSize:  config.WriteBufferSize,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      checkOrigin,
		},
		logger: logger.With(zap.String("module", "websocket")),
	}
}

// HandleWebSocket upgrades the request and registers the new connection
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := NewConnection(ws, ConnectionOptions{
		SendBuffer:   h.config.SendBuffer,
		WriteTimeout: h.config.WriteTimeout,
		Logger:       h.logger,
	})

	id, err := h.registry.Register(conn)
	if err != nil {
		h.logger.Error("failed to register connection", zap.Error(err))
		_ = conn.Close()
		return
	}
	h.logger.Debug("connection opened", zap.Uint64("conn_id", uint64(id)), zap.String("remote", r.RemoteAddr))

	go h.handleConnection(ws, conn)
}

// handleConnection owns the read side until the transport fails
func (h *Handler) handleConnection(ws *websocket.Conn, conn *Connection) {
	defer func() {
		if dep, left := h.registry.Unregister(conn); left {
			h.dispatcher.Disconnected(dep)
		}
		_ = conn.Close()
		h.logger.Debug("connection closed", zap.Uint64("conn_id", uint64(conn.ID())))
	}()

	if h.config.MaxMessageSize > 0 {
		ws.SetReadLimit(h.config.MaxMessageSize)
	}
	if err := ws.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	go h.pingLoop(ws, conn)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Info("websocket read error", zap.Uint64("conn_id", uint64(conn.ID())), zap.Error(err))
			}
			return
		}
		h.dispatcher.Dispatch(conn.Context(), conn, data)
	}
}

// WriteControl may run concurrently with the writer goroutine
func (h *Handler) pingLoop(ws *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.config.WriteTimeout)); err != nil {
				_ = conn.Close()
				return
			}
		case <-conn.Done():
			return
		}
	}
}
