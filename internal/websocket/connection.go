package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"lecturehall/internal/protocol"
)

// ConnID identifies a connection for its whole lifetime. Zero means unregistered.
type ConnID uint64

// Socket is the subset of *websocket.Conn used by the writer goroutine
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// ConnectionOptions tunes the outbound queue
type ConnectionOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

// DefaultConnectionOptions returns the production queue settings
func DefaultConnectionOptions() ConnectionOptions {
	return ConnectionOptions{
		SendBuffer:   100,
		WriteTimeout: 5 * time.Second,
		Logger:       zap.NewNop(),
	}
}

// Connection wraps one client transport
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized, so every
// frame goes through writeCh and a single writer goroutine
type Connection struct {
	id           ConnID
	socket       Socket
	writeCh      chan []byte
	writeTimeout time.Duration
	logger       *zap.Logger

	mu      sync.RWMutex // guards state and joinSeq; written only by Registry
	state   State
	joinSeq uint64

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection starts the writer goroutine for a socket
func NewConnection(socket Socket, opts ConnectionOptions) *Connection {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultConnectionOptions().SendBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultConnectionOptions().WriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		socket:       socket,
		writeCh:      make(chan []byte, opts.SendBuffer),
		writeTimeout: opts.WriteTimeout,
		logger:       opts.Logger,
		state:        unauthenticated(),
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.socket.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.socket.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write failed", zap.Uint64("conn_id", uint64(c.ID())), zap.Error(err))
				_ = c.Close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// ID returns the registry handle, zero before registration
func (c *Connection) ID() ConnID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// State returns a snapshot of the session state
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Done is closed once the connection is closed
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Context is cancelled when the connection closes
func (c *Connection) Context() context.Context {
	return c.ctx
}

// Send enqueues a frame without blocking
// FUNCTIONAL DISCOVERY: A peer that cannot drain its queue is closed rather
// than allowed to stall broadcasts to the rest of the room
func (c *Connection) Send(frame protocol.Frame) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- frame:
		return nil
	default:
		c.logger.Warn("send buffer full, closing slow connection", zap.Uint64("conn_id", uint64(c.ID())))
		_ = c.Close()
		return ErrBackpressure
	}
}

// WriteJSON marshals v and enqueues it
func (c *Connection) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}
	return c.Send(data)
}

// SendEnvelope encodes a payload of the given kind and enqueues it
func (c *Connection) SendEnvelope(kind protocol.Kind, payload any) error {
	frame, err := protocol.Encode(kind, payload)
	if err != nil {
		return ErrInvalidJSON
	}
	return c.Send(frame)
}

// Close stops the writer and closes the socket. Safe to call repeatedly.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.socket != nil {
			err = c.socket.Close()
		}
	})
	return err
}
