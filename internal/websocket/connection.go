package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"rollcall/internal/config"
	"rollcall/pkg/types"
)

// Connection wraps one WebSocket transport. All writes go through a
// single writer goroutine fed by a buffered channel, so Send and
// WriteJSON are safe from any goroutine. The identity is bound at
// construction, after the token has been verified, and never changes.
type Connection struct {
	conn         *websocket.Conn
	writeCh      chan []byte // buffer absorbs broadcast bursts
	writeTimeout time.Duration
	identity     types.Identity
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// NewConnection creates a connection wrapper for an authenticated
// client and starts its writer goroutine. A nil cfg uses the defaults.
func NewConnection(conn *websocket.Conn, identity types.Identity, cfg *config.WebSocketConfig) *Connection {
	if cfg == nil {
		cfg = config.DefaultConfig().WebSocket
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan []byte, cfg.BufferSize),
		writeTimeout: cfg.WriteTimeout,
		identity:     identity,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop is the single writer; gorilla/websocket forbids concurrent
// writes on one connection. Every exit path cancels the context so
// IsOpen turns false and later Sends are rejected instead of queued;
// writeCh is never closed, queued bytes just get collected with the
// connection.
func (c *Connection) writeLoop() {
	defer c.cancel()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// Send queues pre-serialized bytes for delivery. A full buffer or a
// closing connection drops the message after a timeout; broadcast
// delivery is best-effort by design.
func (c *Connection) Send(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// WriteJSON marshals v and sends it to this client only.
func (c *Connection) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}
	return c.Send(data)
}

// Identity returns the claim set bound at handshake time.
func (c *Connection) Identity() types.Identity {
	return c.identity
}

// IsOpen reports whether the connection can still accept writes.
func (c *Connection) IsOpen() bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
		return true
	}
}

// Close closes the transport and stops the writer goroutine.
// Idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
