package websocket

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"rollcall/internal/config"
	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

// upgrader is shared across handshakes. Origins are not restricted;
// identity comes from the token, not the page serving the client.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// TokenDecoder verifies a raw identity token from the handshake URL.
type TokenDecoder interface {
	DecodeToken(raw string) (types.Identity, error)
}

// MessageHandler consumes inbound real-time commands. The dispatcher
// implements it; the indirection keeps this package free of command
// semantics.
type MessageHandler interface {
	HandleMessage(conn interfaces.Connection, data []byte)
}

// Handler upgrades HTTP requests to WebSocket connections,
// authenticates them, and runs their read loop.
type Handler struct {
	registry   *Registry
	decoder    TokenDecoder
	dispatcher MessageHandler
	cfg        *config.WebSocketConfig
}

// NewHandler creates a WebSocket handler. A nil cfg uses the defaults.
func NewHandler(registry *Registry, decoder TokenDecoder, dispatcher MessageHandler, cfg *config.WebSocketConfig) *Handler {
	if cfg == nil {
		cfg = config.DefaultConfig().WebSocket
	}
	return &Handler{
		registry:   registry,
		decoder:    decoder,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// HandleWebSocket handles a connection request. The token travels as a
// `token` query parameter because browser WebSocket clients cannot set
// headers. The upgrade happens before token verification so a rejected
// client receives an ERROR frame instead of a bare HTTP failure; a bad
// token closes the transport without ever touching the registry.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	identity, err := h.decoder.DecodeToken(r.URL.Query().Get("token"))
	if err != nil {
		log.Printf("WebSocket handshake rejected: %v", err)
		h.rejectConnection(conn)
		return
	}

	wsConn := NewConnection(conn, identity, h.cfg)

	if err := h.registry.Register(wsConn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = wsConn.Close()
		return
	}

	go h.handleConnection(wsConn)
}

// rejectConnection sends a best-effort ERROR frame and closes the raw
// transport. The connection never gets a writer goroutine or a
// registry entry.
func (h *Handler) rejectConnection(conn *websocket.Conn) {
	payload := []byte(`{"event":"ERROR","data":{"message":"Unauthorized, token missing or invalid"}}`)
	_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	_ = conn.WriteMessage(websocket.TextMessage, payload)
	_ = conn.Close()
}

// handleConnection runs the read pump with heartbeat monitoring.
// Closing the transport removes the connection from future broadcasts
// immediately; commands already dispatched complete synchronously
// before removal.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.registry.Unregister(conn)
		_ = conn.Close()
	}()

	// Pong replies push the read deadline forward; a peer that misses
	// two ping intervals gets dropped by the deadline.
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		if messageType == websocket.TextMessage {
			h.dispatcher.HandleMessage(conn, data)
		}
	}
}
