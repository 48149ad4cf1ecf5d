package interfaces

import "rollcall/pkg/types"

// Connection represents one authenticated real-time client.
// Implementations must make Send and WriteJSON safe for concurrent use;
// the WebSocket implementation serializes all writes through a single
// writer goroutine.
type Connection interface {
	// Send queues pre-serialized bytes for delivery. Broadcast fan-out
	// marshals once and pushes the identical bytes through Send so every
	// client receives the same payload.
	Send(data []byte) error

	// WriteJSON marshals v and sends it to this client only.
	WriteJSON(v interface{}) error

	// Identity returns the claim set bound at handshake time. It never
	// changes for the lifetime of the connection.
	Identity() types.Identity

	// IsOpen reports whether the transport can still accept writes.
	IsOpen() bool

	// Close closes the transport and releases resources. Idempotent.
	Close() error
}
