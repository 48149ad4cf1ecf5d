package websocket

import (
	"encoding/json"
	"log"
	"sync"

	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

// Registry tracks every authenticated real-time connection. Unlike a
// per-user map, the set is keyed by connection: the same user may hold
// several connections (a teacher's laptop and phone both observe the
// session) and each receives every broadcast independently.
type Registry struct {
	mu    sync.RWMutex
	conns map[interfaces.Connection]struct{}
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[interfaces.Connection]struct{}),
	}
}

// Register adds an authenticated connection to the set.
func (r *Registry) Register(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn] = struct{}{}

	identity := conn.Identity()
	log.Printf("Connection registered: user=%s role=%s", identity.UserID, identity.Role)
	return nil
}

// Unregister removes a connection. Idempotent; called from the
// transport's close path.
func (r *Registry) Unregister(conn interfaces.Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, conn)
}

// Snapshot returns the open connections at the moment of the call. The
// returned slice is a defensive copy: closing or registering during
// iteration cannot corrupt it. Entries whose transport has closed are
// filtered out but not removed; removal happens via Unregister.
func (r *Registry) Snapshot() []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]interfaces.Connection, 0, len(r.conns))
	for conn := range r.conns {
		if conn.IsOpen() {
			conns = append(conns, conn)
		}
	}
	return conns
}

// Broadcast serializes the envelope once and sends the identical bytes
// to every open connection. Delivery is best-effort: a slow client may
// miss a broadcast, and a client closing mid-iteration is tolerated by
// the per-connection liveness check in Send.
func (r *Registry) Broadcast(event string, data interface{}) error {
	payload, err := json.Marshal(types.Envelope{Event: event, Data: data})
	if err != nil {
		return ErrInvalidJSON
	}

	for _, conn := range r.Snapshot() {
		if err := conn.Send(payload); err != nil {
			log.Printf("Failed to deliver %s broadcast to %s: %v",
				event, conn.Identity().UserID, err)
		}
	}
	return nil
}

// Stats returns registry statistics for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	open := 0
	teachers := 0
	for conn := range r.conns {
		if conn.IsOpen() {
			open++
			if conn.Identity().Role == types.RoleTeacher {
				teachers++
			}
		}
	}

	return map[string]int{
		"total_connections":   len(r.conns),
		"open_connections":    open,
		"teacher_connections": teachers,
	}
}
