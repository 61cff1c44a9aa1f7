package store

import (
	"sync"

	"github.com/castrelay/castrelay/internal/domain"
)

// Registry maps connection ids to their identity. It is the authoritative
// answer to "which room and role does this connection have right now".
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*domain.Connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*domain.Connection)}
}

// Add registers a connection.
func (r *Registry) Add(conn *domain.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID()] = conn
}

// Get returns a connection by id.
func (r *Registry) Get(connID string) (*domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	return conn, ok
}

// Remove detaches a connection and returns it for cleanup. Safe to call for
// an unknown id.
func (r *Registry) Remove(connID string) (*domain.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	delete(r.conns, connID)
	return conn, true
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// SameRoom reports whether two connections are members of the same room.
// False if either is unknown or not in a room.
func (r *Registry) SameRoom(a, b string) bool {
	r.mu.RLock()
	ca, okA := r.conns[a]
	cb, okB := r.conns[b]
	r.mu.RUnlock()
	if !okA || !okB {
		return false
	}
	roomA := ca.Room()
	return roomA != "" && roomA == cb.Room()
}
