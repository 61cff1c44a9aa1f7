package domain

import (
	"sync"
	"time"
)

// Role is a connection's role within its room.
type Role int

const (
	RoleNone Role = iota
	RoleBroadcaster
	RoleViewer
)

func (r Role) String() string {
	switch r {
	case RoleBroadcaster:
		return "broadcaster"
	case RoleViewer:
		return "viewer"
	}
	return "none"
}

// Connection is the transient identity of one live network connection.
// Its lifetime is driven by the network layer; rooms hold back-references
// only. The display name is user-supplied and never used for authorization.
type Connection struct {
	id        string
	createdAt time.Time

	mu           sync.RWMutex
	displayName  string
	roomID       string
	role         Role
	lastActiveAt time.Time
}

// NewConnection creates a connection identity not yet bound to any room.
func NewConnection(id string) *Connection {
	now := time.Now()
	return &Connection{
		id:           id,
		createdAt:    now,
		lastActiveAt: now,
	}
}

func (c *Connection) ID() string { return c.id }

// SetRoom binds the connection to a room with the given role.
func (c *Connection) SetRoom(roomID string, role Role, displayName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
	c.role = role
	c.displayName = displayName
	c.lastActiveAt = time.Now()
}

// ClearRoom detaches the connection from its room.
func (c *Connection) ClearRoom() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = ""
	c.role = RoleNone
}

// Room returns the room the connection currently belongs to, or "".
func (c *Connection) Room() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

// Role returns the connection's role within its room.
func (c *Connection) Role() Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// DisplayName returns the user-supplied label.
func (c *Connection) DisplayName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.displayName
}

// UpdateActivity refreshes the last-active timestamp.
func (c *Connection) UpdateActivity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActiveAt = time.Now()
}
