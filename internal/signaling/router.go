// Package signaling relays opaque out-of-band payloads between connections.
// Authorization is scoped to shared room membership; the relay never
// inspects the payload.
package signaling

import (
	"github.com/castrelay/castrelay/internal/store"
	pkglog "github.com/castrelay/castrelay/pkg/log"
)

// Sender delivers a message to one connection. Satisfied by the hub.
type Sender interface {
	SendToClient(connID string, message interface{}) error
}

// Router relays signaling messages with room-membership checks.
type Router struct {
	sender   Sender
	registry *store.Registry
	rooms    *store.RoomStore
}

// NewRouter creates a signaling router.
func NewRouter(sender Sender, registry *store.Registry, rooms *store.RoomStore) *Router {
	return &Router{sender: sender, registry: registry, rooms: rooms}
}

// RelayDirect delivers a message to one recipient if, and only if, sender
// and recipient share a room. A mismatch is a silent drop: the sender gets
// no error, so room membership cannot be probed through the relay.
func (r *Router) RelayDirect(fromConnID, toConnID string, message interface{}) {
	if !r.registry.SameRoom(fromConnID, toConnID) {
		pkglog.L().Debug().
			Str("from", fromConnID).
			Str("to", toConnID).
			Msg("direct relay dropped, no shared room")
		return
	}
	if err := r.sender.SendToClient(toConnID, message); err != nil {
		pkglog.L().Error().Err(err).Str("to", toConnID).Msg("direct relay delivery failed")
	}
}

// RelayToRoom delivers a message to every member of a room except the
// optional excluded connection. Deliveries are independent: one unreachable
// peer never stops the rest, and failures are logged, not propagated.
func (r *Router) RelayToRoom(roomID string, message interface{}, excludeConnID string) {
	room, ok := r.rooms.Get(roomID)
	if !ok {
		return
	}
	r.deliver(room.Members(), roomID, message, excludeConnID)
}

// RelayToMembers delivers to an explicit member list. Teardown uses this
// after the room has already left the store.
func (r *Router) RelayToMembers(members []string, roomID string, message interface{}, excludeConnID string) {
	r.deliver(members, roomID, message, excludeConnID)
}

// SendTo delivers a message to one connection without a membership check.
// Used for operation responses to the originating connection.
func (r *Router) SendTo(connID string, message interface{}) {
	if err := r.sender.SendToClient(connID, message); err != nil {
		pkglog.L().Error().Err(err).Str(pkglog.FieldConnID, connID).Msg("send failed")
	}
}

func (r *Router) deliver(members []string, roomID string, message interface{}, excludeConnID string) {
	for _, connID := range members {
		if connID == excludeConnID {
			continue
		}
		if err := r.sender.SendToClient(connID, message); err != nil {
			pkglog.L().Error().Err(err).
				Str(pkglog.FieldRoomID, roomID).
				Str(pkglog.FieldConnID, connID).
				Msg("fanout delivery failed")
		}
	}
}
