package signaling

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castrelay/castrelay/internal/domain"
	"github.com/castrelay/castrelay/internal/store"
)

type recordingSender struct {
	mu   sync.Mutex
	sent map[string][]interface{}
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(map[string][]interface{})}
}

func (s *recordingSender) SendToClient(connID string, message interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[connID] = append(s.sent[connID], message)
	return nil
}

func (s *recordingSender) received(connID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent[connID])
}

func setupRouter(t *testing.T) (*Router, *recordingSender, *store.Registry, *store.RoomStore) {
	t.Helper()
	sender := newRecordingSender()
	registry := store.NewRegistry()
	rooms := store.NewRoomStore(20)
	return NewRouter(sender, registry, rooms), sender, registry, rooms
}

func addMember(t *testing.T, registry *store.Registry, connID, roomID string, role domain.Role) {
	t.Helper()
	conn := domain.NewConnection(connID)
	conn.SetRoom(roomID, role, connID)
	registry.Add(conn)
}

func TestRelayDirectSameRoom(t *testing.T) {
	router, sender, registry, _ := setupRouter(t)
	addMember(t, registry, "conn-a", "room-1", domain.RoleBroadcaster)
	addMember(t, registry, "conn-b", "room-1", domain.RoleViewer)

	router.RelayDirect("conn-a", "conn-b", map[string]string{"type": "webrtc-signal"})
	assert.Equal(t, 1, sender.received("conn-b"))
}

func TestRelayDirectCrossRoomDropsSilently(t *testing.T) {
	router, sender, registry, _ := setupRouter(t)
	addMember(t, registry, "conn-a", "room-1", domain.RoleBroadcaster)
	addMember(t, registry, "conn-b", "room-2", domain.RoleViewer)

	// No delivery to the recipient, and no error back to the sender either.
	router.RelayDirect("conn-a", "conn-b", map[string]string{"type": "webrtc-signal"})
	assert.Equal(t, 0, sender.received("conn-b"))
	assert.Equal(t, 0, sender.received("conn-a"))
}

func TestRelayDirectUnknownRecipient(t *testing.T) {
	router, sender, registry, _ := setupRouter(t)
	addMember(t, registry, "conn-a", "room-1", domain.RoleBroadcaster)

	router.RelayDirect("conn-a", "ghost", map[string]string{"type": "webrtc-signal"})
	assert.Equal(t, 0, sender.received("ghost"))
}

func TestRelayToRoomExcludesSender(t *testing.T) {
	router, sender, _, rooms := setupRouter(t)
	room := rooms.GetOrCreate("room-1")
	require.NoError(t, room.BindBroadcaster("conn-a", "alice"))
	_, err := room.AddViewer("conn-b", "bob")
	require.NoError(t, err)
	_, err = room.AddViewer("conn-c", "carol")
	require.NoError(t, err)

	router.RelayToRoom("room-1", map[string]string{"type": "chat-message"}, "conn-b")
	assert.Equal(t, 1, sender.received("conn-a"))
	assert.Equal(t, 0, sender.received("conn-b"))
	assert.Equal(t, 1, sender.received("conn-c"))
}

func TestRelayToRoomUnknownRoom(t *testing.T) {
	router, sender, _, _ := setupRouter(t)
	router.RelayToRoom("missing", map[string]string{"type": "chat-message"}, "")
	assert.Empty(t, sender.sent)
}

func TestRelayToMembers(t *testing.T) {
	router, sender, _, _ := setupRouter(t)

	// Teardown fanout addresses an explicit member list, the room is already
	// out of the store by then.
	router.RelayToMembers([]string{"conn-a", "conn-b"}, "room-1",
		map[string]string{"type": "broadcast-ended"}, "conn-a")
	assert.Equal(t, 0, sender.received("conn-a"))
	assert.Equal(t, 1, sender.received("conn-b"))
}
