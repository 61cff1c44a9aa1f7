package store

import (
	"sort"
	"sync"

	"github.com/castrelay/castrelay/internal/domain"
	"github.com/castrelay/castrelay/internal/media"
)

// RoomStore owns the room map and the reverse indexes that resolve
// transports and consumers back to their room. Indexes are maintained under
// the store lock in the same critical section as the primary insert or
// remove, so a lookup never observes a transport whose room is gone.
type RoomStore struct {
	maxViewers int

	mu         sync.RWMutex
	rooms      map[string]*domain.Room
	transports map[string]string // transportID -> roomID
	consumers  map[string]string // consumerID -> roomID
}

// NewRoomStore creates an empty store. maxViewers is applied to every room
// it creates.
func NewRoomStore(maxViewers int) *RoomStore {
	return &RoomStore{
		maxViewers: maxViewers,
		rooms:      make(map[string]*domain.Room),
		transports: make(map[string]string),
		consumers:  make(map[string]string),
	}
}

// Create adds a new room. It never silently reuses an existing id.
func (s *RoomStore) Create(roomID string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; ok {
		return nil, domain.ErrRoomOccupied
	}
	room := domain.NewRoom(roomID, s.maxViewers)
	s.rooms[roomID] = room
	return room, nil
}

// GetOrCreate returns the existing room or creates a fresh one with empty
// membership.
func (s *RoomStore) GetOrCreate(roomID string) *domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[roomID]; ok {
		return room
	}
	room := domain.NewRoom(roomID, s.maxViewers)
	s.rooms[roomID] = room
	return room
}

// Get returns a room by its client-facing id.
func (s *RoomStore) Get(roomID string) (*domain.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	return room, ok
}

// Remove detaches a room and its index entries. Idempotent; returns the
// room exactly once so only one caller runs teardown.
func (s *RoomStore) Remove(roomID string) (*domain.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	delete(s.rooms, roomID)
	for _, id := range room.TransportIDs() {
		delete(s.transports, id)
	}
	for _, id := range room.ConsumerIDs() {
		delete(s.consumers, id)
	}
	return room, true
}

// AttachTransport commits a transport to its room and indexes it, in one
// store critical section.
func (s *RoomStore) AttachTransport(roomID string, t media.Transport, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if err := room.AttachTransport(t, ownerID); err != nil {
		return err
	}
	s.transports[t.ID()] = roomID
	return nil
}

// AttachConsumer commits a consumer to its room and indexes it.
func (s *RoomStore) AttachConsumer(roomID string, c media.Consumer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if err := room.AttachConsumer(c); err != nil {
		return err
	}
	s.consumers[c.ID()] = roomID
	return nil
}

// RoomByTransport resolves a transport id to its owning room.
func (s *RoomStore) RoomByTransport(transportID string) (*domain.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roomID, ok := s.transports[transportID]
	if !ok {
		return nil, false
	}
	room, ok := s.rooms[roomID]
	return room, ok
}

// RoomByConsumer resolves a consumer id to its owning room.
func (s *RoomStore) RoomByConsumer(consumerID string) (*domain.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roomID, ok := s.consumers[consumerID]
	if !ok {
		return nil, false
	}
	room, ok := s.rooms[roomID]
	return room, ok
}

// Count returns the number of rooms.
func (s *RoomStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Statuses returns a snapshot of every room, sorted by room id for a stable
// status page.
func (s *RoomStore) Statuses() []domain.RoomStatus {
	s.mu.RLock()
	rooms := make([]*domain.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	s.mu.RUnlock()

	statuses := make([]domain.RoomStatus, 0, len(rooms))
	for _, room := range rooms {
		statuses = append(statuses, room.Status())
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].RoomID < statuses[j].RoomID })
	return statuses
}
