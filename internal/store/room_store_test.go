package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castrelay/castrelay/internal/domain"
	"github.com/castrelay/castrelay/internal/media"
)

type stubTransport struct {
	id string
}

func (t *stubTransport) ID() string                { return t.id }
func (t *stubTransport) Info() media.TransportInfo { return media.TransportInfo{ID: t.id} }
func (t *stubTransport) Connect(ctx context.Context, dtlsParameters json.RawMessage) error {
	return nil
}
func (t *stubTransport) Produce(ctx context.Context, kind string, rtpParameters json.RawMessage) (media.Producer, error) {
	return nil, nil
}
func (t *stubTransport) Consume(ctx context.Context, producerID string, rtpCapabilities json.RawMessage) (media.Consumer, error) {
	return nil, nil
}
func (t *stubTransport) Close() error { return nil }

type stubConsumer struct {
	id string
}

func (c *stubConsumer) ID() string                     { return c.id }
func (c *stubConsumer) ProducerID() string             { return "producer-1" }
func (c *stubConsumer) Kind() string                   { return "video" }
func (c *stubConsumer) RTPParameters() json.RawMessage { return json.RawMessage(`{}`) }
func (c *stubConsumer) Resume() error                  { return nil }
func (c *stubConsumer) Close() error                   { return nil }

func TestCreateRejectsDuplicate(t *testing.T) {
	s := NewRoomStore(20)

	room, err := s.Create("room-1")
	require.NoError(t, err)
	require.NotNil(t, room)

	_, err = s.Create("room-1")
	assert.ErrorIs(t, err, domain.ErrRoomOccupied)
}

func TestGetOrCreateReturnsExisting(t *testing.T) {
	s := NewRoomStore(20)

	a := s.GetOrCreate("room-1")
	b := s.GetOrCreate("room-1")
	assert.Same(t, a, b)

	got, ok := s.Get("room-1")
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestRemoveIdempotent(t *testing.T) {
	s := NewRoomStore(20)
	created := s.GetOrCreate("room-1")

	room, ok := s.Remove("room-1")
	require.True(t, ok)
	assert.Same(t, created, room)

	// Only one caller gets the room back.
	_, ok = s.Remove("room-1")
	assert.False(t, ok)

	_, ok = s.Get("room-1")
	assert.False(t, ok)
}

func TestTransportIndex(t *testing.T) {
	s := NewRoomStore(20)
	room := s.GetOrCreate("room-1")

	require.NoError(t, s.AttachTransport("room-1", &stubTransport{id: "t1"}, "conn-a"))

	got, ok := s.RoomByTransport("t1")
	require.True(t, ok)
	assert.Same(t, room, got)

	_, ok = s.RoomByTransport("missing")
	assert.False(t, ok)

	// Attaching to an unknown room fails and leaves no index entry.
	err := s.AttachTransport("missing", &stubTransport{id: "t2"}, "conn-a")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, ok = s.RoomByTransport("t2")
	assert.False(t, ok)
}

func TestConsumerIndex(t *testing.T) {
	s := NewRoomStore(20)
	room := s.GetOrCreate("room-1")

	require.NoError(t, s.AttachConsumer("room-1", &stubConsumer{id: "c1"}))

	got, ok := s.RoomByConsumer("c1")
	require.True(t, ok)
	assert.Same(t, room, got)

	_, ok = s.RoomByConsumer("missing")
	assert.False(t, ok)
}

func TestRemoveClearsIndexes(t *testing.T) {
	s := NewRoomStore(20)
	s.GetOrCreate("room-1")
	require.NoError(t, s.AttachTransport("room-1", &stubTransport{id: "t1"}, "conn-a"))
	require.NoError(t, s.AttachConsumer("room-1", &stubConsumer{id: "c1"}))

	_, ok := s.Remove("room-1")
	require.True(t, ok)

	_, ok = s.RoomByTransport("t1")
	assert.False(t, ok)
	_, ok = s.RoomByConsumer("c1")
	assert.False(t, ok)
}

func TestAttachToClosedRoom(t *testing.T) {
	s := NewRoomStore(20)
	room := s.GetOrCreate("room-1")
	_, ok := room.Close()
	require.True(t, ok)

	// The room is closed but not yet removed: the attach must fail without
	// leaving an index entry behind.
	err := s.AttachTransport("room-1", &stubTransport{id: "t1"}, "conn-a")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, ok = s.RoomByTransport("t1")
	assert.False(t, ok)
}

func TestStatuses(t *testing.T) {
	s := NewRoomStore(20)
	s.GetOrCreate("room-b")
	s.GetOrCreate("room-a")

	statuses := s.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "room-a", statuses[0].RoomID)
	assert.Equal(t, "room-b", statuses[1].RoomID)
	assert.Equal(t, 2, s.Count())
}
