package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castrelay/castrelay/internal/media"
)

type stubTransport struct {
	id     string
	closed bool
}

func (t *stubTransport) ID() string                { return t.id }
func (t *stubTransport) Info() media.TransportInfo { return media.TransportInfo{ID: t.id} }
func (t *stubTransport) Connect(ctx context.Context, dtlsParameters json.RawMessage) error {
	return nil
}
func (t *stubTransport) Produce(ctx context.Context, kind string, rtpParameters json.RawMessage) (media.Producer, error) {
	return &stubProducer{id: t.id + "-producer", kind: kind}, nil
}
func (t *stubTransport) Consume(ctx context.Context, producerID string, rtpCapabilities json.RawMessage) (media.Consumer, error) {
	return &stubConsumer{id: t.id + "-consumer", producerID: producerID}, nil
}
func (t *stubTransport) Close() error {
	t.closed = true
	return nil
}

type stubProducer struct {
	id   string
	kind string
}

func (p *stubProducer) ID() string   { return p.id }
func (p *stubProducer) Kind() string { return p.kind }
func (p *stubProducer) Close() error { return nil }

type stubConsumer struct {
	id         string
	producerID string
}

func (c *stubConsumer) ID() string                     { return c.id }
func (c *stubConsumer) ProducerID() string             { return c.producerID }
func (c *stubConsumer) Kind() string                   { return "video" }
func (c *stubConsumer) RTPParameters() json.RawMessage { return json.RawMessage(`{}`) }
func (c *stubConsumer) Resume() error                  { return nil }
func (c *stubConsumer) Close() error                   { return nil }

func TestBindBroadcaster(t *testing.T) {
	room := NewRoom("room-1", 20)

	require.NoError(t, room.BindBroadcaster("conn-a", "alice"))
	assert.Equal(t, "conn-a", room.Broadcaster())
	assert.Equal(t, "alice", room.BroadcasterName())

	// Rebinding the same connection is a no-op.
	require.NoError(t, room.BindBroadcaster("conn-a", "alice"))

	// A second connection is rejected while the slot is held.
	assert.ErrorIs(t, room.BindBroadcaster("conn-b", "bob"), ErrRoomOccupied)
}

func TestAddViewerCapacity(t *testing.T) {
	room := NewRoom("room-1", 2)

	count, err := room.AddViewer("v1", "one")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = room.AddViewer("v2", "two")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = room.AddViewer("v3", "three")
	assert.ErrorIs(t, err, ErrRoomFull)

	// Re-adding an admitted viewer never consumes a slot.
	count, err = room.AddViewer("v2", "two")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAddViewerConcurrentCapacity(t *testing.T) {
	const capacity = 20
	room := NewRoom("room-1", capacity)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < capacity*2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := room.AddViewer(fmt.Sprintf("v%d", n), "viewer"); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, capacity, admitted)
	assert.Equal(t, capacity, room.ViewerCount())
}

func TestRemoveViewer(t *testing.T) {
	room := NewRoom("room-1", 20)
	_, err := room.AddViewer("v1", "one")
	require.NoError(t, err)

	count, name, was := room.RemoveViewer("v1")
	assert.True(t, was)
	assert.Equal(t, "one", name)
	assert.Equal(t, 0, count)

	_, _, was = room.RemoveViewer("v1")
	assert.False(t, was)
}

func TestStateTransitions(t *testing.T) {
	room := NewRoom("room-1", 20)
	require.NoError(t, room.BindBroadcaster("conn-a", "alice"))
	assert.Equal(t, RoomEmpty, room.State())

	// A broadcaster-owned transport moves the room to awaiting-producer.
	require.NoError(t, room.AttachTransport(&stubTransport{id: "t1"}, "conn-a"))
	assert.Equal(t, RoomAwaitingProducer, room.State())

	// A viewer transport never advances the state.
	room2 := NewRoom("room-2", 20)
	require.NoError(t, room2.BindBroadcaster("conn-a", "alice"))
	require.NoError(t, room2.AttachTransport(&stubTransport{id: "t2"}, "conn-v"))
	assert.Equal(t, RoomEmpty, room2.State())

	require.NoError(t, room.CommitProducer(&stubProducer{id: "p1", kind: "video"}))
	assert.Equal(t, RoomLive, room.State())
	assert.True(t, room.IsLive())
}

func TestCommitProducerRejectsSecond(t *testing.T) {
	room := NewRoom("room-1", 20)
	require.NoError(t, room.CommitProducer(&stubProducer{id: "p1", kind: "video"}))
	assert.ErrorIs(t, room.CommitProducer(&stubProducer{id: "p2", kind: "video"}), ErrRoomOccupied)
}

func TestCloseIdempotent(t *testing.T) {
	room := NewRoom("room-1", 20)
	require.NoError(t, room.BindBroadcaster("conn-a", "alice"))
	_, err := room.AddViewer("v1", "one")
	require.NoError(t, err)
	require.NoError(t, room.AttachTransport(&stubTransport{id: "t1"}, "conn-a"))
	require.NoError(t, room.CommitProducer(&stubProducer{id: "p1", kind: "video"}))
	require.NoError(t, room.AttachConsumer(&stubConsumer{id: "c1", producerID: "p1"}))

	res, ok := room.Close()
	require.True(t, ok)
	assert.NotNil(t, res.Producer)
	assert.Len(t, res.Transports, 1)
	assert.Len(t, res.Consumers, 1)
	assert.ElementsMatch(t, []string{"conn-a", "v1"}, res.Members)

	// Second close hands back nothing.
	_, ok = room.Close()
	assert.False(t, ok)
	assert.Equal(t, RoomClosed, room.State())
}

func TestClosedRoomRejectsEverything(t *testing.T) {
	room := NewRoom("room-1", 20)
	_, ok := room.Close()
	require.True(t, ok)

	assert.ErrorIs(t, room.BindBroadcaster("conn-a", "alice"), ErrRoomNotFound)
	_, err := room.AddViewer("v1", "one")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.ErrorIs(t, room.AttachTransport(&stubTransport{id: "t1"}, "conn-a"), ErrRoomNotFound)
	assert.ErrorIs(t, room.CommitProducer(&stubProducer{id: "p1"}), ErrRoomNotFound)
	assert.ErrorIs(t, room.AttachConsumer(&stubConsumer{id: "c1"}), ErrRoomNotFound)
}

func TestStatus(t *testing.T) {
	room := NewRoom("room-1", 20)
	require.NoError(t, room.BindBroadcaster("conn-a", "alice"))
	_, err := room.AddViewer("v1", "one")
	require.NoError(t, err)

	st := room.Status()
	assert.Equal(t, "room-1", st.RoomID)
	assert.Equal(t, "alice", st.BroadcasterName)
	assert.Equal(t, 1, st.ViewerCount)
	assert.False(t, st.IsLive)
}
