package service

import (
	"context"
	"encoding/json"

	"github.com/castrelay/castrelay/internal/domain"
	"github.com/castrelay/castrelay/internal/media"
	"github.com/castrelay/castrelay/internal/signaling"
	"github.com/castrelay/castrelay/internal/store"
	pkglog "github.com/castrelay/castrelay/pkg/log"
)

type coordinator struct {
	rooms    *store.RoomStore
	registry *store.Registry
	signals  *signaling.Router
	engine   media.Engine
}

// NewCoordinator creates the session coordinator.
func NewCoordinator(rooms *store.RoomStore, registry *store.Registry, signals *signaling.Router, engine media.Engine) Coordinator {
	return &coordinator{
		rooms:    rooms,
		registry: registry,
		signals:  signals,
		engine:   engine,
	}
}

// CreateRoom claims the broadcaster slot of roomID, creating the room and its
// media router on first use. Idempotent for the same connection; any other
// connection gets ErrRoomOccupied while the slot is held.
func (s *coordinator) CreateRoom(ctx context.Context, connID, roomID, userName string) (*domain.RoomCreatedMessage, error) {
	conn, ok := s.registry.Get(connID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}

	// Binding may race a concurrent teardown that has already unlinked the
	// room from the store. Retry against a fresh room in that case.
	var room *domain.Room
	for attempt := 0; ; attempt++ {
		if attempt >= 3 {
			return nil, domain.ErrRoomNotFound
		}
		room = s.rooms.GetOrCreate(roomID)
		if err := room.BindBroadcaster(connID, userName); err != nil {
			if err == domain.ErrRoomNotFound {
				continue
			}
			return nil, err
		}
		if current, ok := s.rooms.Get(roomID); ok && current == room {
			break
		}
	}

	if room.Router() == nil {
		router, err := s.engine.CreateRouter(ctx)
		if err != nil {
			pkglog.L().Error().Err(err).Str(pkglog.FieldRoomID, roomID).Msg("router creation failed")
			s.teardown(roomID, connID)
			return nil, domain.AdapterError(err)
		}
		if err := room.SetRouter(router); err != nil {
			router.Close()
			return nil, err
		}
	}

	conn.SetRoom(roomID, domain.RoleBroadcaster, userName)
	pkglog.L().Info().
		Str(pkglog.FieldRoomID, roomID).
		Str(pkglog.FieldConnID, connID).
		Msg("broadcaster bound")
	return &domain.RoomCreatedMessage{Type: domain.EventRoomCreated, RoomID: roomID}, nil
}

// JoinRoom admits a connection as viewer and fans out the updated presence.
func (s *coordinator) JoinRoom(ctx context.Context, connID, roomID, userName string) (*domain.RoomJoinedMessage, error) {
	conn, ok := s.registry.Get(connID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}

	count, err := room.AddViewer(connID, userName)
	if err != nil {
		return nil, err
	}
	conn.SetRoom(roomID, domain.RoleViewer, userName)

	s.signals.RelayToRoom(roomID, &domain.ViewerJoinedMessage{
		Type:        domain.EventViewerJoined,
		RoomID:      roomID,
		UserName:    userName,
		ViewerCount: count,
	}, connID)

	return &domain.RoomJoinedMessage{
		Type:            domain.EventRoomJoined,
		RoomID:          roomID,
		ViewerCount:     count,
		IsLive:          room.IsLive(),
		BroadcasterName: room.BroadcasterName(),
	}, nil
}

// RouterCapabilities returns the room router's RTP capability blob.
func (s *coordinator) RouterCapabilities(ctx context.Context, connID, roomID string) (*domain.RouterCapabilitiesMessage, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	router := room.Router()
	if router == nil {
		return nil, domain.ErrNoActiveBroadcast
	}
	return &domain.RouterCapabilitiesMessage{
		Type:            domain.EventRouterCapabilities,
		RoomID:          roomID,
		RTPCapabilities: router.Capabilities(),
	}, nil
}

// CreateProducerTransport allocates the broadcaster's media transport and
// moves the room towards its live state.
func (s *coordinator) CreateProducerTransport(ctx context.Context, connID, roomID string) (*media.TransportInfo, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	if room.Broadcaster() != connID {
		return nil, domain.ErrRoomOccupied
	}
	if room.IsLive() {
		return nil, domain.ErrRoomOccupied
	}
	router := room.Router()
	if router == nil {
		return nil, domain.ErrNoActiveBroadcast
	}

	// The engine call runs outside any room lock; the attach below re-checks
	// room state and fails if teardown won the race.
	transport, err := router.CreateTransport(ctx)
	if err != nil {
		pkglog.L().Error().Err(err).Str(pkglog.FieldRoomID, roomID).Msg("producer transport creation failed")
		return nil, domain.AdapterError(err)
	}
	if err := s.rooms.AttachTransport(roomID, transport, connID); err != nil {
		transport.Close()
		return nil, err
	}

	info := transport.Info()
	return &info, nil
}

// CreateConsumerTransport allocates a viewer's media transport. The room
// must be live, and capacity is enforced here before any engine resource is
// allocated, so a rejected viewer never costs a transport.
func (s *coordinator) CreateConsumerTransport(ctx context.Context, connID, roomID string) (*media.TransportInfo, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	if !room.IsLive() {
		return nil, domain.ErrNoActiveBroadcast
	}

	// Connections that skipped join-room (the single-global-room flow) are
	// admitted here, against the same capacity bound.
	if !room.HasMember(connID) {
		conn, ok := s.registry.Get(connID)
		if !ok {
			return nil, domain.ErrRoomNotFound
		}
		count, err := room.AddViewer(connID, conn.DisplayName())
		if err != nil {
			return nil, err
		}
		conn.SetRoom(roomID, domain.RoleViewer, conn.DisplayName())
		s.signals.RelayToRoom(roomID, &domain.ViewerJoinedMessage{
			Type:        domain.EventViewerJoined,
			RoomID:      roomID,
			UserName:    conn.DisplayName(),
			ViewerCount: count,
		}, connID)
	}

	router := room.Router()
	if router == nil {
		return nil, domain.ErrNoActiveBroadcast
	}
	transport, err := router.CreateTransport(ctx)
	if err != nil {
		pkglog.L().Error().Err(err).Str(pkglog.FieldRoomID, roomID).Msg("consumer transport creation failed")
		return nil, domain.AdapterError(err)
	}
	if err := s.rooms.AttachTransport(roomID, transport, connID); err != nil {
		transport.Close()
		return nil, err
	}

	info := transport.Info()
	return &info, nil
}

// ConnectTransport finishes transport negotiation. The owning room is
// resolved through the transport index; connecting someone else's transport
// is indistinguishable from a missing one.
func (s *coordinator) ConnectTransport(ctx context.Context, connID, transportID string, dtlsParameters json.RawMessage) error {
	room, ok := s.rooms.RoomByTransport(transportID)
	if !ok {
		return domain.ErrTransportNotFound
	}
	transport, ownerID, ok := room.Transport(transportID)
	if !ok || ownerID != connID {
		return domain.ErrTransportNotFound
	}
	if err := transport.Connect(ctx, dtlsParameters); err != nil {
		pkglog.L().Error().Err(err).Str(pkglog.FieldTransportID, transportID).Msg("transport connect failed")
		return domain.AdapterError(err)
	}
	return nil
}

// Produce starts the broadcast. Exactly one producer is accepted per room; a
// produce that loses a race against teardown releases its handle instead of
// committing it.
func (s *coordinator) Produce(ctx context.Context, connID, transportID, kind string, rtpParameters json.RawMessage) (*domain.ProducerCreatedMessage, error) {
	room, ok := s.rooms.RoomByTransport(transportID)
	if !ok {
		return nil, domain.ErrTransportNotFound
	}
	transport, ownerID, ok := room.Transport(transportID)
	if !ok || ownerID != connID || room.Broadcaster() != connID {
		return nil, domain.ErrTransportNotFound
	}
	if room.IsLive() {
		return nil, domain.ErrRoomOccupied
	}

	producer, err := transport.Produce(ctx, kind, rtpParameters)
	if err != nil {
		pkglog.L().Error().Err(err).
			Str(pkglog.FieldRoomID, room.ID()).
			Str(pkglog.FieldTransportID, transportID).
			Msg("produce failed")
		return nil, domain.AdapterError(err)
	}

	if err := room.CommitProducer(producer); err != nil {
		// Either the room closed while produce was in flight or another
		// producer won; the handle must not outlive the rejection.
		producer.Close()
		return nil, err
	}

	pkglog.L().Info().
		Str(pkglog.FieldRoomID, room.ID()).
		Str(pkglog.FieldProducerID, producer.ID()).
		Msg("broadcast live")

	s.signals.RelayToRoom(room.ID(), &domain.NewBroadcastMessage{
		Type:            domain.EventNewBroadcast,
		RoomID:          room.ID(),
		ProducerID:      producer.ID(),
		BroadcasterName: room.BroadcasterName(),
	}, connID)

	return &domain.ProducerCreatedMessage{Type: domain.EventProducerCreated, ID: producer.ID()}, nil
}

// Consume creates a paused consumer against the room's live producer.
func (s *coordinator) Consume(ctx context.Context, connID, transportID string, rtpCapabilities json.RawMessage) (*domain.ConsumerCreatedMessage, error) {
	room, ok := s.rooms.RoomByTransport(transportID)
	if !ok {
		return nil, domain.ErrTransportNotFound
	}
	transport, ownerID, ok := room.Transport(transportID)
	if !ok || ownerID != connID {
		return nil, domain.ErrTransportNotFound
	}
	producer := room.Producer()
	if producer == nil || !room.IsLive() {
		return nil, domain.ErrNoActiveBroadcast
	}
	router := room.Router()
	if router == nil {
		return nil, domain.ErrNoActiveBroadcast
	}
	if !router.CanConsume(producer.ID(), rtpCapabilities) {
		return nil, domain.ErrIncompatibleCapabilities
	}

	consumer, err := transport.Consume(ctx, producer.ID(), rtpCapabilities)
	if err != nil {
		pkglog.L().Error().Err(err).
			Str(pkglog.FieldRoomID, room.ID()).
			Str(pkglog.FieldTransportID, transportID).
			Msg("consume failed")
		return nil, domain.AdapterError(err)
	}
	if err := s.rooms.AttachConsumer(room.ID(), consumer); err != nil {
		// Teardown raced the engine call; the producer is gone.
		consumer.Close()
		return nil, domain.ErrNoActiveBroadcast
	}

	return &domain.ConsumerCreatedMessage{
		Type:          domain.EventConsumerCreated,
		ID:            consumer.ID(),
		ProducerID:    consumer.ProducerID(),
		Kind:          consumer.Kind(),
		RTPParameters: consumer.RTPParameters(),
	}, nil
}

// Resume unpauses a consumer, located through the consumer index.
func (s *coordinator) Resume(ctx context.Context, connID, consumerID string) error {
	room, ok := s.rooms.RoomByConsumer(consumerID)
	if !ok {
		return domain.ErrConsumerNotFound
	}
	consumer, ok := room.Consumer(consumerID)
	if !ok {
		return domain.ErrConsumerNotFound
	}
	if err := consumer.Resume(); err != nil {
		pkglog.L().Error().Err(err).Str(pkglog.FieldConsumerID, consumerID).Msg("resume failed")
		return domain.AdapterError(err)
	}
	return nil
}

// EndBroadcast closes the room. Only the bound broadcaster may end it.
// Ending an already-closed room is a no-op, not an error.
func (s *coordinator) EndBroadcast(ctx context.Context, connID, roomID string) error {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return nil
	}
	if room.Broadcaster() != connID {
		return domain.ErrRoomOccupied
	}
	s.teardown(roomID, connID)
	return nil
}

// HandleDisconnect detaches a connection from whatever it was doing. Safe to
// call for connections that never joined a room.
func (s *coordinator) HandleDisconnect(ctx context.Context, connID string) {
	conn, ok := s.registry.Remove(connID)
	if !ok {
		return
	}
	roomID := conn.Room()
	if roomID == "" {
		return
	}
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return
	}

	if room.Broadcaster() == connID {
		pkglog.L().Info().
			Str(pkglog.FieldRoomID, roomID).
			Str(pkglog.FieldConnID, connID).
			Msg("broadcaster disconnected, closing room")
		s.teardown(roomID, connID)
		return
	}

	count, name, wasViewer := room.RemoveViewer(connID)
	if wasViewer {
		s.signals.RelayToRoom(roomID, &domain.ViewerLeftMessage{
			Type:        domain.EventViewerLeft,
			RoomID:      roomID,
			UserName:    name,
			ViewerCount: count,
		}, "")
	}
}

// teardown removes the room, notifies its members exactly once, and then
// releases the engine resources. The store removal and the state flip to
// closed both happen before any engine call, so every concurrent operation
// re-checking state fails cleanly instead of committing into a dead room.
func (s *coordinator) teardown(roomID, excludeConnID string) {
	room, ok := s.rooms.Remove(roomID)
	if !ok {
		return
	}
	res, ok := room.Close()
	if !ok {
		return
	}

	s.signals.RelayToMembers(res.Members, roomID, &domain.BroadcastEndedMessage{
		Type:   domain.EventBroadcastEnded,
		RoomID: roomID,
	}, excludeConnID)

	for _, consumer := range res.Consumers {
		if err := consumer.Close(); err != nil {
			pkglog.L().Warn().Err(err).Str(pkglog.FieldConsumerID, consumer.ID()).Msg("consumer close failed")
		}
	}
	if res.Producer != nil {
		if err := res.Producer.Close(); err != nil {
			pkglog.L().Warn().Err(err).Str(pkglog.FieldProducerID, res.Producer.ID()).Msg("producer close failed")
		}
	}
	for _, transport := range res.Transports {
		if err := transport.Close(); err != nil {
			pkglog.L().Warn().Err(err).Str(pkglog.FieldTransportID, transport.ID()).Msg("transport close failed")
		}
	}
	if res.Router != nil {
		if err := res.Router.Close(); err != nil {
			pkglog.L().Warn().Err(err).Str(pkglog.FieldRoomID, roomID).Msg("router close failed")
		}
	}

	for _, memberID := range res.Members {
		if conn, ok := s.registry.Get(memberID); ok && conn.Room() == roomID {
			conn.ClearRoom()
		}
	}

	pkglog.L().Info().Str(pkglog.FieldRoomID, roomID).Msg("room closed")
}

// RelaySignal forwards an opaque signaling payload to one peer in the
// sender's room.
func (s *coordinator) RelaySignal(connID string, msg *domain.SignalMessage) {
	out := *msg
	out.From = connID
	s.signals.RelayDirect(connID, msg.To, &out)
}

// RelayChat fans a chat message out to the sender's room.
func (s *coordinator) RelayChat(connID string, msg *domain.ChatMessage) {
	conn, ok := s.registry.Get(connID)
	if !ok {
		return
	}
	roomID := conn.Room()
	if roomID == "" {
		return
	}
	out := *msg
	out.RoomID = roomID
	out.From = connID
	out.UserName = conn.DisplayName()
	s.signals.RelayToRoom(roomID, &out, connID)
}

// Status returns the read-only process status.
func (s *coordinator) Status() domain.StatusReport {
	return domain.StatusReport{
		RoomCount:       s.rooms.Count(),
		ConnectionCount: s.registry.Count(),
		Rooms:           s.rooms.Statuses(),
	}
}

// RoomStatus returns a snapshot of one room.
func (s *coordinator) RoomStatus(roomID string) (domain.RoomStatus, bool) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.RoomStatus{}, false
	}
	return room.Status(), true
}
