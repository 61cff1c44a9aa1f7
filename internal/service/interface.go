package service

import (
	"context"
	"encoding/json"

	"github.com/castrelay/castrelay/internal/domain"
	"github.com/castrelay/castrelay/internal/media"
)

// Coordinator orchestrates the broadcaster-join / viewer-join / produce /
// consume / teardown protocol for every room. Each operation returns either
// a success payload or an error from the domain taxonomy; raw engine faults
// never reach a client.
type Coordinator interface {
	CreateRoom(ctx context.Context, connID, roomID, userName string) (*domain.RoomCreatedMessage, error)
	JoinRoom(ctx context.Context, connID, roomID, userName string) (*domain.RoomJoinedMessage, error)
	RouterCapabilities(ctx context.Context, connID, roomID string) (*domain.RouterCapabilitiesMessage, error)
	CreateProducerTransport(ctx context.Context, connID, roomID string) (*media.TransportInfo, error)
	CreateConsumerTransport(ctx context.Context, connID, roomID string) (*media.TransportInfo, error)
	ConnectTransport(ctx context.Context, connID, transportID string, dtlsParameters json.RawMessage) error
	Produce(ctx context.Context, connID, transportID, kind string, rtpParameters json.RawMessage) (*domain.ProducerCreatedMessage, error)
	Consume(ctx context.Context, connID, transportID string, rtpCapabilities json.RawMessage) (*domain.ConsumerCreatedMessage, error)
	Resume(ctx context.Context, connID, consumerID string) error
	EndBroadcast(ctx context.Context, connID, roomID string) error
	HandleDisconnect(ctx context.Context, connID string)

	RelaySignal(connID string, msg *domain.SignalMessage)
	RelayChat(connID string, msg *domain.ChatMessage)

	Status() domain.StatusReport
	RoomStatus(roomID string) (domain.RoomStatus, bool)
}
