package domain

import "encoding/json"

// Client -> server events.
const (
	EventCreateRoom               = "create-room"
	EventJoinRoom                 = "join-room"
	EventGetRouterCapabilities    = "get-router-capabilities"
	EventCreateProducerTransport  = "create-producer-transport"
	EventConnectProducerTransport = "connect-producer-transport"
	EventProduce                  = "produce"
	EventCreateConsumerTransport  = "create-consumer-transport"
	EventConnectConsumerTransport = "connect-consumer-transport"
	EventConsume                  = "consume"
	EventResume                   = "resume"
	EventWebRTCSignal             = "webrtc-signal"
	EventChatMessage              = "chat-message"
	EventEndBroadcast             = "end-broadcast"
	EventPing                     = "ping"
)

// Server -> client events.
const (
	EventRoomCreated                = "room-created"
	EventRoomJoined                 = "room-joined"
	EventRouterCapabilities         = "router-capabilities"
	EventProducerTransportCreated   = "producer-transport-created"
	EventProducerTransportConnected = "producer-transport-connected"
	EventProducerCreated            = "producer-created"
	EventConsumerTransportCreated   = "consumer-transport-created"
	EventConsumerTransportConnected = "consumer-transport-connected"
	EventConsumerCreated            = "consumer-created"
	EventConsumerResumed            = "consumer-resumed"
	EventViewerJoined               = "viewer-joined"
	EventViewerLeft                 = "viewer-left"
	EventNewBroadcast               = "new-broadcast"
	EventBroadcastEnded             = "broadcast-ended"
	EventBroadcastEndedAck          = "broadcast-end-ack"
	EventError                      = "error"
	EventPong                       = "pong"
)

// BaseMessage is decoded first to route on the event type.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> server messages.

// CreateRoomMessage claims a room's broadcaster slot, creating the room if
// it does not exist.
type CreateRoomMessage struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

// JoinRoomMessage admits the connection to a room as viewer.
type JoinRoomMessage struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	UserName string `json:"userName"`
}

// RoomRequestMessage covers events whose payload is just the room id.
type RoomRequestMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// ConnectTransportMessage finishes transport negotiation.
type ConnectTransportMessage struct {
	Type           string          `json:"type"`
	TransportID    string          `json:"transportId"`
	DTLSParameters json.RawMessage `json:"dtlsParameters"`
}

// ProduceMessage starts the broadcast on a producer transport.
type ProduceMessage struct {
	Type          string          `json:"type"`
	TransportID   string          `json:"transportId"`
	Kind          string          `json:"kind"`
	RTPParameters json.RawMessage `json:"rtpParameters"`
}

// ConsumeMessage requests a consumer on a consumer transport.
type ConsumeMessage struct {
	Type            string          `json:"type"`
	TransportID     string          `json:"transportId"`
	RTPCapabilities json.RawMessage `json:"rtpCapabilities"`
}

// ResumeMessage resumes a paused consumer.
type ResumeMessage struct {
	Type       string `json:"type"`
	ConsumerID string `json:"consumerId"`
}

// SignalMessage relays an opaque signaling payload to one peer. SignalType
// distinguishes offer/answer/candidate; the coordinator does not interpret
// either field.
type SignalMessage struct {
	Type       string          `json:"type"`
	To         string          `json:"to"`
	From       string          `json:"from,omitempty"`
	SignalType string          `json:"signalType"`
	Signal     json.RawMessage `json:"signal"`
}

// ChatMessage is relayed to every member of the sender's room.
type ChatMessage struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	From     string `json:"from,omitempty"`
	UserName string `json:"userName,omitempty"`
	Text     string `json:"text"`
}

// Server -> client messages.

// RoomCreatedMessage acknowledges a claimed broadcaster slot.
type RoomCreatedMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// RoomJoinedMessage acknowledges viewer admission.
type RoomJoinedMessage struct {
	Type            string `json:"type"`
	RoomID          string `json:"roomId"`
	ViewerCount     int    `json:"viewerCount"`
	IsLive          bool   `json:"isLive"`
	BroadcasterName string `json:"broadcasterName,omitempty"`
}

// RouterCapabilitiesMessage carries the room router's capability blob.
type RouterCapabilitiesMessage struct {
	Type            string          `json:"type"`
	RoomID          string          `json:"roomId"`
	RTPCapabilities json.RawMessage `json:"rtpCapabilities"`
}

// TransportCreatedMessage carries transport connection parameters.
type TransportCreatedMessage struct {
	Type           string          `json:"type"`
	ID             string          `json:"id"`
	ICEParameters  json.RawMessage `json:"iceParameters"`
	ICECandidates  json.RawMessage `json:"iceCandidates"`
	DTLSParameters json.RawMessage `json:"dtlsParameters"`
}

// TransportConnectedMessage acknowledges a transport connect.
type TransportConnectedMessage struct {
	Type        string `json:"type"`
	TransportID string `json:"transportId"`
}

// ProducerCreatedMessage acknowledges a successful produce.
type ProducerCreatedMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ConsumerCreatedMessage carries the parameters of a paused consumer.
type ConsumerCreatedMessage struct {
	Type          string          `json:"type"`
	ID            string          `json:"id"`
	ProducerID    string          `json:"producerId"`
	Kind          string          `json:"kind"`
	RTPParameters json.RawMessage `json:"rtpParameters"`
}

// ConsumerResumedMessage acknowledges a resume.
type ConsumerResumedMessage struct {
	Type       string `json:"type"`
	ConsumerID string `json:"consumerId"`
}

// ViewerJoinedMessage is fanned out when a viewer is admitted.
type ViewerJoinedMessage struct {
	Type        string `json:"type"`
	RoomID      string `json:"roomId"`
	UserName    string `json:"userName"`
	ViewerCount int    `json:"viewerCount"`
}

// ViewerLeftMessage is fanned out when a viewer detaches.
type ViewerLeftMessage struct {
	Type        string `json:"type"`
	RoomID      string `json:"roomId"`
	UserName    string `json:"userName"`
	ViewerCount int    `json:"viewerCount"`
}

// NewBroadcastMessage is fanned out when the room goes live.
type NewBroadcastMessage struct {
	Type            string `json:"type"`
	RoomID          string `json:"roomId"`
	ProducerID      string `json:"producerId"`
	BroadcasterName string `json:"broadcasterName,omitempty"`
}

// BroadcastEndedMessage is fanned out once when the room closes.
type BroadcastEndedMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// ErrorMessage reports an operation failure to the originating connection.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorMessage creates an error message.
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{Type: EventError, Code: code, Message: message}
}

// ErrorMessageFor converts a coordinator error into its wire form.
func ErrorMessageFor(err error) *ErrorMessage {
	return NewErrorMessage(CodeFor(err), MessageFor(err))
}

// StatusReport is the read-only process status surface.
type StatusReport struct {
	RoomCount       int          `json:"roomCount"`
	ConnectionCount int          `json:"connectionCount"`
	Rooms           []RoomStatus `json:"rooms"`
}
