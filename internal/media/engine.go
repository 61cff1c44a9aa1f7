package media

import (
	"context"
	"encoding/json"
)

// Media kinds.
const (
	KindAudio = "audio"
	KindVideo = "video"
)

// TransportInfo carries the connection parameters a client needs to connect
// a transport. The parameter blobs are opaque to the coordinator; only the
// engine and the client interpret them.
type TransportInfo struct {
	ID             string          `json:"id"`
	ICEParameters  json.RawMessage `json:"iceParameters"`
	ICECandidates  json.RawMessage `json:"iceCandidates"`
	DTLSParameters json.RawMessage `json:"dtlsParameters"`
}

// Engine is the media engine boundary. The coordinator never reaches past
// it: codec negotiation, SRTP, and NAT traversal are the engine's problem.
type Engine interface {
	// CreateRouter creates an isolated media-routing context. One router is
	// created per room so codec negotiation never crosses rooms.
	CreateRouter(ctx context.Context) (Router, error)
	// Close releases every router still open.
	Close() error
}

// Router is a per-room media routing context.
type Router interface {
	ID() string
	// Capabilities returns the RTP capability blob clients need before
	// creating transports.
	Capabilities() json.RawMessage
	CreateTransport(ctx context.Context) (Transport, error)
	// CanConsume reports whether a client with the given RTP capabilities
	// can receive the producer's media.
	CanConsume(producerID string, rtpCapabilities json.RawMessage) bool
	Close() error
}

// Transport is one negotiated media endpoint, owned by a room.
type Transport interface {
	ID() string
	Info() TransportInfo
	Connect(ctx context.Context, dtlsParameters json.RawMessage) error
	Produce(ctx context.Context, kind string, rtpParameters json.RawMessage) (Producer, error)
	// Consume creates a consumer for the given producer. Consumers start
	// paused; media flows only after Resume.
	Consume(ctx context.Context, producerID string, rtpCapabilities json.RawMessage) (Consumer, error)
	Close() error
}

// Producer is an inbound media stream handle.
type Producer interface {
	ID() string
	Kind() string
	Close() error
}

// Consumer is an outbound media stream handle.
type Consumer interface {
	ID() string
	ProducerID() string
	Kind() string
	RTPParameters() json.RawMessage
	Resume() error
	Close() error
}
