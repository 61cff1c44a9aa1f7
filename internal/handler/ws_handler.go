package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/castrelay/castrelay/internal/domain"
	"github.com/castrelay/castrelay/internal/hub"
	"github.com/castrelay/castrelay/internal/media"
	"github.com/castrelay/castrelay/internal/service"
	"github.com/castrelay/castrelay/internal/store"
	pkglog "github.com/castrelay/castrelay/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler handles WebSocket connections and routes client events to the
// coordinator.
type WSHandler struct {
	hub         *hub.Hub
	registry    *store.Registry
	coordinator service.Coordinator
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(h *hub.Hub, registry *store.Registry, coordinator service.Coordinator) *WSHandler {
	return &WSHandler{
		hub:         h,
		registry:    registry,
		coordinator: coordinator,
	}
}

// HandleWebSocket handles WebSocket upgrade and message routing.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	l := pkglog.Ctx(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	connID := uuid.New().String()
	client := &hub.Client{
		ID:   connID,
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, 256),
	}

	h.registry.Add(domain.NewConnection(connID))

	client.SetDisconnectHandler(func(c *hub.Client) {
		h.coordinator.HandleDisconnect(context.Background(), c.ID)
	})

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.CodeBadRequest, "invalid message format"))
		return
	}

	if conn, ok := h.registry.Get(client.ID); ok {
		conn.UpdateActivity()
	}

	ctx := context.Background()

	switch base.Type {
	case domain.EventCreateRoom:
		var msg domain.CreateRoomMessage
		if !h.decode(client, message, &msg) {
			return
		}
		resp, err := h.coordinator.CreateRoom(ctx, client.ID, msg.RoomID, msg.UserName)
		h.reply(client, resp, err)

	case domain.EventJoinRoom:
		var msg domain.JoinRoomMessage
		if !h.decode(client, message, &msg) {
			return
		}
		resp, err := h.coordinator.JoinRoom(ctx, client.ID, msg.RoomID, msg.UserName)
		h.reply(client, resp, err)

	case domain.EventGetRouterCapabilities:
		var msg domain.RoomRequestMessage
		if !h.decode(client, message, &msg) {
			return
		}
		resp, err := h.coordinator.RouterCapabilities(ctx, client.ID, msg.RoomID)
		h.reply(client, resp, err)

	case domain.EventCreateProducerTransport:
		var msg domain.RoomRequestMessage
		if !h.decode(client, message, &msg) {
			return
		}
		info, err := h.coordinator.CreateProducerTransport(ctx, client.ID, msg.RoomID)
		if err != nil {
			h.sendError(client, err)
			return
		}
		client.SendMessage(transportCreated(domain.EventProducerTransportCreated, info))

	case domain.EventConnectProducerTransport:
		var msg domain.ConnectTransportMessage
		if !h.decode(client, message, &msg) {
			return
		}
		if err := h.coordinator.ConnectTransport(ctx, client.ID, msg.TransportID, msg.DTLSParameters); err != nil {
			h.sendError(client, err)
			return
		}
		client.SendMessage(&domain.TransportConnectedMessage{
			Type:        domain.EventProducerTransportConnected,
			TransportID: msg.TransportID,
		})

	case domain.EventProduce:
		var msg domain.ProduceMessage
		if !h.decode(client, message, &msg) {
			return
		}
		resp, err := h.coordinator.Produce(ctx, client.ID, msg.TransportID, msg.Kind, msg.RTPParameters)
		h.reply(client, resp, err)

	case domain.EventCreateConsumerTransport:
		var msg domain.RoomRequestMessage
		if !h.decode(client, message, &msg) {
			return
		}
		info, err := h.coordinator.CreateConsumerTransport(ctx, client.ID, msg.RoomID)
		if err != nil {
			h.sendError(client, err)
			return
		}
		client.SendMessage(transportCreated(domain.EventConsumerTransportCreated, info))

	case domain.EventConnectConsumerTransport:
		var msg domain.ConnectTransportMessage
		if !h.decode(client, message, &msg) {
			return
		}
		if err := h.coordinator.ConnectTransport(ctx, client.ID, msg.TransportID, msg.DTLSParameters); err != nil {
			h.sendError(client, err)
			return
		}
		client.SendMessage(&domain.TransportConnectedMessage{
			Type:        domain.EventConsumerTransportConnected,
			TransportID: msg.TransportID,
		})

	case domain.EventConsume:
		var msg domain.ConsumeMessage
		if !h.decode(client, message, &msg) {
			return
		}
		resp, err := h.coordinator.Consume(ctx, client.ID, msg.TransportID, msg.RTPCapabilities)
		h.reply(client, resp, err)

	case domain.EventResume:
		var msg domain.ResumeMessage
		if !h.decode(client, message, &msg) {
			return
		}
		if err := h.coordinator.Resume(ctx, client.ID, msg.ConsumerID); err != nil {
			h.sendError(client, err)
			return
		}
		client.SendMessage(&domain.ConsumerResumedMessage{
			Type:       domain.EventConsumerResumed,
			ConsumerID: msg.ConsumerID,
		})

	case domain.EventWebRTCSignal:
		var msg domain.SignalMessage
		if !h.decode(client, message, &msg) {
			return
		}
		h.coordinator.RelaySignal(client.ID, &msg)

	case domain.EventChatMessage:
		var msg domain.ChatMessage
		if !h.decode(client, message, &msg) {
			return
		}
		h.coordinator.RelayChat(client.ID, &msg)

	case domain.EventEndBroadcast:
		var msg domain.RoomRequestMessage
		if !h.decode(client, message, &msg) {
			return
		}
		if err := h.coordinator.EndBroadcast(ctx, client.ID, msg.RoomID); err != nil {
			h.sendError(client, err)
			return
		}
		client.SendMessage(&domain.BroadcastEndedMessage{
			Type:   domain.EventBroadcastEndedAck,
			RoomID: msg.RoomID,
		})

	case domain.EventPing:
		client.SendMessage(map[string]string{"type": domain.EventPong})

	default:
		client.SendMessage(domain.NewErrorMessage(domain.CodeBadRequest, "unknown message type"))
	}
}

func (h *WSHandler) decode(client *hub.Client, raw []byte, out interface{}) bool {
	if err := json.Unmarshal(raw, out); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.CodeBadRequest, "invalid message payload"))
		return false
	}
	return true
}

// reply sends either the operation's response payload or its mapped error
// to the originating connection.
func (h *WSHandler) reply(client *hub.Client, payload interface{}, err error) {
	if err != nil {
		h.sendError(client, err)
		return
	}
	client.SendMessage(payload)
}

func (h *WSHandler) sendError(client *hub.Client, err error) {
	pkglog.L().Debug().Err(err).Str(pkglog.FieldConnID, client.ID).Msg("operation failed")
	client.SendMessage(domain.ErrorMessageFor(err))
}

func transportCreated(event string, info *media.TransportInfo) *domain.TransportCreatedMessage {
	return &domain.TransportCreatedMessage{
		Type:           event,
		ID:             info.ID,
		ICEParameters:  info.ICEParameters,
		ICECandidates:  info.ICECandidates,
		DTLSParameters: info.DTLSParameters,
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleWebSocket)
}
