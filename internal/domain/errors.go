package domain

import (
	"errors"
	"fmt"
)

// Coordinator error taxonomy. Every operation failure surfaced to a client
// is one of these; anything else is wrapped as an adapter failure.
var (
	ErrRoomOccupied             = errors.New("room already has a broadcaster")
	ErrRoomNotFound             = errors.New("room not found")
	ErrRoomFull                 = errors.New("room is full")
	ErrNoActiveBroadcast        = errors.New("no active broadcast")
	ErrTransportNotFound        = errors.New("transport not found")
	ErrConsumerNotFound         = errors.New("consumer not found")
	ErrIncompatibleCapabilities = errors.New("incompatible rtp capabilities")
	ErrAdapterFailure           = errors.New("media engine failure")
)

// Error codes delivered on the wire.
const (
	CodeRoomOccupied             = "ROOM_OCCUPIED"
	CodeRoomNotFound             = "ROOM_NOT_FOUND"
	CodeRoomFull                 = "ROOM_FULL"
	CodeNoActiveBroadcast        = "NO_ACTIVE_BROADCAST"
	CodeTransportNotFound        = "TRANSPORT_NOT_FOUND"
	CodeConsumerNotFound         = "CONSUMER_NOT_FOUND"
	CodeIncompatibleCapabilities = "INCOMPATIBLE_CAPABILITIES"
	CodeAdapterFailure           = "MEDIA_ENGINE_FAILURE"
	CodeBadRequest               = "BAD_REQUEST"
)

// AdapterError wraps a raw engine failure so callers can classify it with
// errors.Is(err, ErrAdapterFailure) while logs keep the cause.
func AdapterError(err error) error {
	return fmt.Errorf("%w: %v", ErrAdapterFailure, err)
}

// CodeFor maps a coordinator error to its wire code.
func CodeFor(err error) string {
	switch {
	case errors.Is(err, ErrRoomOccupied):
		return CodeRoomOccupied
	case errors.Is(err, ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, ErrRoomFull):
		return CodeRoomFull
	case errors.Is(err, ErrNoActiveBroadcast):
		return CodeNoActiveBroadcast
	case errors.Is(err, ErrTransportNotFound):
		return CodeTransportNotFound
	case errors.Is(err, ErrConsumerNotFound):
		return CodeConsumerNotFound
	case errors.Is(err, ErrIncompatibleCapabilities):
		return CodeIncompatibleCapabilities
	default:
		return CodeAdapterFailure
	}
}

// MessageFor returns the user-facing message for an error. Adapter failures
// are reported generically; the cause stays in the logs.
func MessageFor(err error) string {
	if errors.Is(err, ErrAdapterFailure) {
		return "media engine failure"
	}
	return err.Error()
}
