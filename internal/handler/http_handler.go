package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/castrelay/castrelay/internal/service"
	"github.com/castrelay/castrelay/pkg/response"
)

// HTTPHandler serves the read-only health and status surface.
type HTTPHandler struct {
	coordinator service.Coordinator
}

// NewHTTPHandler creates the HTTP handler.
func NewHTTPHandler(coordinator service.Coordinator) *HTTPHandler {
	return &HTTPHandler{coordinator: coordinator}
}

// RegisterRoutes registers all routes.
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		api.GET("/status", h.Status)
		api.GET("/rooms/:roomId", h.RoomStatus)
	}
}

// Health reports process liveness.
func (h *HTTPHandler) Health(c *gin.Context) {
	c.String(200, "OK")
}

// Status returns room count, connection count, and per-room broadcast state.
// Read-only; it never mutates coordinator state.
func (h *HTTPHandler) Status(c *gin.Context) {
	response.Success(c, h.coordinator.Status())
}

// RoomStatus returns a snapshot of a single room.
func (h *HTTPHandler) RoomStatus(c *gin.Context) {
	status, ok := h.coordinator.RoomStatus(c.Param("roomId"))
	if !ok {
		response.NotFound(c, "room not found")
		return
	}
	response.Success(c, status)
}
