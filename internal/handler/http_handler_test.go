package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castrelay/castrelay/internal/domain"
)

func newTestGin(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	coord, _, registry, _ := newTestCoordinator(t)
	registry.Add(domain.NewConnection("bcast"))
	_, err := coord.CreateRoom(context.Background(), "bcast", "room-1", "alice")
	require.NoError(t, err)

	h := NewHTTPHandler(coord)
	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func TestHealth(t *testing.T) {
	r := newTestGin(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestStatusEndpoint(t *testing.T) {
	r := newTestGin(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool                `json:"success"`
		Data    domain.StatusReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 1, body.Data.RoomCount)
	assert.Equal(t, 1, body.Data.ConnectionCount)
	require.Len(t, body.Data.Rooms, 1)
	assert.Equal(t, "room-1", body.Data.Rooms[0].RoomID)
	assert.Equal(t, "alice", body.Data.Rooms[0].BroadcasterName)
}

func TestRoomStatusEndpoint(t *testing.T) {
	r := newTestGin(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms/room-1", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool              `json:"success"`
		Data    domain.RoomStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "room-1", body.Data.RoomID)
	assert.Equal(t, "alice", body.Data.BroadcasterName)
}

func TestRoomStatusEndpointNotFound(t *testing.T) {
	r := newTestGin(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms/missing", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}
