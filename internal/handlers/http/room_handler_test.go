package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/internal/core/services"
	"roomlink/internal/infrastructure/middleware"
	"roomlink/internal/infrastructure/repositories/memory"
	"roomlink/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, ports.RoomService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := memory.NewMemoryRoomRepository()
	rooms := services.NewRoomService(repo, services.DefaultRoomConfig(), logger.NewNop().Sugar())

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(logger.NewNop().Sugar()))
	NewRoomHandler(rooms, nil).SetupRoutes(router)
	return router, rooms
}

func TestCreateRoom(t *testing.T) {
	router, rooms := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/rooms", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		RoomID string `json:"roomId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.RoomID, 4)

	// The created room is immediately resolvable.
	_, err := rooms.GetRoom(context.Background(), domain.RoomCode(body.RoomID))
	assert.NoError(t, err)
}

func TestGetRoom(t *testing.T) {
	router, rooms := newTestRouter(t)
	ctx := context.Background()

	_, err := rooms.EnsureRoom(ctx, "1234")
	require.NoError(t, err)
	require.NoError(t, rooms.Admit(ctx, "1234", "a"))
	require.NoError(t, rooms.Admit(ctx, "1234", "b"))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/rooms/1234", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		RoomID          string `json:"roomId"`
		Participants    int    `json:"participants"`
		MaxParticipants int    `json:"maxParticipants"`
		IsFull          bool   `json:"isFull"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.Equal(t, "1234", body.RoomID)
	assert.Equal(t, 2, body.Participants)
	assert.Equal(t, domain.MaxParticipants, body.MaxParticipants)
	assert.False(t, body.IsFull)
}

func TestGetRoomEmptyReportsZeroParticipants(t *testing.T) {
	router, rooms := newTestRouter(t)

	_, err := rooms.EnsureRoom(context.Background(), "5678")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/rooms/5678", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"participants":0`)
	assert.Contains(t, w.Body.String(), `"isFull":false`)
}

func TestGetRoomNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/rooms/9999", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestGetRoomBadCode(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/rooms/abc", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_INPUT")
}
