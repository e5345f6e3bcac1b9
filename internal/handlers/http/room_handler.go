package http

import (
	"errors"
	"net/http"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/internal/infrastructure/monitoring"
	apperrors "roomlink/pkg/errors"
	"roomlink/pkg/validation"

	"github.com/gin-gonic/gin"
)

type RoomHandler struct {
	roomService ports.RoomService
	metrics     *monitoring.Collector
}

func NewRoomHandler(roomService ports.RoomService, metrics *monitoring.Collector) *RoomHandler {
	return &RoomHandler{
		roomService: roomService,
		metrics:     metrics,
	}
}

func (h *RoomHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/rooms", h.CreateRoom)
		api.GET("/rooms/:code", h.GetRoom)
	}
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	code, err := h.roomService.CreateRoom(c.Request.Context())
	if err != nil {
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to create room", http.StatusInternalServerError))
		return
	}

	h.metrics.RoomCreated()

	c.JSON(http.StatusCreated, gin.H{
		"roomId": code,
	})
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	raw := c.Param("code")
	code, ok := validation.ExtractRoomCode(raw)
	if !ok {
		c.Error(apperrors.NewInvalidInputError("room code must contain exactly 4 digits"))
		return
	}

	room, err := h.roomService.GetRoom(c.Request.Context(), domain.RoomCode(code))
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			c.Error(apperrors.NewNotFoundError("room"))
			return
		}
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to load room", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"roomId":          room.Code,
		"participants":    len(room.Participants),
		"maxParticipants": domain.MaxParticipants,
		"isFull":          room.IsFull(),
	})
}
