package http

import (
	"net/http"

	webrtcinfra "roomlink/internal/infrastructure/webrtc"

	"github.com/gin-gonic/gin"
)

type ICEHandler struct {
	credentials *webrtcinfra.CredentialSource
}

func NewICEHandler(credentials *webrtcinfra.CredentialSource) *ICEHandler {
	return &ICEHandler{credentials: credentials}
}

func (h *ICEHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/turn-credentials", h.GetTURNCredentials)
	}
}

func (h *ICEHandler) GetTURNCredentials(c *gin.Context) {
	servers := h.credentials.Servers(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"iceServers": servers,
	})
}
