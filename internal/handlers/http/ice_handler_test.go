package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"roomlink/internal/core/domain"
	webrtcinfra "roomlink/internal/infrastructure/webrtc"
	"roomlink/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTURNCredentialsServedUnderAPIPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)

	fallback := []domain.ICEServer{
		{URLs: []string{"stun:stun.example.com:3478"}},
		{URLs: []string{"turn:turn.example.com:3478"}, Username: "u", Credential: "p"},
	}
	credentials := webrtcinfra.NewCredentialSource("", time.Second, fallback, logger.NewNop())

	router := gin.New()
	NewICEHandler(credentials).SetupRoutes(router)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/turn-credentials", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stun:stun.example.com:3478")
	// Without an upstream credential service only STUN entries are served.
	assert.NotContains(t, w.Body.String(), "turn:turn.example.com:3478")
}
