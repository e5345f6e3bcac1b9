package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/pkg/retry"

	"go.uber.org/zap"
)

// CredentialSource resolves the ICE server list handed to joining clients.
// TURN credentials are short-lived, so they come from an upstream credential
// service per request; when that service is unreachable the source degrades
// to the static STUN-only set and calls still work for directly reachable
// peers.
type CredentialSource struct {
	upstreamURL string
	client      *http.Client
	retryCfg    retry.Config
	fallback    []domain.ICEServer
	logger      *zap.SugaredLogger
}

func NewCredentialSource(upstreamURL string, timeout time.Duration, fallback []domain.ICEServer, logger *zap.Logger) *CredentialSource {
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = 2

	return &CredentialSource{
		upstreamURL: upstreamURL,
		client:      &http.Client{Timeout: timeout},
		retryCfg:    retryCfg,
		fallback:    fallback,
		logger:      logger.Sugar(),
	}
}

// Servers returns the ICE servers a client should use right now. It never
// fails; the worst case is the STUN-only fallback.
func (s *CredentialSource) Servers(ctx context.Context) []domain.ICEServer {
	if s.upstreamURL == "" {
		return s.stunOnly()
	}

	servers, err := retry.RetryWithResult(ctx, s.retryCfg, func() ([]domain.ICEServer, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		s.logger.Warnw("credential service unavailable, using STUN-only fallback", "error", err)
		return s.stunOnly()
	}
	return servers
}

func (s *CredentialSource) fetch(ctx context.Context) ([]domain.ICEServer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.upstreamURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("credential service returned %d", resp.StatusCode)
	}

	var body struct {
		ICEServers []domain.ICEServer `json:"iceServers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode credential response: %w", err)
	}
	if len(body.ICEServers) == 0 {
		return nil, fmt.Errorf("credential service returned no servers")
	}

	return body.ICEServers, nil
}

func (s *CredentialSource) stunOnly() []domain.ICEServer {
	servers := make([]domain.ICEServer, 0, len(s.fallback))
	for _, srv := range s.fallback {
		if !srv.IsTURN() {
			servers = append(servers, srv)
		}
	}
	return servers
}
