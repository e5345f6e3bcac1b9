package pion

import (
	"context"
	"fmt"

	"roomlink/internal/core/domain"
	"roomlink/internal/media"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// EngineConfig carries the transport knobs for peer connections.
type EngineConfig struct {
	PortRange struct {
		Min uint16
		Max uint16
	}
}

// Engine builds pion-backed peer handles and synthetic capture sources.
type Engine struct {
	api    *webrtc.API
	logger *zap.SugaredLogger
}

func NewEngine(cfg EngineConfig, logger *zap.Logger) (*Engine, error) {
	settingEngine := webrtc.SettingEngine{}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(cfg.PortRange.Min, cfg.PortRange.Max); err != nil {
			return nil, fmt.Errorf("failed to set UDP port range: %w", err)
		}
	}

	return &Engine{
		api:    webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine)),
		logger: logger.Sugar(),
	}, nil
}

func (e *Engine) AcquireMedia(ctx context.Context, c media.VideoConstraints) (media.LocalMedia, error) {
	audio, err := newAudioSource()
	if err != nil {
		return nil, fmt.Errorf("failed to open audio source: %w", err)
	}

	video, err := e.AcquireVideo(ctx, defaultDeviceID, c)
	if err != nil {
		audio.stop()
		return nil, err
	}

	return &localMedia{audio: audio, video: video}, nil
}

func (e *Engine) AcquireVideo(ctx context.Context, deviceID string, c media.VideoConstraints) (media.VideoSource, error) {
	src, err := newVideoSource(deviceID, c)
	if err != nil {
		return nil, fmt.Errorf("failed to open video source %q: %w", deviceID, err)
	}
	return src, nil
}

func (e *Engine) NewPeerHandle(ctx context.Context, servers []domain.ICEServer) (media.PeerHandle, error) {
	config := webrtc.Configuration{
		ICEServers:   toICEServers(servers),
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	}

	pc, err := e.api.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	return newPeerHandle(pc, e.logger), nil
}

func (e *Engine) WakeLock() media.WakeLock {
	return &noopWakeLock{logger: e.logger}
}

func (e *Engine) Close() error {
	return nil
}

func toICEServers(servers []domain.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, server)
	}
	return out
}

// localMedia bundles the audio source with a swappable video source.
type localMedia struct {
	audio *audioSource
	video media.VideoSource
}

func (m *localMedia) AudioTrack() media.Track {
	return m.audio.track
}

func (m *localMedia) Video() media.VideoSource {
	return m.video
}

func (m *localMedia) SetVideo(v media.VideoSource) {
	m.video = v
}

func (m *localMedia) Close() error {
	m.audio.stop()
	if m.video != nil {
		return m.video.Stop()
	}
	return nil
}
