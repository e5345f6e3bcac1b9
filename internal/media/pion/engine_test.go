package pion

import (
	"testing"

	"roomlink/internal/core/domain"
	"roomlink/internal/media"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToICEServersSetsCredentialTypeOnlyWithUsername(t *testing.T) {
	servers := toICEServers([]domain.ICEServer{
		{URLs: []string{"stun:stun.example.com:3478"}},
		{URLs: []string{"turn:turn.example.com:3478"}, Username: "user", Credential: "pass"},
	})

	require.Len(t, servers, 2)

	assert.Equal(t, []string{"stun:stun.example.com:3478"}, servers[0].URLs)
	assert.Empty(t, servers[0].Username)
	assert.Nil(t, servers[0].Credential)

	assert.Equal(t, "user", servers[1].Username)
	assert.Equal(t, "pass", servers[1].Credential)
	assert.Equal(t, webrtc.ICECredentialTypePassword, servers[1].CredentialType)
}

func TestToConnectionState(t *testing.T) {
	cases := []struct {
		in   webrtc.PeerConnectionState
		want media.ConnectionState
	}{
		{webrtc.PeerConnectionStateNew, media.StateNew},
		{webrtc.PeerConnectionStateConnecting, media.StateConnecting},
		{webrtc.PeerConnectionStateConnected, media.StateConnected},
		{webrtc.PeerConnectionStateDisconnected, media.StateDisconnected},
		{webrtc.PeerConnectionStateFailed, media.StateFailed},
		{webrtc.PeerConnectionStateClosed, media.StateClosed},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, toConnectionState(tc.in), tc.in.String())
	}
}

func TestVideoSourceConstraints(t *testing.T) {
	source, err := newVideoSource("front", media.VideoConstraints{Width: 1280, Height: 720, Framerate: 30})
	require.NoError(t, err)
	defer source.Stop()

	assert.Equal(t, "front", source.DeviceID())
	assert.Equal(t, "video", source.Track().Kind())

	_, width, height := source.videoStats()
	assert.Equal(t, 1280, width)
	assert.Equal(t, 720, height)

	require.NoError(t, source.ApplyConstraints(media.VideoConstraints{Width: 640, Height: 360, Framerate: 24}))
	_, width, height = source.videoStats()
	assert.Equal(t, 640, width)
	assert.Equal(t, 360, height)

	// A zero framerate falls back to a sane default instead of stalling the
	// pacer.
	require.NoError(t, source.ApplyConstraints(media.VideoConstraints{Width: 320, Height: 240}))
	source.mu.Lock()
	assert.Equal(t, float64(30), source.constraints.Framerate)
	source.mu.Unlock()

	require.NoError(t, source.Stop())
	require.NoError(t, source.Stop(), "stop is idempotent")
}
