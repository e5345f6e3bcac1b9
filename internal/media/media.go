package media

import (
	"context"
	"time"

	"roomlink/internal/core/domain"
)

// SessionDescription is an SDP blob plus its role in the exchange.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate is one trickled candidate in standard init form.
type ICECandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// ConnectionState mirrors the peer connection lifecycle.
type ConnectionState int

const (
	StateNew ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StatsSample is one reading of the outbound video path on a single link.
type StatsSample struct {
	FramesPerSecond float64
	Width           int
	Height          int
	BytesSent       uint64
	PacketLoss      float64
	// BitrateBps is the instantaneous send rate derived from the byte-count
	// delta against the previous reading on the same link. Zero on the first
	// reading and after a counter reset.
	BitrateBps float64
	Timestamp  time.Time
}

// CandidatePair describes the nominated transport route of a link.
type CandidatePair struct {
	LocalType  string
	RemoteType string
	Nominated  bool
}

// UsesRelay reports whether either end of the pair is a TURN relay.
func (p CandidatePair) UsesRelay() bool {
	return p.LocalType == "relay" || p.RemoteType == "relay"
}

// VideoConstraints is the capture target a quality tier translates to.
type VideoConstraints struct {
	Width     int
	Height    int
	Framerate float64
}

// Track is an outbound media track that can be attached to peer links.
type Track interface {
	ID() string
	Kind() string
}

// TrackSender is the per-link binding of one outbound track. ReplaceTrack
// swaps the source without renegotiation.
type TrackSender interface {
	ReplaceTrack(t Track) error
}

// VideoSource produces one outbound video track from a capture device.
type VideoSource interface {
	Track() Track
	DeviceID() string
	ApplyConstraints(c VideoConstraints) error
	Stop() error
}

// LocalMedia bundles the microphone track with the current video source.
// SetVideo swaps the active camera; callers then ReplaceTrack on each link.
type LocalMedia interface {
	AudioTrack() Track
	Video() VideoSource
	SetVideo(v VideoSource)
	Close() error
}

// PeerHandle is one peer-to-peer link. Negotiation products (descriptions,
// candidates) are opaque to everything above this interface.
type PeerHandle interface {
	AddTrack(t Track) (TrackSender, error)

	OnICECandidate(fn func(ICECandidate))
	OnConnectionStateChange(fn func(ConnectionState))
	// OnRemoteTrack fires when the far side's audio or video arrives.
	OnRemoteTrack(fn func(kind string))

	// CreateOffer produces and installs a local offer. With iceRestart the
	// offer carries fresh ICE credentials to force candidate regathering.
	CreateOffer(ctx context.Context, iceRestart bool) (SessionDescription, error)
	// CreateAnswer produces and installs a local answer to the current
	// remote offer.
	CreateAnswer(ctx context.Context) (SessionDescription, error)
	SetRemoteDescription(desc SessionDescription) error
	AddICECandidate(cand ICECandidate) error

	OutboundVideoStats() (StatsSample, bool)
	SelectedCandidatePair() (CandidatePair, bool)
	SetMaxVideoBitrate(bps int) error

	Close() error
}

// WakeLock keeps the host from suspending while a call is live. A no-op
// implementation is valid where the platform has no such facility.
type WakeLock interface {
	Acquire() error
	Release()
}

// Engine is the factory boundary to the media subsystem.
type Engine interface {
	AcquireMedia(ctx context.Context, c VideoConstraints) (LocalMedia, error)
	// AcquireVideo opens a specific capture device, for camera switching.
	AcquireVideo(ctx context.Context, deviceID string, c VideoConstraints) (VideoSource, error)
	NewPeerHandle(ctx context.Context, servers []domain.ICEServer) (PeerHandle, error)
	WakeLock() WakeLock
	Close() error
}
