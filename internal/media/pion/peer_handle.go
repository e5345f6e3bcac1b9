package pion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"roomlink/internal/media"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// peerHandle wraps one pion PeerConnection behind the media boundary.
type peerHandle struct {
	pc     *webrtc.PeerConnection
	logger *zap.SugaredLogger

	mu           sync.Mutex
	videoTrack   *localTrack
	fractionLost float64
	closed       bool
}

func newPeerHandle(pc *webrtc.PeerConnection, logger *zap.SugaredLogger) *peerHandle {
	return &peerHandle{pc: pc, logger: logger}
}

func (h *peerHandle) AddTrack(t media.Track) (media.TrackSender, error) {
	lt, ok := t.(*localTrack)
	if !ok {
		return nil, fmt.Errorf("track %s was not produced by this engine", t.ID())
	}

	sender, err := h.pc.AddTrack(lt.rtpTrack)
	if err != nil {
		return nil, fmt.Errorf("failed to add %s track: %w", t.Kind(), err)
	}

	if t.Kind() == "video" {
		h.mu.Lock()
		h.videoTrack = lt
		h.mu.Unlock()
	}

	go h.drainSenderRTCP(sender)

	return &trackSender{handle: h, sender: sender}, nil
}

// drainSenderRTCP keeps the sender's RTCP path flowing and harvests the
// remote's fraction-lost for quality sampling.
func (h *peerHandle) drainSenderRTCP(sender *webrtc.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range packets {
			rr, ok := pkt.(*rtcp.ReceiverReport)
			if !ok {
				continue
			}
			for _, report := range rr.Reports {
				h.mu.Lock()
				h.fractionLost = float64(report.FractionLost) / 256
				h.mu.Unlock()
			}
		}
	}
}

func (h *peerHandle) OnICECandidate(fn func(media.ICECandidate)) {
	h.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // end of gathering
		}
		init := c.ToJSON()
		fn(media.ICECandidate{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})
}

func (h *peerHandle) OnConnectionStateChange(fn func(media.ConnectionState)) {
	h.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		fn(toConnectionState(state))
	})
}

func (h *peerHandle) OnRemoteTrack(fn func(kind string)) {
	h.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		h.logger.Debugw("remote track arrived", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		fn(track.Kind().String())

		// Drain so congestion feedback keeps working. Playback is the
		// embedder's concern.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := track.Read(buf); err != nil {
					return
				}
			}
		}()
	})
}

func (h *peerHandle) CreateOffer(ctx context.Context, iceRestart bool) (media.SessionDescription, error) {
	var opts *webrtc.OfferOptions
	if iceRestart {
		opts = &webrtc.OfferOptions{ICERestart: true}
	}

	offer, err := h.pc.CreateOffer(opts)
	if err != nil {
		return media.SessionDescription{}, fmt.Errorf("failed to create offer: %w", err)
	}
	if err := h.pc.SetLocalDescription(offer); err != nil {
		return media.SessionDescription{}, fmt.Errorf("failed to set local offer: %w", err)
	}

	return media.SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (h *peerHandle) CreateAnswer(ctx context.Context) (media.SessionDescription, error) {
	answer, err := h.pc.CreateAnswer(nil)
	if err != nil {
		return media.SessionDescription{}, fmt.Errorf("failed to create answer: %w", err)
	}
	if err := h.pc.SetLocalDescription(answer); err != nil {
		return media.SessionDescription{}, fmt.Errorf("failed to set local answer: %w", err)
	}

	return media.SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (h *peerHandle) SetRemoteDescription(desc media.SessionDescription) error {
	return h.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	})
}

func (h *peerHandle) AddICECandidate(cand media.ICECandidate) error {
	return h.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     cand.Candidate,
		SDPMid:        cand.SDPMid,
		SDPMLineIndex: cand.SDPMLineIndex,
	})
}

func (h *peerHandle) OutboundVideoStats() (media.StatsSample, bool) {
	h.mu.Lock()
	track := h.videoTrack
	loss := h.fractionLost
	h.mu.Unlock()

	if track == nil || track.source == nil {
		return media.StatsSample{}, false
	}

	sample := media.StatsSample{
		PacketLoss: loss,
		Timestamp:  time.Now(),
	}
	sample.FramesPerSecond, sample.Width, sample.Height = track.source.videoStats()

	for _, stat := range h.pc.GetStats() {
		if out, ok := stat.(webrtc.OutboundRTPStreamStats); ok && out.Kind == "video" {
			sample.BytesSent = out.BytesSent
		}
	}

	return sample, true
}

func (h *peerHandle) SelectedCandidatePair() (media.CandidatePair, bool) {
	report := h.pc.GetStats()

	candidates := make(map[string]webrtc.ICECandidateStats)
	for _, stat := range report {
		if c, ok := stat.(webrtc.ICECandidateStats); ok {
			candidates[c.ID] = c
		}
	}

	for _, stat := range report {
		pair, ok := stat.(webrtc.ICECandidatePairStats)
		if !ok || !pair.Nominated || pair.State != webrtc.StatsICECandidatePairStateSucceeded {
			continue
		}

		result := media.CandidatePair{Nominated: true}
		if local, ok := candidates[pair.LocalCandidateID]; ok {
			result.LocalType = local.CandidateType.String()
		}
		if remote, ok := candidates[pair.RemoteCandidateID]; ok {
			result.RemoteType = remote.CandidateType.String()
		}
		return result, true
	}

	return media.CandidatePair{}, false
}

func (h *peerHandle) SetMaxVideoBitrate(bps int) error {
	h.mu.Lock()
	track := h.videoTrack
	h.mu.Unlock()

	if track == nil || track.source == nil {
		return fmt.Errorf("no video track bound")
	}
	track.source.setTargetBitrate(bps)
	return nil
}

func (h *peerHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	return h.pc.Close()
}

// trackSender rebinds a sender's source track, tracking the active video
// track for stats.
type trackSender struct {
	handle *peerHandle
	sender *webrtc.RTPSender
}

func (s *trackSender) ReplaceTrack(t media.Track) error {
	lt, ok := t.(*localTrack)
	if !ok {
		return fmt.Errorf("track %s was not produced by this engine", t.ID())
	}

	if err := s.sender.ReplaceTrack(lt.rtpTrack); err != nil {
		return fmt.Errorf("failed to replace track: %w", err)
	}

	if t.Kind() == "video" {
		s.handle.mu.Lock()
		s.handle.videoTrack = lt
		s.handle.mu.Unlock()
	}
	return nil
}

func toConnectionState(state webrtc.PeerConnectionState) media.ConnectionState {
	switch state {
	case webrtc.PeerConnectionStateNew:
		return media.StateNew
	case webrtc.PeerConnectionStateConnecting:
		return media.StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return media.StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return media.StateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return media.StateFailed
	default:
		return media.StateClosed
	}
}
