package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/infrastructure/signal"
	"roomlink/internal/media"

	"go.uber.org/zap"
)

// maxICERestarts bounds recovery attempts per failure episode: one immediate
// restart, one delayed.
const maxICERestarts = 2

var restartRetryDelay = 3 * time.Second

// PeerLink is one negotiated connection to another room participant.
type PeerLink struct {
	ID domain.ClientID
	// Initiator is true when we joined after the peer: the newly-joined
	// side creates the offer, so a joiner never races the room roster.
	Initiator bool

	handle      media.PeerHandle
	audioSender media.TrackSender
	videoSender media.TrackSender

	// pending buffers remote candidates that arrived before the remote
	// description. Flushed in arrival order once it lands.
	pending   []media.ICECandidate
	remoteSet bool

	restarts     int
	restartTimer *time.Timer

	// lastSample holds the previous stats reading so consecutive byte counts
	// yield an instantaneous bitrate.
	lastSample   media.StatsSample
	lastSampleOK bool

	state  media.ConnectionState
	failed bool
}

// Signaler is the gateway surface the orchestrator drives. *SignalingClient
// is the production implementation.
type Signaler interface {
	JoinRoom(roomID string) error
	LeaveRoom() error
	SendOffer(target domain.ClientID, desc media.SessionDescription) error
	SendAnswer(target domain.ClientID, desc media.SessionDescription) error
	SendCandidate(target domain.ClientID, cand media.ICECandidate) error
	Events() <-chan signal.Message
}

// Orchestrator owns the full mesh: one PeerLink per other participant,
// driven by gateway events. It also feeds the quality controller and relay
// detector with per-link readings.
type Orchestrator struct {
	signaling Signaler
	engine    media.Engine
	servers   []domain.ICEServer
	logger    *zap.SugaredLogger

	localMedia media.LocalMedia
	wakeLock   media.WakeLock

	mu        sync.Mutex
	links     map[domain.ClientID]*PeerLink
	tierIndex int
	started   bool

	rosterListeners []func()
	linkUpListeners []func()

	// OnRoomFull, when set, is invoked if a join is rejected at capacity.
	OnRoomFull func()
	// OnLinkFailed, when set, is invoked after restart attempts are spent.
	OnLinkFailed func(id domain.ClientID)

	done chan struct{}
}

func NewOrchestrator(signaling Signaler, engine media.Engine, servers []domain.ICEServer, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		signaling: signaling,
		engine:    engine,
		servers:   servers,
		logger:    logger.Sugar(),
		links:     make(map[domain.ClientID]*PeerLink),
		done:      make(chan struct{}),
	}
}

// Start acquires local media at the top quality tier and begins consuming
// gateway events.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already started")
	}
	o.started = true
	o.mu.Unlock()

	tier := domain.Tiers[0]
	localMedia, err := o.engine.AcquireMedia(ctx, media.VideoConstraints{
		Width:     tier.Width,
		Height:    tier.Height,
		Framerate: float64(tier.Framerate),
	})
	if err != nil {
		return fmt.Errorf("failed to acquire local media: %w", err)
	}

	o.mu.Lock()
	o.localMedia = localMedia
	o.wakeLock = o.engine.WakeLock()
	o.mu.Unlock()

	if err := o.wakeLock.Acquire(); err != nil {
		o.logger.Warnw("failed to acquire wake lock", "error", err)
	}

	go o.run(ctx)
	return nil
}

// Join enters a room by code or pasted link.
func (o *Orchestrator) Join(roomID string) error {
	return o.signaling.JoinRoom(roomID)
}

// Leave tears down every link, releases local media and the wake lock, and
// tells the gateway we are gone.
func (o *Orchestrator) Leave() {
	if err := o.signaling.LeaveRoom(); err != nil {
		o.logger.Warnw("failed to send leave-room", "error", err)
	}

	o.mu.Lock()
	links := o.links
	o.links = make(map[domain.ClientID]*PeerLink)
	localMedia := o.localMedia
	wakeLock := o.wakeLock
	o.mu.Unlock()

	for _, link := range links {
		o.closeLink(link)
	}

	if localMedia != nil {
		if err := localMedia.Close(); err != nil {
			o.logger.Warnw("failed to close local media", "error", err)
		}
	}
	if wakeLock != nil {
		wakeLock.Release()
	}

	o.notifyRosterChange()
}

func (o *Orchestrator) Stop() {
	close(o.done)
}

func (o *Orchestrator) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.done:
			return
		case msg, ok := <-o.signaling.Events():
			if !ok {
				return
			}
			if err := o.handleEvent(ctx, msg); err != nil {
				o.logger.Warnw("error handling signaling event", "type", msg.Type, "error", err)
			}
		}
	}
}

func (o *Orchestrator) handleEvent(ctx context.Context, msg signal.Message) error {
	switch msg.Type {
	case signal.TypeRoomJoined:
		return o.handleRoomJoined(ctx, msg)
	case signal.TypeParticipantJoined:
		return o.handleParticipantJoined(ctx, msg)
	case signal.TypeParticipantLeft:
		return o.handleParticipantLeft(msg)
	case signal.TypeOffer:
		return o.handleOffer(ctx, msg)
	case signal.TypeAnswer:
		return o.handleAnswer(msg)
	case signal.TypeICECandidate:
		return o.handleCandidate(msg)
	case signal.TypeRoomFull:
		o.logger.Warnw("room is full")
		if o.OnRoomFull != nil {
			o.OnRoomFull()
		}
		return nil
	case signal.TypeError:
		var payload signal.ErrorPayload
		if err := json.Unmarshal(msg.Payload, &payload); err == nil {
			o.logger.Warnw("gateway error", "message", payload.Message)
		}
		return nil
	default:
		o.logger.Debugw("ignoring unknown event", "type", msg.Type)
		return nil
	}
}

// handleRoomJoined rebuilds the mesh from scratch: we are the newly-joined
// side toward everyone already in the room, so we initiate every offer.
func (o *Orchestrator) handleRoomJoined(ctx context.Context, msg signal.Message) error {
	var payload signal.RoomJoinedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid room-joined payload: %w", err)
	}

	o.mu.Lock()
	stale := o.links
	o.links = make(map[domain.ClientID]*PeerLink)
	o.mu.Unlock()

	for _, link := range stale {
		o.closeLink(link)
	}

	o.logger.Infow("joined room", "peers", len(payload.Participants))

	for _, peer := range payload.Participants {
		if _, err := o.createLink(ctx, peer, true); err != nil {
			o.logger.Errorw("failed to create link", "peer", peer, "error", err)
		}
	}

	o.notifyRosterChange()
	return nil
}

// handleParticipantJoined prepares a link for the newcomer. They initiate;
// we hold the answering side.
func (o *Orchestrator) handleParticipantJoined(ctx context.Context, msg signal.Message) error {
	var payload signal.ParticipantPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid participant-joined payload: %w", err)
	}

	o.logger.Infow("participant joined", "peer", payload.SocketID)

	if _, err := o.createLink(ctx, payload.SocketID, false); err != nil {
		return err
	}

	o.notifyRosterChange()
	return nil
}

func (o *Orchestrator) handleParticipantLeft(msg signal.Message) error {
	var payload signal.ParticipantPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid participant-left payload: %w", err)
	}

	o.mu.Lock()
	link, exists := o.links[payload.SocketID]
	delete(o.links, payload.SocketID)
	o.mu.Unlock()

	if exists {
		o.closeLink(link)
	}

	o.logger.Infow("participant left", "peer", payload.SocketID)
	o.notifyRosterChange()
	return nil
}

func (o *Orchestrator) handleOffer(ctx context.Context, msg signal.Message) error {
	var payload signal.SignalPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid offer payload: %w", err)
	}

	var desc media.SessionDescription
	if err := json.Unmarshal(payload.SDP, &desc); err != nil {
		return fmt.Errorf("invalid offer SDP: %w", err)
	}

	// An offer may precede our participant-joined handling; create the link
	// on demand rather than dropping the negotiation.
	o.mu.Lock()
	link, exists := o.links[payload.Sender]
	o.mu.Unlock()
	if !exists {
		var err error
		link, err = o.createLink(ctx, payload.Sender, false)
		if err != nil {
			return err
		}
		o.notifyRosterChange()
	}

	if err := link.handle.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("remote offer from %s: %w: %v", payload.Sender, domain.ErrNegotiationFailed, err)
	}
	o.flushPending(link)

	answer, err := link.handle.CreateAnswer(ctx)
	if err != nil {
		return fmt.Errorf("answering %s: %w: %v", payload.Sender, domain.ErrNegotiationFailed, err)
	}

	return o.signaling.SendAnswer(payload.Sender, answer)
}

func (o *Orchestrator) handleAnswer(msg signal.Message) error {
	var payload signal.SignalPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid answer payload: %w", err)
	}

	var desc media.SessionDescription
	if err := json.Unmarshal(payload.SDP, &desc); err != nil {
		return fmt.Errorf("invalid answer SDP: %w", err)
	}

	o.mu.Lock()
	link, exists := o.links[payload.Sender]
	o.mu.Unlock()
	if !exists {
		return fmt.Errorf("answer from %s: %w", payload.Sender, domain.ErrLinkNotFound)
	}

	if err := link.handle.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("remote answer from %s: %w: %v", payload.Sender, domain.ErrNegotiationFailed, err)
	}
	o.flushPending(link)
	return nil
}

func (o *Orchestrator) handleCandidate(msg signal.Message) error {
	var payload signal.SignalPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid ice-candidate payload: %w", err)
	}

	var cand media.ICECandidate
	if err := json.Unmarshal(payload.Candidate, &cand); err != nil {
		return fmt.Errorf("invalid candidate: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	link, exists := o.links[payload.Sender]
	if !exists {
		return fmt.Errorf("candidate from %s: %w", payload.Sender, domain.ErrLinkNotFound)
	}

	if !link.remoteSet {
		link.pending = append(link.pending, cand)
		return nil
	}
	return link.handle.AddICECandidate(cand)
}

// flushPending marks the remote description as installed and applies queued
// candidates in arrival order.
func (o *Orchestrator) flushPending(link *PeerLink) {
	o.mu.Lock()
	link.remoteSet = true
	pending := link.pending
	link.pending = nil
	o.mu.Unlock()

	for _, cand := range pending {
		if err := link.handle.AddICECandidate(cand); err != nil {
			o.logger.Warnw("failed to add buffered candidate", "peer", link.ID, "error", err)
		}
	}
}

func (o *Orchestrator) createLink(ctx context.Context, peer domain.ClientID, initiator bool) (*PeerLink, error) {
	handle, err := o.engine.NewPeerHandle(ctx, o.servers)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer handle for %s: %w", peer, err)
	}

	link := &PeerLink{
		ID:        peer,
		Initiator: initiator,
		handle:    handle,
		state:     media.StateNew,
	}

	o.mu.Lock()
	localMedia := o.localMedia
	tier := domain.Tiers[o.tierIndex]
	o.mu.Unlock()

	if localMedia != nil {
		if link.audioSender, err = handle.AddTrack(localMedia.AudioTrack()); err != nil {
			handle.Close()
			return nil, fmt.Errorf("failed to add audio track for %s: %w", peer, err)
		}
		if link.videoSender, err = handle.AddTrack(localMedia.Video().Track()); err != nil {
			handle.Close()
			return nil, fmt.Errorf("failed to add video track for %s: %w", peer, err)
		}
		if err := handle.SetMaxVideoBitrate(tier.MaxBitrate); err != nil {
			o.logger.Debugw("failed to cap bitrate on new link", "peer", peer, "error", err)
		}
	}

	handle.OnICECandidate(func(cand media.ICECandidate) {
		if err := o.signaling.SendCandidate(peer, cand); err != nil {
			o.logger.Warnw("failed to send candidate", "peer", peer, "error", err)
		}
	})

	handle.OnConnectionStateChange(func(state media.ConnectionState) {
		o.handleLinkState(ctx, peer, state)
	})

	handle.OnRemoteTrack(func(kind string) {
		o.logger.Infow("remote track", "peer", peer, "kind", kind)
	})

	o.mu.Lock()
	o.links[peer] = link
	o.mu.Unlock()

	if initiator {
		offer, err := handle.CreateOffer(ctx, false)
		if err != nil {
			return nil, fmt.Errorf("failed to create offer for %s: %w", peer, err)
		}
		if err := o.signaling.SendOffer(peer, offer); err != nil {
			return nil, fmt.Errorf("failed to send offer to %s: %w", peer, err)
		}
	}

	o.logger.Infow("link created", "peer", peer, "initiator", initiator)
	return link, nil
}

func (o *Orchestrator) handleLinkState(ctx context.Context, peer domain.ClientID, state media.ConnectionState) {
	o.mu.Lock()
	link, exists := o.links[peer]
	if !exists {
		o.mu.Unlock()
		return
	}
	link.state = state

	switch state {
	case media.StateConnected:
		link.restarts = 0
		link.failed = false
		if link.restartTimer != nil {
			link.restartTimer.Stop()
			link.restartTimer = nil
		}
		o.mu.Unlock()
		o.logger.Infow("link connected", "peer", peer)
		o.notifyLinkUp()

	case media.StateFailed:
		o.mu.Unlock()
		o.recoverLink(ctx, peer)

	default:
		o.mu.Unlock()
		o.logger.Debugw("link state changed", "peer", peer, "state", state.String())
	}
}

// recoverLink drives ICE restart from the offering side: one immediate
// attempt, one more after a short delay, then the link is declared failed.
func (o *Orchestrator) recoverLink(ctx context.Context, peer domain.ClientID) {
	o.mu.Lock()
	link, exists := o.links[peer]
	if !exists {
		o.mu.Unlock()
		return
	}

	if !link.Initiator {
		// The offering side owns restarts; we just report if nothing comes.
		o.mu.Unlock()
		o.logger.Warnw("link failed, waiting for peer to restart", "peer", peer)
		return
	}

	if link.restarts >= maxICERestarts {
		link.failed = true
		o.mu.Unlock()
		o.logger.Errorw("link failed permanently", "peer", peer, "restarts", maxICERestarts)
		if o.OnLinkFailed != nil {
			o.OnLinkFailed(peer)
		}
		return
	}

	link.restarts++
	attempt := link.restarts
	o.mu.Unlock()

	if attempt == 1 {
		o.restartLink(ctx, peer, attempt)
		return
	}

	o.mu.Lock()
	link.restartTimer = time.AfterFunc(restartRetryDelay, func() {
		o.restartLink(ctx, peer, attempt)
	})
	o.mu.Unlock()
}

func (o *Orchestrator) restartLink(ctx context.Context, peer domain.ClientID, attempt int) {
	o.mu.Lock()
	link, exists := o.links[peer]
	if !exists {
		o.mu.Unlock()
		return
	}
	link.remoteSet = false
	o.mu.Unlock()

	o.logger.Warnw("restarting ICE", "peer", peer, "attempt", attempt)

	offer, err := link.handle.CreateOffer(ctx, true)
	if err != nil {
		o.logger.Errorw("ICE restart offer failed", "peer", peer, "error", err)
		return
	}
	if err := o.signaling.SendOffer(peer, offer); err != nil {
		o.logger.Errorw("failed to send restart offer", "peer", peer, "error", err)
	}
}

func (o *Orchestrator) closeLink(link *PeerLink) {
	if link.restartTimer != nil {
		link.restartTimer.Stop()
	}
	if err := link.handle.Close(); err != nil {
		o.logger.Debugw("error closing link", "peer", link.ID, "error", err)
	}
}

// ApplyTier retargets local capture and every link's bitrate cap to one rung
// of the quality ladder.
func (o *Orchestrator) ApplyTier(index int) {
	index = domain.ClampTierIndex(index)
	tier := domain.Tiers[index]

	o.mu.Lock()
	o.tierIndex = index
	localMedia := o.localMedia
	links := make([]*PeerLink, 0, len(o.links))
	for _, link := range o.links {
		links = append(links, link)
	}
	o.mu.Unlock()

	if localMedia != nil && localMedia.Video() != nil {
		err := localMedia.Video().ApplyConstraints(media.VideoConstraints{
			Width:     tier.Width,
			Height:    tier.Height,
			Framerate: float64(tier.Framerate),
		})
		if err != nil {
			o.logger.Warnw("failed to apply capture constraints", "tier", tier.Label, "error", err)
		}
	}

	for _, link := range links {
		if err := link.handle.SetMaxVideoBitrate(tier.MaxBitrate); err != nil {
			o.logger.Debugw("failed to cap link bitrate", "peer", link.ID, "error", err)
		}
	}

	o.logger.Infow("applied quality tier", "tier", tier.Label, "links", len(links))
}

// SwitchCamera swaps the outbound video source on every link without
// renegotiating. If the new device cannot be opened the current one keeps
// streaming.
func (o *Orchestrator) SwitchCamera(ctx context.Context, deviceID string) error {
	o.mu.Lock()
	localMedia := o.localMedia
	tier := domain.Tiers[o.tierIndex]
	o.mu.Unlock()

	if localMedia == nil {
		return domain.ErrMediaUnavailable
	}

	newSource, err := o.engine.AcquireVideo(ctx, deviceID, media.VideoConstraints{
		Width:     tier.Width,
		Height:    tier.Height,
		Framerate: float64(tier.Framerate),
	})
	if err != nil {
		return fmt.Errorf("failed to open camera %q: %w", deviceID, err)
	}

	o.mu.Lock()
	links := make([]*PeerLink, 0, len(o.links))
	for _, link := range o.links {
		links = append(links, link)
	}
	o.mu.Unlock()

	for _, link := range links {
		if link.videoSender == nil {
			continue
		}
		if err := link.videoSender.ReplaceTrack(newSource.Track()); err != nil {
			o.logger.Warnw("failed to replace track", "peer", link.ID, "error", err)
		}
	}

	old := localMedia.Video()
	localMedia.SetVideo(newSource)
	if old != nil {
		old.Stop()
	}

	o.logger.Infow("switched camera", "device", deviceID)
	return nil
}

// Samples returns the latest outbound video reading per link, with the
// instantaneous bitrate derived from the previous reading's byte count.
// Links without stats yet are omitted.
func (o *Orchestrator) Samples() map[domain.ClientID]media.StatsSample {
	o.mu.Lock()
	links := make([]*PeerLink, 0, len(o.links))
	for _, link := range o.links {
		links = append(links, link)
	}
	o.mu.Unlock()

	samples := make(map[domain.ClientID]media.StatsSample, len(links))
	for _, link := range links {
		sample, ok := link.handle.OutboundVideoStats()
		if !ok {
			continue
		}

		o.mu.Lock()
		if link.lastSampleOK {
			elapsed := sample.Timestamp.Sub(link.lastSample.Timestamp).Seconds()
			if elapsed > 0 && sample.BytesSent >= link.lastSample.BytesSent {
				sample.BitrateBps = float64(sample.BytesSent-link.lastSample.BytesSent) * 8 / elapsed
			}
		}
		link.lastSample = sample
		link.lastSampleOK = true
		o.mu.Unlock()

		samples[link.ID] = sample
	}
	return samples
}

// CandidatePairs returns the nominated transport route per link, where one
// has been selected.
func (o *Orchestrator) CandidatePairs() map[domain.ClientID]media.CandidatePair {
	o.mu.Lock()
	links := make([]*PeerLink, 0, len(o.links))
	for _, link := range o.links {
		links = append(links, link)
	}
	o.mu.Unlock()

	pairs := make(map[domain.ClientID]media.CandidatePair, len(links))
	for _, link := range links {
		if pair, ok := link.handle.SelectedCandidatePair(); ok {
			pairs[link.ID] = pair
		}
	}
	return pairs
}

// OnRosterChange registers a callback for membership changes on this side
// of the mesh.
func (o *Orchestrator) OnRosterChange(fn func()) {
	o.mu.Lock()
	o.rosterListeners = append(o.rosterListeners, fn)
	o.mu.Unlock()
}

// OnLinkUp registers a callback fired whenever a link reaches connected.
func (o *Orchestrator) OnLinkUp(fn func()) {
	o.mu.Lock()
	o.linkUpListeners = append(o.linkUpListeners, fn)
	o.mu.Unlock()
}

func (o *Orchestrator) notifyRosterChange() {
	o.mu.Lock()
	listeners := append([]func(){}, o.rosterListeners...)
	o.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

func (o *Orchestrator) notifyLinkUp() {
	o.mu.Lock()
	listeners := append([]func(){}, o.linkUpListeners...)
	o.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// LinkCount reports the number of live peer links.
func (o *Orchestrator) LinkCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.links)
}
