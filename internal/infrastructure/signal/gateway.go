package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/internal/infrastructure/monitoring"
	"roomlink/pkg/tracing"
	"roomlink/pkg/validation"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// session is one signaling connection. Identity is assigned server-side at
// upgrade time, so a reconnect is always a new participant.
type session struct {
	id   domain.ClientID
	conn *websocket.Conn

	// writeMu serializes writes; gorilla connections support one writer.
	writeMu      sync.Mutex
	writeTimeout time.Duration

	// room is the code this session is currently admitted to, or "".
	// Guarded by the owning Gateway's mu.
	room domain.RoomCode
}

func (s *session) send(msg Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteJSON(msg)
}

func (s *session) ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

// Gateway terminates signaling websockets and relays negotiation traffic
// between members of the same room. It never inspects SDP or candidates.
type Gateway struct {
	rooms   ports.RoomService
	metrics *monitoring.Collector

	sessions map[domain.ClientID]*session
	mu       sync.RWMutex

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration

	logger *zap.SugaredLogger
}

func NewGateway(rooms ports.RoomService, metrics *monitoring.Collector, logger *zap.Logger) *Gateway {
	return &Gateway{
		rooms:        rooms,
		metrics:      metrics,
		sessions:     make(map[domain.ClientID]*session),
		pingInterval: 30 * time.Second,
		pongTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		logger:       logger.Sugar(),
	}
}

// SetPingInterval sets ping interval for signaling connections
func (g *Gateway) SetPingInterval(interval time.Duration) {
	g.pingInterval = interval
}

// SetPongTimeout sets pong timeout for signaling connections
func (g *Gateway) SetPongTimeout(timeout time.Duration) {
	g.pongTimeout = timeout
}

// SetWriteTimeout sets the per-write deadline
func (g *Gateway) SetWriteTimeout(timeout time.Duration) {
	g.writeTimeout = timeout
}

func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sess := &session{
		id:           domain.ClientID(uuid.NewString()),
		conn:         conn,
		writeTimeout: g.writeTimeout,
	}

	g.mu.Lock()
	g.sessions[sess.id] = sess
	g.mu.Unlock()

	g.metrics.ConnectionAccepted()
	g.logger.Infow("client connected", "client_id", sess.id, "remote", r.RemoteAddr)

	conn.SetReadDeadline(time.Now().Add(g.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(g.pongTimeout))
		return nil
	})

	pingTicker := time.NewTicker(g.pingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan Message, 10)
	errorChan := make(chan error, 1)

	go func() {
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(g.pongTimeout))
			messageChan <- msg
		}
	}()

	for {
		select {
		case msg := <-messageChan:
			if err := g.handleMessage(r.Context(), sess, msg); err != nil {
				g.logger.Infow("error handling message", "client_id", sess.id, "type", msg.Type, "error", err)
				g.sendError(sess, err.Error())
			}

		case <-pingTicker.C:
			if err := sess.ping(); err != nil {
				g.logger.Infow("error sending ping", "client_id", sess.id, "error", err)
				goto cleanup
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				g.logger.Infow("error reading message", "client_id", sess.id, "error", err)
			}
			goto cleanup
		}
	}

cleanup:
	g.mu.Lock()
	delete(g.sessions, sess.id)
	g.mu.Unlock()

	// A dropped transport counts as leaving; the room side is identical to an
	// explicit leave-room.
	if err := g.leaveRoom(context.Background(), sess); err != nil {
		g.logger.Infow("error leaving room on disconnect", "client_id", sess.id, "error", err)
	}

	g.logger.Infow("client disconnected", "client_id", sess.id)
}

func (g *Gateway) handleMessage(ctx context.Context, sess *session, msg Message) error {
	if msg.Type == "" {
		return fmt.Errorf("message type is required")
	}

	ctx, span := tracing.TraceSignalMessage(ctx, msg.Type, string(sess.id))
	defer span.End()

	switch msg.Type {
	case TypeJoinRoom:
		return g.handleJoinRoom(ctx, sess, msg)
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return g.relaySignal(ctx, sess, msg)
	case TypeLeaveRoom:
		return g.leaveRoom(ctx, sess)
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

func (g *Gateway) handleJoinRoom(ctx context.Context, sess *session, msg Message) error {
	var payload JoinRoomPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid join-room payload: %w", err)
	}

	code, ok := validation.ExtractRoomCode(payload.RoomID)
	if !ok {
		return fmt.Errorf("no 4-digit room code in %q", payload.RoomID)
	}
	roomCode := domain.RoomCode(code)

	// Joining while already in a room implicitly leaves the old one first.
	if err := g.leaveRoom(ctx, sess); err != nil {
		g.logger.Warnw("failed to leave previous room", "client_id", sess.id, "error", err)
	}

	if _, err := g.rooms.EnsureRoom(ctx, roomCode); err != nil {
		return fmt.Errorf("failed to ensure room %s: %w", roomCode, err)
	}

	if err := g.rooms.Admit(ctx, roomCode, sess.id); err != nil {
		if errors.Is(err, domain.ErrRoomFull) {
			g.metrics.RoomFullRejected()
			g.logger.Infow("room full, rejecting join", "client_id", sess.id, "room", roomCode)
			return sess.send(NewMessage(TypeRoomFull, nil))
		}
		return fmt.Errorf("failed to join room %s: %w", roomCode, err)
	}

	g.mu.Lock()
	sess.room = roomCode
	g.mu.Unlock()

	room, err := g.rooms.GetRoom(ctx, roomCode)
	if err != nil {
		return fmt.Errorf("failed to load room %s after join: %w", roomCode, err)
	}
	others := room.Others(sess.id)

	g.metrics.ParticipantJoined()
	g.logger.Infow("client joined room", "client_id", sess.id, "room", roomCode, "peers", len(others))

	// The joiner gets the existing roster; everyone else learns about the
	// joiner. The joiner side initiates all offers, so ordering between the
	// two notifications does not matter across connections.
	if err := sess.send(NewMessage(TypeRoomJoined, RoomJoinedPayload{Participants: others})); err != nil {
		return err
	}

	joined := NewMessage(TypeParticipantJoined, ParticipantPayload{SocketID: sess.id})
	for _, peer := range others {
		if err := g.sendTo(peer, joined); err != nil {
			g.logger.Infow("failed to notify peer of join", "peer", peer, "error", err)
		}
	}

	return nil
}

// relaySignal forwards an offer, answer or ICE candidate to its target,
// replacing any client-supplied sender with the authenticated identity.
func (g *Gateway) relaySignal(ctx context.Context, sess *session, msg Message) error {
	var payload SignalPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid %s payload: %w", msg.Type, err)
	}

	if payload.Target == "" {
		return fmt.Errorf("%s requires a target", msg.Type)
	}

	// Only bound sessions may signal; an unjoined connection has no peers.
	g.mu.RLock()
	bound := sess.room != ""
	g.mu.RUnlock()
	if !bound {
		return fmt.Errorf("cannot relay %s: %w", msg.Type, domain.ErrNotInRoom)
	}

	target := payload.Target
	payload.Sender = sess.id
	payload.Target = ""

	g.metrics.MessageRelayed(msg.Type)
	g.logger.Debugw("relaying signal", "type", msg.Type, "from", sess.id, "to", target)

	if err := g.sendTo(target, NewMessage(msg.Type, payload)); err != nil {
		return fmt.Errorf("failed to relay %s to %s: %w", msg.Type, target, err)
	}
	return nil
}

// leaveRoom detaches the session from its room, if any, and notifies the
// remaining members. Safe to call for sessions that never joined.
func (g *Gateway) leaveRoom(ctx context.Context, sess *session) error {
	g.mu.Lock()
	roomCode := sess.room
	sess.room = ""
	g.mu.Unlock()

	if roomCode == "" {
		return nil
	}

	if err := g.rooms.Remove(ctx, roomCode, sess.id); err != nil {
		return fmt.Errorf("failed to remove from room %s: %w", roomCode, err)
	}

	g.metrics.ParticipantLeft()
	g.logger.Infow("client left room", "client_id", sess.id, "room", roomCode)

	room, err := g.rooms.GetRoom(ctx, roomCode)
	if err != nil {
		// Room may already be gone; nobody left to notify.
		return nil
	}

	left := NewMessage(TypeParticipantLeft, ParticipantPayload{SocketID: sess.id})
	for _, peer := range room.Participants {
		if err := g.sendTo(peer, left); err != nil {
			g.logger.Infow("failed to notify peer of leave", "peer", peer, "error", err)
		}
	}

	return nil
}

func (g *Gateway) sendTo(id domain.ClientID, msg Message) error {
	g.mu.RLock()
	sess, exists := g.sessions[id]
	g.mu.RUnlock()

	if !exists {
		return fmt.Errorf("client %s not connected", id)
	}
	return sess.send(msg)
}

func (g *Gateway) sendError(sess *session, message string) {
	if err := sess.send(NewMessage(TypeError, ErrorPayload{Message: message})); err != nil {
		g.logger.Debugw("failed to send error message", "client_id", sess.id, "error", err)
	}
}

// ConnectionCount reports the number of live signaling sessions.
func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}
