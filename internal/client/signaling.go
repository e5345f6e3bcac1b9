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
	"roomlink/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SignalingClient maintains the websocket to the gateway. If the transport
// drops it redials with backoff and re-joins the last room; the server hands
// out a fresh identity, so peers see the old one leave and the new one join.
type SignalingClient struct {
	url      string
	retryCfg retry.Config
	logger   *zap.SugaredLogger

	conn    *websocket.Conn
	writeMu sync.Mutex

	events chan signal.Message

	mu       sync.Mutex
	lastRoom string
	closed   bool
}

func NewSignalingClient(url string, logger *zap.Logger) *SignalingClient {
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = 5
	retryCfg.MaxDelay = 10 * time.Second

	return &SignalingClient{
		url:      url,
		retryCfg: retryCfg,
		logger:   logger.Sugar(),
		events:   make(chan signal.Message, 16),
	}
}

func (c *SignalingClient) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(ctx)
	return nil
}

func (c *SignalingClient) dial(ctx context.Context) (*websocket.Conn, error) {
	return retry.RetryWithResult(ctx, c.retryCfg, func() (*websocket.Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to dial %s: %w", c.url, err)
		}
		return conn, nil
	})
}

// Events delivers every server-to-client message in arrival order. The
// channel closes when the client is closed for good.
func (c *SignalingClient) Events() <-chan signal.Message {
	return c.events
}

func (c *SignalingClient) readLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		conn := c.conn
		closed := c.closed
		c.mu.Unlock()

		if closed || conn == nil {
			close(c.events)
			return
		}

		var msg signal.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if c.isClosed() {
				close(c.events)
				return
			}

			c.logger.Warnw("signaling connection lost, reconnecting", "error", err)
			if err := c.reconnect(ctx); err != nil {
				c.logger.Errorw("signaling reconnect failed", "error", err)
				close(c.events)
				return
			}
			continue
		}

		c.events <- msg
	}
}

func (c *SignalingClient) reconnect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	room := c.lastRoom
	c.mu.Unlock()

	c.logger.Infow("signaling reconnected", "rejoin_room", room)

	if room != "" {
		return c.send(signal.NewMessage(signal.TypeJoinRoom, signal.JoinRoomPayload{RoomID: room}))
	}
	return nil
}

func (c *SignalingClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *SignalingClient) send(msg signal.Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (c *SignalingClient) JoinRoom(roomID string) error {
	c.mu.Lock()
	c.lastRoom = roomID
	c.mu.Unlock()

	return c.send(signal.NewMessage(signal.TypeJoinRoom, signal.JoinRoomPayload{RoomID: roomID}))
}

func (c *SignalingClient) LeaveRoom() error {
	c.mu.Lock()
	c.lastRoom = ""
	c.mu.Unlock()

	return c.send(signal.NewMessage(signal.TypeLeaveRoom, nil))
}

func (c *SignalingClient) SendOffer(target domain.ClientID, desc media.SessionDescription) error {
	return c.sendSignal(signal.TypeOffer, target, desc, nil)
}

func (c *SignalingClient) SendAnswer(target domain.ClientID, desc media.SessionDescription) error {
	return c.sendSignal(signal.TypeAnswer, target, desc, nil)
}

func (c *SignalingClient) SendCandidate(target domain.ClientID, cand media.ICECandidate) error {
	return c.sendSignal(signal.TypeICECandidate, target, nil, &cand)
}

func (c *SignalingClient) sendSignal(msgType string, target domain.ClientID, desc interface{}, cand *media.ICECandidate) error {
	payload := signal.SignalPayload{Target: target}

	if desc != nil {
		raw, err := json.Marshal(desc)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", msgType, err)
		}
		payload.SDP = raw
	}
	if cand != nil {
		raw, err := json.Marshal(cand)
		if err != nil {
			return fmt.Errorf("failed to marshal candidate: %w", err)
		}
		payload.Candidate = raw
	}

	return c.send(signal.NewMessage(msgType, payload))
}

func (c *SignalingClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return conn.Close()
}
