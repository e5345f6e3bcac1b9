package signal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/services"
	"roomlink/internal/infrastructure/repositories/memory"
	"roomlink/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T) (*Gateway, *httptest.Server) {
	t.Helper()

	repo := memory.NewMemoryRoomRepository()
	rooms := services.NewRoomService(repo, services.DefaultRoomConfig(), logger.NewNop().Sugar())
	gateway := NewGateway(rooms, nil, logger.NewNop())

	server := httptest.NewServer(http.HandlerFunc(gateway.HandleWebSocket))
	t.Cleanup(server.Close)

	return gateway, server
}

func dialGateway(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until one of the wanted type arrives; anything
// else is discarded.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) Message {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	conn.SetReadDeadline(deadline)

	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %s", msgType)
		if msg.Type == msgType {
			return msg
		}
	}
}

func joinRoom(t *testing.T, conn *websocket.Conn, roomID string) RoomJoinedPayload {
	t.Helper()

	require.NoError(t, conn.WriteJSON(NewMessage(TypeJoinRoom, JoinRoomPayload{RoomID: roomID})))

	msg := readUntil(t, conn, TypeRoomJoined)
	var payload RoomJoinedPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	return payload
}

func TestSignalBeforeJoinIsRejected(t *testing.T) {
	_, server := newTestGateway(t)

	c1 := dialGateway(t, server)
	joinRoom(t, c1, "1234")

	// A second connection that never joined a room must not be able to
	// signal anyone.
	c2 := dialGateway(t, server)
	sdp, _ := json.Marshal(map[string]string{"type": "offer", "sdp": "v=0\r\n"})
	require.NoError(t, c2.WriteJSON(NewMessage(TypeOffer, SignalPayload{
		Target: "whoever",
		SDP:    sdp,
	})))

	msg := readUntil(t, c2, TypeError)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Contains(t, payload.Message, domain.ErrNotInRoom.Error())
}

func TestJoinAndPeerNotification(t *testing.T) {
	_, server := newTestGateway(t)

	c1 := dialGateway(t, server)
	roster1 := joinRoom(t, c1, "1234")
	assert.Empty(t, roster1.Participants)

	c2 := dialGateway(t, server)
	roster2 := joinRoom(t, c2, "1234")
	require.Len(t, roster2.Participants, 1)
	c1ID := roster2.Participants[0]

	// The first client learns about the second exactly once.
	msg := readUntil(t, c1, TypeParticipantJoined)
	var joined ParticipantPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &joined))
	c2ID := joined.SocketID

	assert.NotEqual(t, c1ID, c2ID)
	assert.NotEmpty(t, c2ID)
}

func TestSignalRelayStampsSender(t *testing.T) {
	_, server := newTestGateway(t)

	c1 := dialGateway(t, server)
	joinRoom(t, c1, "1234")

	c2 := dialGateway(t, server)
	roster2 := joinRoom(t, c2, "1234")
	c1ID := roster2.Participants[0]

	msg := readUntil(t, c1, TypeParticipantJoined)
	var joined ParticipantPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &joined))
	c2ID := joined.SocketID

	// c2 offers to c1, spoofing the sender field; the gateway must
	// overwrite it and pass the SDP through untouched.
	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`)
	require.NoError(t, c2.WriteJSON(NewMessage(TypeOffer, SignalPayload{
		Target: c1ID,
		Sender: "spoofed-identity",
		SDP:    sdp,
	})))

	offerMsg := readUntil(t, c1, TypeOffer)
	var offer SignalPayload
	require.NoError(t, json.Unmarshal(offerMsg.Payload, &offer))

	assert.Equal(t, c2ID, offer.Sender)
	assert.JSONEq(t, string(sdp), string(offer.SDP))

	// Answer flows back the same way.
	require.NoError(t, c1.WriteJSON(NewMessage(TypeAnswer, SignalPayload{
		Target: c2ID,
		SDP:    json.RawMessage(`{"type":"answer","sdp":"v=0\r\n"}`),
	})))

	answerMsg := readUntil(t, c2, TypeAnswer)
	var answer SignalPayload
	require.NoError(t, json.Unmarshal(answerMsg.Payload, &answer))
	assert.Equal(t, c1ID, answer.Sender)
}

func TestRoomFullRejection(t *testing.T) {
	_, server := newTestGateway(t)

	for i := 0; i < domain.MaxParticipants; i++ {
		conn := dialGateway(t, server)
		joinRoom(t, conn, "1234")
	}

	fifth := dialGateway(t, server)
	require.NoError(t, fifth.WriteJSON(NewMessage(TypeJoinRoom, JoinRoomPayload{RoomID: "1234"})))

	msg := readUntil(t, fifth, TypeRoomFull)
	assert.Equal(t, TypeRoomFull, msg.Type)
}

func TestDisconnectNotifiesPeers(t *testing.T) {
	_, server := newTestGateway(t)

	c1 := dialGateway(t, server)
	joinRoom(t, c1, "1234")

	c2 := dialGateway(t, server)
	joinRoom(t, c2, "1234")
	readUntil(t, c1, TypeParticipantJoined)

	require.NoError(t, c2.Close())

	msg := readUntil(t, c1, TypeParticipantLeft)
	var left ParticipantPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &left))
	assert.NotEmpty(t, left.SocketID)
}

func TestExplicitLeaveNotifiesPeers(t *testing.T) {
	gateway, server := newTestGateway(t)

	c1 := dialGateway(t, server)
	joinRoom(t, c1, "1234")

	c2 := dialGateway(t, server)
	joinRoom(t, c2, "1234")
	readUntil(t, c1, TypeParticipantJoined)

	require.NoError(t, c2.WriteJSON(NewMessage(TypeLeaveRoom, nil)))

	readUntil(t, c1, TypeParticipantLeft)

	// The connection itself stays up after leave-room.
	assert.Equal(t, 2, gateway.ConnectionCount())
}

func TestJoinNormalizesPastedLink(t *testing.T) {
	_, server := newTestGateway(t)

	c1 := dialGateway(t, server)
	joinRoom(t, c1, "https://example.com/call/1234?utm=x")

	c2 := dialGateway(t, server)
	roster := joinRoom(t, c2, "room 1234")
	assert.Len(t, roster.Participants, 1)
}

func TestJoinRejectsInputWithoutCode(t *testing.T) {
	_, server := newTestGateway(t)

	conn := dialGateway(t, server)
	require.NoError(t, conn.WriteJSON(NewMessage(TypeJoinRoom, JoinRoomPayload{RoomID: "12345"})))

	msg := readUntil(t, conn, TypeError)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Contains(t, payload.Message, "room code")
}

func TestSwitchingRoomsLeavesOldRoom(t *testing.T) {
	_, server := newTestGateway(t)

	c1 := dialGateway(t, server)
	joinRoom(t, c1, "1111")

	c2 := dialGateway(t, server)
	joinRoom(t, c2, "1111")
	readUntil(t, c1, TypeParticipantJoined)

	// c2 jumps to another room; c1 must see it leave.
	roster := joinRoom(t, c2, "2222")
	assert.Empty(t, roster.Participants)

	readUntil(t, c1, TypeParticipantLeft)
}
