package signal

import (
	"encoding/json"

	"roomlink/internal/core/domain"
)

// Message types exchanged over the signaling socket. Client-to-server and
// server-to-client share the same envelope.
const (
	TypeJoinRoom     = "join-room"
	TypeLeaveRoom    = "leave-room"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"

	TypeRoomJoined        = "room-joined"
	TypeParticipantJoined = "participant-joined"
	TypeParticipantLeft   = "participant-left"
	TypeRoomFull          = "room-full"
	TypeError             = "error"
)

// Message is the signaling envelope. Payload stays raw so SDP blobs and ICE
// candidates pass through the gateway untouched.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

// SignalPayload carries offers, answers and ICE candidates. The gateway only
// reads Target and stamps Sender; SDP and Candidate are relayed verbatim.
type SignalPayload struct {
	Target    domain.ClientID `json:"target,omitempty"`
	Sender    domain.ClientID `json:"sender,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type RoomJoinedPayload struct {
	Participants []domain.ClientID `json:"participants"`
}

type ParticipantPayload struct {
	SocketID domain.ClientID `json:"socketId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// NewMessage wraps a payload struct into the envelope. Marshal failures are
// programmer errors on known payload types, so they panic.
func NewMessage(msgType string, payload interface{}) Message {
	if payload == nil {
		return Message{Type: msgType}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return Message{Type: msgType, Payload: raw}
}
