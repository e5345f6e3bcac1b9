package domain

import "time"

// RoomCode is a 4-digit numeric room code.
type RoomCode string

// ClientID identifies one signaling connection. A new transport session
// always gets a new identity.
type ClientID string

// MaxParticipants caps the size of a room. The mesh is full (every pair
// connected), so this bounds per-client fan-out.
const MaxParticipants = 4

// Room holds the participants currently bound to a code.
type Room struct {
	Code         RoomCode   `json:"code"`
	Participants []ClientID `json:"participants"`
	CreatedAt    time.Time  `json:"created_at"`
	// EmptySince marks when the room last became (or was created) empty.
	// Zero while occupied.
	EmptySince time.Time `json:"empty_since,omitempty"`
}

func NewRoom(code RoomCode, now time.Time) *Room {
	return &Room{
		Code:       code,
		CreatedAt:  now,
		EmptySince: now,
	}
}

func (r *Room) IsFull() bool {
	return len(r.Participants) >= MaxParticipants
}

func (r *Room) IsEmpty() bool {
	return len(r.Participants) == 0
}

func (r *Room) Has(id ClientID) bool {
	for _, p := range r.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// Add inserts the participant. The caller checks capacity first.
func (r *Room) Add(id ClientID) {
	if r.Has(id) {
		return
	}
	r.Participants = append(r.Participants, id)
	r.EmptySince = time.Time{}
}

// Remove deletes the participant and stamps EmptySince if the room drained.
func (r *Room) Remove(id ClientID, now time.Time) {
	for i, p := range r.Participants {
		if p == id {
			r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
			break
		}
	}
	if len(r.Participants) == 0 {
		r.EmptySince = now
	}
}

// Others returns the participant list excluding the given identity.
func (r *Room) Others(id ClientID) []ClientID {
	others := make([]ClientID, 0, len(r.Participants))
	for _, p := range r.Participants {
		if p != id {
			others = append(others, p)
		}
	}
	return others
}
