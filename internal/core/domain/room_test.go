package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoomAddRemove(t *testing.T) {
	now := time.Now()
	room := NewRoom("1234", now)

	assert.True(t, room.IsEmpty())
	assert.Equal(t, now, room.EmptySince)

	room.Add("a")
	assert.False(t, room.IsEmpty())
	assert.True(t, room.EmptySince.IsZero())
	assert.True(t, room.Has("a"))

	// Idempotent add
	room.Add("a")
	assert.Len(t, room.Participants, 1)

	later := now.Add(time.Minute)
	room.Remove("a", later)
	assert.True(t, room.IsEmpty())
	assert.Equal(t, later, room.EmptySince)
}

func TestRoomCapacity(t *testing.T) {
	room := NewRoom("1234", time.Now())

	for i := 0; i < MaxParticipants; i++ {
		assert.False(t, room.IsFull())
		room.Add(ClientID(rune('a' + i)))
	}
	assert.True(t, room.IsFull())
}

func TestRoomOthers(t *testing.T) {
	room := NewRoom("1234", time.Now())
	room.Add("a")
	room.Add("b")
	room.Add("c")

	others := room.Others("b")
	assert.ElementsMatch(t, []ClientID{"a", "c"}, others)

	// Unknown member sees everyone
	assert.Len(t, room.Others("z"), 3)
}

func TestClampTierIndex(t *testing.T) {
	assert.Equal(t, 0, ClampTierIndex(-1))
	assert.Equal(t, 0, ClampTierIndex(0))
	assert.Equal(t, len(Tiers)-1, ClampTierIndex(len(Tiers)))
	assert.Equal(t, 2, ClampTierIndex(2))
}
