package ports

import (
	"context"

	"roomlink/internal/core/domain"
)

// RoomService is the authoritative room registry. Every mutation funnels
// through it so the admission invariant (≤ 4 participants) holds under
// concurrent joins.
type RoomService interface {
	// CreateRoom draws a fresh 4-digit code. Collision handling is a
	// bounded retry; the last drawn code is accepted regardless once the
	// bound is exhausted (weak uniqueness guarantee).
	CreateRoom(ctx context.Context) (domain.RoomCode, error)
	GetRoom(ctx context.Context, code domain.RoomCode) (*domain.Room, error)
	// EnsureRoom returns the existing room or lazily creates one with that
	// exact code (direct-link joins).
	EnsureRoom(ctx context.Context, code domain.RoomCode) (*domain.Room, error)
	// Admit inserts the participant or returns domain.ErrRoomFull.
	Admit(ctx context.Context, code domain.RoomCode, id domain.ClientID) error
	// Remove deletes the participant; an emptied room is scheduled for
	// deferred deletion after the grace period.
	Remove(ctx context.Context, code domain.RoomCode, id domain.ClientID) error
	// Start launches the background staleness sweeper; Stop cancels it and
	// any pending deferred deletions.
	Start(ctx context.Context)
	Stop()
}
