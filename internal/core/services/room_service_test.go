package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/internal/infrastructure/repositories/memory"
	"roomlink/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(cfg RoomConfig) (*roomService, ports.RoomRepository) {
	repo := memory.NewMemoryRoomRepository()
	svc := NewRoomService(repo, cfg, logger.NewNop().Sugar()).(*roomService)
	return svc, repo
}

func TestCreateRoomProducesFourDigitCode(t *testing.T) {
	svc, _ := newTestService(DefaultRoomConfig())

	code, err := svc.CreateRoom(context.Background())
	require.NoError(t, err)
	assert.Len(t, string(code), 4)

	room, err := svc.GetRoom(context.Background(), code)
	require.NoError(t, err)
	assert.True(t, room.IsEmpty())
}

func TestCreateRoomAcceptsCollisionAfterBoundedRetries(t *testing.T) {
	cfg := DefaultRoomConfig()
	cfg.CodeAttempts = 3
	svc, repo := newTestService(cfg)

	// Occupy every possible code so each draw collides.
	ctx := context.Background()
	for i := 0; i < 10000; i++ {
		code := domain.RoomCode([]byte{
			byte('0' + i/1000%10),
			byte('0' + i/100%10),
			byte('0' + i/10%10),
			byte('0' + i%10),
		})
		require.NoError(t, repo.Save(ctx, domain.NewRoom(code, time.Now())))
	}

	code, err := svc.CreateRoom(ctx)
	require.NoError(t, err)
	assert.Len(t, string(code), 4)
}

func TestAdmitEnforcesCapacity(t *testing.T) {
	svc, _ := newTestService(DefaultRoomConfig())
	ctx := context.Background()

	code, err := svc.CreateRoom(ctx)
	require.NoError(t, err)

	for _, id := range []domain.ClientID{"a", "b", "c", "d"} {
		require.NoError(t, svc.Admit(ctx, code, id))
	}

	err = svc.Admit(ctx, code, "e")
	assert.ErrorIs(t, err, domain.ErrRoomFull)

	// A member re-admitting is not a capacity violation.
	assert.NoError(t, svc.Admit(ctx, code, "d"))
}

func TestAdmitEnforcesCapacityUnderConcurrentJoins(t *testing.T) {
	svc, _ := newTestService(DefaultRoomConfig())
	ctx := context.Background()

	code, err := svc.CreateRoom(ctx)
	require.NoError(t, err)

	const joiners = 16
	results := make(chan error, joiners)

	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results <- svc.Admit(ctx, code, domain.ClientID(fmt.Sprintf("client-%d", n)))
		}(i)
	}
	wg.Wait()
	close(results)

	admitted, rejected := 0, 0
	for err := range results {
		if err == nil {
			admitted++
			continue
		}
		require.ErrorIs(t, err, domain.ErrRoomFull)
		rejected++
	}
	assert.Equal(t, domain.MaxParticipants, admitted)
	assert.Equal(t, joiners-domain.MaxParticipants, rejected)

	room, err := svc.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Len(t, room.Participants, domain.MaxParticipants)
}

func TestAdmitUnknownRoomFails(t *testing.T) {
	svc, _ := newTestService(DefaultRoomConfig())

	err := svc.Admit(context.Background(), "9999", "a")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestEnsureRoomCreatesLazily(t *testing.T) {
	svc, _ := newTestService(DefaultRoomConfig())
	ctx := context.Background()

	room, err := svc.EnsureRoom(ctx, "4321")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomCode("4321"), room.Code)

	// Second call returns the same room.
	again, err := svc.EnsureRoom(ctx, "4321")
	require.NoError(t, err)
	assert.Equal(t, room.Code, again.Code)
}

func TestEmptyRoomDeletedAfterGracePeriod(t *testing.T) {
	cfg := DefaultRoomConfig()
	cfg.GracePeriod = 50 * time.Millisecond
	svc, _ := newTestService(cfg)
	ctx := context.Background()

	code, err := svc.CreateRoom(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Admit(ctx, code, "a"))
	require.NoError(t, svc.Remove(ctx, code, "a"))

	// Still present inside the grace period.
	_, err = svc.GetRoom(ctx, code)
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := svc.GetRoom(ctx, code)
		return err == domain.ErrRoomNotFound
	}, time.Second, 10*time.Millisecond)
}

func TestRejoinCancelsDeferredDeletion(t *testing.T) {
	cfg := DefaultRoomConfig()
	cfg.GracePeriod = 50 * time.Millisecond
	svc, _ := newTestService(cfg)
	ctx := context.Background()

	code, err := svc.CreateRoom(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Admit(ctx, code, "a"))
	require.NoError(t, svc.Remove(ctx, code, "a"))

	// Rejoin within the grace period keeps the room alive.
	require.NoError(t, svc.Admit(ctx, code, "b"))

	time.Sleep(150 * time.Millisecond)

	room, err := svc.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.True(t, room.Has("b"))
}

func TestSweepReclaimsStaleRooms(t *testing.T) {
	cfg := DefaultRoomConfig()
	cfg.StaleAfter = 10 * time.Millisecond
	svc, repo := newTestService(cfg)
	ctx := context.Background()

	// A room created but never joined, empty since long ago.
	stale := domain.NewRoom("1111", time.Now().Add(-time.Minute))
	require.NoError(t, repo.Save(ctx, stale))

	// An occupied room must survive the sweep.
	occupied := domain.NewRoom("2222", time.Now().Add(-time.Minute))
	occupied.Add("a")
	require.NoError(t, repo.Save(ctx, occupied))

	svc.sweep(ctx)

	_, err := svc.GetRoom(ctx, "1111")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	_, err = svc.GetRoom(ctx, "2222")
	assert.NoError(t, err)
}

func TestStopCancelsPendingCleanups(t *testing.T) {
	cfg := DefaultRoomConfig()
	cfg.GracePeriod = 50 * time.Millisecond
	svc, _ := newTestService(cfg)
	ctx := context.Background()

	svc.Start(ctx)

	code, err := svc.CreateRoom(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Admit(ctx, code, "a"))
	require.NoError(t, svc.Remove(ctx, code, "a"))

	svc.Stop()

	time.Sleep(150 * time.Millisecond)

	// Cancelled timer means the room is still there.
	_, err = svc.GetRoom(ctx, code)
	assert.NoError(t, err)
}
