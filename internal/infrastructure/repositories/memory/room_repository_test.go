package memory

import (
	"context"
	"testing"
	"time"

	"roomlink/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndGet(t *testing.T) {
	repo := NewMemoryRoomRepository()
	ctx := context.Background()

	room := domain.NewRoom("1234", time.Now())
	room.Add("a")
	require.NoError(t, repo.Save(ctx, room))

	got, err := repo.GetByCode(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomCode("1234"), got.Code)
	assert.True(t, got.Has("a"))
}

func TestGetUnknownRoom(t *testing.T) {
	repo := NewMemoryRoomRepository()

	_, err := repo.GetByCode(context.Background(), "0000")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestDelete(t *testing.T) {
	repo := NewMemoryRoomRepository()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, domain.NewRoom("1234", time.Now())))
	require.NoError(t, repo.Delete(ctx, "1234"))

	_, err := repo.GetByCode(ctx, "1234")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, "1234"), domain.ErrRoomNotFound)
}

func TestListAll(t *testing.T) {
	repo := NewMemoryRoomRepository()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, domain.NewRoom("1111", time.Now())))
	require.NoError(t, repo.Save(ctx, domain.NewRoom("2222", time.Now())))

	rooms, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 2)
}

// Mutating a returned room must not leak back into the store.
func TestReturnsCopies(t *testing.T) {
	repo := NewMemoryRoomRepository()
	ctx := context.Background()

	room := domain.NewRoom("1234", time.Now())
	room.Add("a")
	require.NoError(t, repo.Save(ctx, room))

	got, err := repo.GetByCode(ctx, "1234")
	require.NoError(t, err)
	got.Add("b")

	fresh, err := repo.GetByCode(ctx, "1234")
	require.NoError(t, err)
	assert.False(t, fresh.Has("b"))

	// The saved snapshot is also detached from the caller's struct.
	room.Add("c")
	fresh, err = repo.GetByCode(ctx, "1234")
	require.NoError(t, err)
	assert.False(t, fresh.Has("c"))
}
