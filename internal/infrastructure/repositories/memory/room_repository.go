package memory

import (
	"context"
	"sync"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
)

type MemoryRoomRepository struct {
	rooms map[domain.RoomCode]*domain.Room
	mu    sync.RWMutex
}

func NewMemoryRoomRepository() ports.RoomRepository {
	return &MemoryRoomRepository{
		rooms: make(map[domain.RoomCode]*domain.Room),
	}
}

func (r *MemoryRoomRepository) Save(ctx context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *room
	stored.Participants = append([]domain.ClientID(nil), room.Participants...)
	r.rooms[room.Code] = &stored
	return nil
}

func (r *MemoryRoomRepository) GetByCode(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[code]
	if !exists {
		return nil, domain.ErrRoomNotFound
	}

	copied := *room
	copied.Participants = append([]domain.ClientID(nil), room.Participants...)
	return &copied, nil
}

func (r *MemoryRoomRepository) Delete(ctx context.Context, code domain.RoomCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[code]; !exists {
		return domain.ErrRoomNotFound
	}

	delete(r.rooms, code)
	return nil
}

func (r *MemoryRoomRepository) ListAll(ctx context.Context) ([]*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]*domain.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		copied := *room
		copied.Participants = append([]domain.ClientID(nil), room.Participants...)
		rooms = append(rooms, &copied)
	}
	return rooms, nil
}
