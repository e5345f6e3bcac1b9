package ports

import (
	"context"

	"roomlink/internal/core/domain"
)

type RoomRepository interface {
	Save(ctx context.Context, room *domain.Room) error
	GetByCode(ctx context.Context, code domain.RoomCode) (*domain.Room, error)
	Delete(ctx context.Context, code domain.RoomCode) error
	ListAll(ctx context.Context) ([]*domain.Room, error)
}
