package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisRoomRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisRoomRepository(client *redis.Client) ports.RoomRepository {
	return &RedisRoomRepository{
		client: client,
		prefix: "roomlink:room:",
	}
}

func (r *RedisRoomRepository) roomKey(code domain.RoomCode) string {
	return r.prefix + string(code)
}

func (r *RedisRoomRepository) indexKey() string {
	return r.prefix + "index"
}

func (r *RedisRoomRepository) Save(ctx context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	if err := r.client.Set(ctx, r.roomKey(room.Code), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set room in Redis: %w", err)
	}

	if err := r.client.SAdd(ctx, r.indexKey(), string(room.Code)).Err(); err != nil {
		return fmt.Errorf("failed to index room: %w", err)
	}
	return nil
}

func (r *RedisRoomRepository) GetByCode(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	data, err := r.client.Get(ctx, r.roomKey(code)).Result()
	if err == redis.Nil {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room from Redis: %w", err)
	}

	var room domain.Room
	if err := json.Unmarshal([]byte(data), &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	return &room, nil
}

func (r *RedisRoomRepository) Delete(ctx context.Context, code domain.RoomCode) error {
	deleted, err := r.client.Del(ctx, r.roomKey(code)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete room from Redis: %w", err)
	}
	if deleted == 0 {
		return domain.ErrRoomNotFound
	}

	if err := r.client.SRem(ctx, r.indexKey(), string(code)).Err(); err != nil {
		return fmt.Errorf("failed to unindex room: %w", err)
	}
	return nil
}

func (r *RedisRoomRepository) ListAll(ctx context.Context) ([]*domain.Room, error) {
	codes, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	rooms := make([]*domain.Room, 0, len(codes))
	for _, code := range codes {
		room, err := r.GetByCode(ctx, domain.RoomCode(code))
		if err == domain.ErrRoomNotFound {
			// Index entry outlived the room key; drop it.
			r.client.SRem(ctx, r.indexKey(), code)
			continue
		}
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}
