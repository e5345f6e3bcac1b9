package services

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"

	"go.uber.org/zap"
)

// RoomConfig tunes registry lifecycle behavior.
type RoomConfig struct {
	CodeAttempts  int           // bounded collision retries for CreateRoom
	GracePeriod   time.Duration // deferred deletion delay after a room empties
	StaleAfter    time.Duration // sweeper threshold for long-empty rooms
	SweepInterval time.Duration // sweeper period
}

// DefaultRoomConfig returns production defaults.
func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		CodeAttempts:  25,
		GracePeriod:   5 * time.Minute,
		StaleAfter:    time.Hour,
		SweepInterval: 10 * time.Minute,
	}
}

type roomService struct {
	repo ports.RoomRepository
	cfg  RoomConfig

	// mu serializes every registry mutation; operation volume is low
	// enough that a single registry-wide critical section suffices.
	mu       sync.Mutex
	cleanups map[domain.RoomCode]*time.Timer

	cancel context.CancelFunc
	done   chan struct{}

	logger *zap.SugaredLogger
}

func NewRoomService(repo ports.RoomRepository, cfg RoomConfig, logger *zap.SugaredLogger) ports.RoomService {
	return &roomService{
		repo:     repo,
		cfg:      cfg,
		cleanups: make(map[domain.RoomCode]*time.Timer),
		logger:   logger,
	}
}

func randomCode() domain.RoomCode {
	return domain.RoomCode(fmt.Sprintf("%04d", rand.Intn(10000)))
}

func (s *roomService) CreateRoom(ctx context.Context) (domain.RoomCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var code domain.RoomCode
	for attempt := 0; attempt < s.cfg.CodeAttempts; attempt++ {
		code = randomCode()
		_, err := s.repo.GetByCode(ctx, code)
		if err == domain.ErrRoomNotFound {
			room := domain.NewRoom(code, time.Now())
			if err := s.repo.Save(ctx, room); err != nil {
				return "", fmt.Errorf("failed to save room: %w", err)
			}
			s.logger.Infow("room created", "code", code, "attempts", attempt+1)
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check room code: %w", err)
		}
	}

	// Bounded retries exhausted: accept the last drawn code even though it
	// collides. The existing room is reused, which is a documented weak
	// guarantee, not an error.
	s.logger.Warnw("room code collision retries exhausted, accepting drawn code",
		"code", code,
		"attempts", s.cfg.CodeAttempts,
	)
	return code, nil
}

func (s *roomService) GetRoom(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	return s.repo.GetByCode(ctx, code)
}

func (s *roomService) EnsureRoom(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(ctx, code)
}

func (s *roomService) ensureLocked(ctx context.Context, code domain.RoomCode) (*domain.Room, error) {
	room, err := s.repo.GetByCode(ctx, code)
	if err == nil {
		return room, nil
	}
	if err != domain.ErrRoomNotFound {
		return nil, err
	}

	room = domain.NewRoom(code, time.Now())
	if err := s.repo.Save(ctx, room); err != nil {
		return nil, fmt.Errorf("failed to save room: %w", err)
	}
	s.logger.Infow("room created lazily", "code", code)
	return room, nil
}

func (s *roomService) Admit(ctx context.Context, code domain.RoomCode, id domain.ClientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return err
	}

	if room.IsFull() && !room.Has(id) {
		return domain.ErrRoomFull
	}

	room.Add(id)
	if err := s.repo.Save(ctx, room); err != nil {
		return fmt.Errorf("failed to save room: %w", err)
	}

	// A rejoin cancels any pending deferred deletion.
	if timer, ok := s.cleanups[code]; ok {
		timer.Stop()
		delete(s.cleanups, code)
	}

	s.logger.Infow("participant admitted",
		"code", code,
		"client_id", id,
		"participants", len(room.Participants),
	)
	return nil
}

func (s *roomService) Remove(ctx context.Context, code domain.RoomCode, id domain.ClientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return err
	}

	room.Remove(id, time.Now())
	if err := s.repo.Save(ctx, room); err != nil {
		return fmt.Errorf("failed to save room: %w", err)
	}

	s.logger.Infow("participant removed",
		"code", code,
		"client_id", id,
		"participants", len(room.Participants),
	)

	if room.IsEmpty() {
		s.scheduleCleanupLocked(code)
	}
	return nil
}

// scheduleCleanupLocked arms the deferred deletion timer for an emptied room.
// Emptiness is re-checked at fire time so a rejoin in the interim wins.
func (s *roomService) scheduleCleanupLocked(code domain.RoomCode) {
	if timer, ok := s.cleanups[code]; ok {
		timer.Stop()
	}
	s.cleanups[code] = time.AfterFunc(s.cfg.GracePeriod, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.cleanups, code)

		ctx := context.Background()
		room, err := s.repo.GetByCode(ctx, code)
		if err != nil {
			return
		}
		if !room.IsEmpty() {
			return
		}
		if err := s.repo.Delete(ctx, code); err != nil {
			s.logger.Warnw("failed to delete empty room", "code", code, "error", err)
			return
		}
		s.logger.Infow("empty room deleted after grace period", "code", code)
	})
}

func (s *roomService) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

// sweep deletes rooms that stayed empty past the staleness threshold. This
// is a safety net independent of the per-leave deferred cleanup: it also
// catches rooms that were created but never joined.
func (s *roomService) sweep(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms, err := s.repo.ListAll(ctx)
	if err != nil {
		s.logger.Warnw("room sweep failed", "error", err)
		return
	}

	now := time.Now()
	reclaimed := 0
	for _, room := range rooms {
		if !room.IsEmpty() || room.EmptySince.IsZero() {
			continue
		}
		if now.Sub(room.EmptySince) <= s.cfg.StaleAfter {
			continue
		}
		if timer, ok := s.cleanups[room.Code]; ok {
			timer.Stop()
			delete(s.cleanups, room.Code)
		}
		if err := s.repo.Delete(ctx, room.Code); err != nil {
			s.logger.Warnw("failed to reclaim stale room", "code", room.Code, "error", err)
			continue
		}
		reclaimed++
	}

	if reclaimed > 0 {
		s.logger.Infow("stale rooms reclaimed", "count", reclaimed)
	}
}

func (s *roomService) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for code, timer := range s.cleanups {
		timer.Stop()
		delete(s.cleanups, code)
	}
}
