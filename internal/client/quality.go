package client

import (
	"context"
	"sync"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/media"

	"go.uber.org/zap"
)

// linkSampler is the orchestrator surface the controller drives: read one
// sample per link and retarget everything to a ladder rung.
type linkSampler interface {
	Samples() map[domain.ClientID]media.StatsSample
	ApplyTier(index int)
}

// QualityConfig tunes the adaptation loop.
type QualityConfig struct {
	SampleInterval time.Duration
	// DownRatio is the fraction of the tier's target frame rate below which
	// a sample counts against the current tier.
	DownRatio float64
	// UpRatio is the fraction at or above which a sample counts toward
	// stepping back up.
	UpRatio    float64
	DownStreak int
	UpStreak   int
}

func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		SampleInterval: 2 * time.Second,
		DownRatio:      0.6,
		UpRatio:        0.85,
		DownStreak:     3,
		UpStreak:       8,
	}
}

// QualityController walks the shared quality ladder based on the worst link.
// The slowest link dictates the tier: stepping down quickly protects a
// struggling peer, stepping up is deliberately slow.
type QualityController struct {
	sampler linkSampler
	cfg     QualityConfig
	logger  *zap.SugaredLogger

	mu         sync.Mutex
	tierIndex  int
	lowStreak  int
	highStreak int

	done chan struct{}
	once sync.Once
}

func NewQualityController(sampler linkSampler, cfg QualityConfig, logger *zap.Logger) *QualityController {
	return &QualityController{
		sampler: sampler,
		cfg:     cfg,
		logger:  logger.Sugar(),
		done:    make(chan struct{}),
	}
}

func (q *QualityController) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(q.cfg.SampleInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-q.done:
				return
			case <-ticker.C:
				q.sample()
			}
		}
	}()
}

func (q *QualityController) Stop() {
	q.once.Do(func() { close(q.done) })
}

// sample takes one reading and advances the streak counters. With no peers
// the controller idles without touching state.
func (q *QualityController) sample() {
	samples := q.sampler.Samples()
	if len(samples) == 0 {
		return
	}

	minFPS := -1.0
	minBitrate := -1.0
	for _, s := range samples {
		if minFPS < 0 || s.FramesPerSecond < minFPS {
			minFPS = s.FramesPerSecond
		}
		if minBitrate < 0 || s.BitrateBps < minBitrate {
			minBitrate = s.BitrateBps
		}
	}
	q.logger.Debugw("quality sample", "links", len(samples), "min_fps", minFPS, "min_bitrate_bps", minBitrate)

	q.mu.Lock()
	target := float64(domain.Tiers[q.tierIndex].Framerate)
	ratio := minFPS / target

	switch {
	case ratio < q.cfg.DownRatio:
		q.lowStreak++
		q.highStreak = 0
		if q.lowStreak >= q.cfg.DownStreak {
			q.stepLocked(1, minFPS)
		}

	case ratio >= q.cfg.UpRatio:
		q.highStreak++
		q.lowStreak = 0
		if q.highStreak >= q.cfg.UpStreak {
			q.stepLocked(-1, minFPS)
		}

	default:
		// Neutral reading: both streaks restart.
		q.lowStreak = 0
		q.highStreak = 0
	}
	q.mu.Unlock()
}

// stepLocked moves one rung in either direction, clamped to the ladder.
// Streaks reset even when clamped so a saturated reading does not re-fire
// every interval.
func (q *QualityController) stepLocked(delta int, minFPS float64) {
	q.lowStreak = 0
	q.highStreak = 0

	next := domain.ClampTierIndex(q.tierIndex + delta)
	if next == q.tierIndex {
		return
	}

	q.tierIndex = next
	tier := domain.Tiers[next]
	q.logger.Infow("quality tier changed", "tier", tier.Label, "min_fps", minFPS)

	// Apply outside the sampler's own mutex domain; ApplyTier takes the
	// orchestrator lock, not ours.
	q.sampler.ApplyTier(next)
}

// OnRosterChange resets adaptation for the new mesh shape and re-applies the
// current tier so fresh links start at the right constraints.
func (q *QualityController) OnRosterChange() {
	q.mu.Lock()
	q.lowStreak = 0
	q.highStreak = 0
	index := q.tierIndex
	q.mu.Unlock()

	q.sampler.ApplyTier(index)
}

func (q *QualityController) TierIndex() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tierIndex
}

func (q *QualityController) Tier() domain.QualityTier {
	return domain.Tiers[q.TierIndex()]
}
