package client

import (
	"context"
	"sync"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/media"

	"go.uber.org/zap"
)

// pairProber is the orchestrator surface the detector reads: the nominated
// candidate pair per link, where one exists.
type pairProber interface {
	CandidatePairs() map[domain.ClientID]media.CandidatePair
}

// RelayDetector tracks which links run through a TURN relay. The aggregate
// answers "is any of my media relayed", which callers surface as a
// connectivity hint.
type RelayDetector struct {
	source   pairProber
	interval time.Duration
	logger   *zap.SugaredLogger

	mu          sync.Mutex
	relayByLink map[domain.ClientID]bool
	aggregate   bool

	// OnChange, when set, fires with the new aggregate whenever it flips.
	OnChange func(relayed bool)

	done chan struct{}
	once sync.Once
}

func NewRelayDetector(source pairProber, interval time.Duration, logger *zap.Logger) *RelayDetector {
	return &RelayDetector{
		source:      source,
		interval:    interval,
		logger:      logger.Sugar(),
		relayByLink: make(map[domain.ClientID]bool),
		done:        make(chan struct{}),
	}
}

// Start launches the periodic probe. Event-driven probes (link connected,
// roster changed) come on top via Probe.
func (d *RelayDetector) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-d.done:
				return
			case <-ticker.C:
				d.Probe()
			}
		}
	}()
}

func (d *RelayDetector) Stop() {
	d.once.Do(func() { close(d.done) })
}

// Probe re-reads every link's nominated pair and rebuilds the per-link map,
// so links that vanished drop out of the aggregate immediately.
func (d *RelayDetector) Probe() {
	pairs := d.source.CandidatePairs()

	next := make(map[domain.ClientID]bool, len(pairs))
	aggregate := false
	for id, pair := range pairs {
		relayed := pair.UsesRelay()
		next[id] = relayed
		if relayed {
			aggregate = true
		}
	}

	d.mu.Lock()
	changed := aggregate != d.aggregate
	d.relayByLink = next
	d.aggregate = aggregate
	d.mu.Unlock()

	if changed {
		d.logger.Infow("relay status changed", "relayed", aggregate)
		if d.OnChange != nil {
			d.OnChange(aggregate)
		}
	}
}

// IsRelayed reports whether any live link currently runs through a relay.
func (d *RelayDetector) IsRelayed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.aggregate
}

// LinkRelayed reports the per-link verdict, with ok false when the link has
// no nominated pair yet.
func (d *RelayDetector) LinkRelayed(id domain.ClientID) (bool, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	relayed, ok := d.relayByLink[id]
	return relayed, ok
}
