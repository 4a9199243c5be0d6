package app

import (
	"context"
	"time"

	"github.com/dkeye/rendezvous/internal/core"
	"github.com/dkeye/rendezvous/internal/metrics"
	"github.com/rs/zerolog/log"
)

const DefaultSweepInterval = time.Hour

// Sweeper periodically purges sessions whose identities have all been idle
// for longer than the store TTL.
type Sweeper struct {
	store    *Store
	interval time.Duration
	now      core.Clock
	metrics  *metrics.Metrics
}

func NewSweeper(store *Store, interval time.Duration, now core.Clock, m *metrics.Metrics) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{store: store, interval: interval, now: now, metrics: m}
}

// Run sweeps every interval until ctx is cancelled.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	log.Info().Str("module", "app.sweeper").Dur("interval", sw.interval).Dur("ttl", sw.store.TTL()).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.sweeper").Msg("sweeper stopped")
			return
		case <-ticker.C:
			sw.Sweep(sw.now())
		}
	}
}

// Sweep runs one pass at now and returns the number of purged sessions.
func (sw *Sweeper) Sweep(now time.Time) int {
	purged := 0
	for _, s := range sw.store.list() {
		if sw.sweepOne(s, now) {
			purged++
		}
	}
	if purged > 0 {
		sw.metrics.Add(metrics.EventSessionsPurged, uint64(purged))
		log.Info().Str("module", "app.sweeper").Int("purged", purged).Int("remaining", sw.store.Len()).Msg("sweep finished")
	}
	return purged
}

func (sw *Sweeper) sweepOne(s *Session, now time.Time) (purged bool) {
	defer func() {
		if rec := recover(); rec != nil {
			sw.metrics.Inc(metrics.EventSweepPanics)
			log.Error().Str("module", "app.sweeper").Str("session", string(s.ID())).Interface("recover", rec).Msg("panic while sweeping session")
			purged = false
		}
	}()
	if !sw.store.purgeIfStale(s, now) {
		return false
	}
	log.Info().Str("module", "app.sweeper").Str("session", string(s.ID())).Msg("purged session")
	return true
}
