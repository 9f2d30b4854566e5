package modelstore

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper runs Sweep on a fixed interval in the background.
type Sweeper struct {
	store    *Store
	interval time.Duration
	maxAge   time.Duration
	onSweep  func(SweepStats)
}

// NewSweeper creates a sweeper. onSweep, if set, receives every pass's stats.
func NewSweeper(store *Store, interval, maxAge time.Duration, onSweep func(SweepStats)) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Sweeper{store: store, interval: interval, maxAge: maxAge, onSweep: onSweep}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "modelstore.sweeper"))
	log.Info("starting model sweeper",
		zap.Duration("interval", s.interval),
		zap.Duration("max_age", s.maxAge),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("model sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(log)
		}
	}
}

func (s *Sweeper) sweep(log *zap.Logger) {
	stats, err := s.store.Sweep(s.maxAge)
	if err != nil {
		log.Error("modelstore: sweep failed", zap.Error(err))
		return
	}
	if s.onSweep != nil {
		s.onSweep(stats)
	}
	if stats.Deleted > 0 || stats.Errors > 0 {
		log.Info("modelstore: sweep complete",
			zap.Int("scanned", stats.Scanned),
			zap.Int("deleted", stats.Deleted),
			zap.Int64("freed_bytes", stats.Freed),
			zap.Int("errors", stats.Errors),
		)
	}
}
