package jobs

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultStuckAge is how long an active job may go without a state
	// update before the sweeper declares its worker dead.
	DefaultStuckAge = time.Hour

	// DefaultSweepInterval is how often the sweeper runs.
	DefaultSweepInterval = 10 * time.Minute

	// DefaultSweepBatch caps how many jobs one sweep can fail.
	DefaultSweepBatch = 500
)

// Sweeper periodically fails jobs whose workers died mid-processing, so
// their requesters see an error with a retry hint instead of silence.
type Sweeper struct {
	store    *Store
	age      time.Duration
	interval time.Duration
	batch    int
	log      *slog.Logger
}

// NewSweeper constructs a Sweeper with defaults for zero-valued settings.
func NewSweeper(store *Store, age, interval time.Duration, batch int, logger *slog.Logger) *Sweeper {
	if age <= 0 {
		age = DefaultStuckAge
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if batch <= 0 {
		batch = DefaultSweepBatch
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		age:      age,
		interval: interval,
		batch:    batch,
		log:      logger.With("component", "job-sweeper"),
	}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := s.store.FailStuck(ctx, s.age, s.batch)
			if err != nil {
				s.log.Error("stuck job sweep failed", "error", err)
				continue
			}
			if len(ids) > 0 {
				s.log.Warn("failed stuck jobs", "count", len(ids), "maxAge", s.age)
			}
		}
	}
}
