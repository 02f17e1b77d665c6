package session

import (
	"context"
	"time"

	"github.com/commercetrack/attribution/internal/logger"
)

// sweepBatchSize caps how many idle sessions one sweep pass expires.
const sweepBatchSize = 500

// Sweeper periodically expires sessions idle past the inactivity horizon so
// funnel reporting does not depend on a resume request ever arriving for
// them.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	log      logger.Logger
}

// NewSweeper creates a sweeper driving the manager's expiry path.
func NewSweeper(manager *Manager, interval time.Duration, log logger.Logger) *Sweeper {
	return &Sweeper{
		manager:  manager,
		interval: interval,
		log:      log,
	}
}

// Run sweeps on the configured interval until ctx is cancelled. One pass
// runs immediately on start.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep expires one batch of idle sessions. Each expiry goes through the
// CAS write path, so a session converted between the list and the write is
// left alone.
func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.manager.horizon)

	sessions, err := s.manager.store.ListExpirable(ctx, cutoff, sweepBatchSize)
	if err != nil {
		s.log.Warn("Expiry sweep list failed", logger.Error(err))
		return
	}

	expired := 0
	for i := range sessions {
		if err := s.manager.expire(ctx, &sessions[i]); err != nil {
			s.log.Warn("Expiry sweep write failed",
				logger.String("token", sessions[i].Token),
				logger.Error(err),
			)
			continue
		}
		expired++
	}

	if expired > 0 {
		s.log.Info("Expiry sweep completed", logger.Int("expired", expired))
	}
}
