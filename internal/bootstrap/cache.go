package bootstrap

import (
	"github.com/commercetrack/attribution/internal/config"
	"github.com/commercetrack/attribution/internal/logger"
	"github.com/commercetrack/attribution/internal/store"
	"github.com/commercetrack/attribution/internal/telemetry"
)

// CacheTiers holds the optional fast tiers in read order. Either may be nil:
// the coordinator falls through to the durable tier, so a missing cache
// costs latency, never correctness.
type CacheTiers struct {
	Edge   *store.EdgeTier
	Shared *store.SharedTier
}

// Fast returns the enabled tiers, fastest first.
func (t *CacheTiers) Fast() []store.Tier {
	var fast []store.Tier
	if t.Edge != nil {
		fast = append(fast, t.Edge)
	}
	if t.Shared != nil {
		fast = append(fast, t.Shared)
	}
	return fast
}

// Close releases tier resources.
func (t *CacheTiers) Close(log logger.Logger) {
	if t.Edge != nil {
		if err := t.Edge.Close(); err != nil {
			log.Error("Failed to close edge tier", logger.Error(err))
		}
	}
	if t.Shared != nil {
		if err := t.Shared.Close(); err != nil {
			log.Error("Failed to close shared tier", logger.Error(err))
		}
	}
}

// SetupCacheTiers opens the configured fast tiers. A tier that fails to open
// is skipped with a warning and counted as degraded; startup continues.
func SetupCacheTiers(cfg *config.Config, metrics *telemetry.Metrics, log logger.Logger) (*CacheTiers, error) {
	tiers := &CacheTiers{}

	if cfg.Cache.Edge.Enabled {
		edge, err := store.NewEdgeTier(store.EdgeConfig{
			Path: cfg.Cache.Edge.Path,
			TTL:  cfg.Cache.Edge.TTL,
		}, log)
		if err != nil {
			metrics.TierDegraded.WithLabelValues("edge").Inc()
			log.Warn("Edge tier unavailable, continuing without it",
				logger.Error(err),
			)
		} else {
			tiers.Edge = edge
		}
	}

	if cfg.Cache.Shared.Enabled {
		shared, err := store.NewSharedTier(store.SharedConfig{
			Address:  cfg.Cache.Shared.Address,
			Password: cfg.Cache.Shared.Password,
			DB:       cfg.Cache.Shared.DB,
			TTL:      cfg.Cache.Shared.TTL,
		}, log)
		if err != nil {
			metrics.TierDegraded.WithLabelValues("shared").Inc()
			log.Warn("Shared tier unavailable, continuing without it",
				logger.Error(err),
			)
		} else {
			tiers.Shared = shared
		}
	}

	return tiers, nil
}
