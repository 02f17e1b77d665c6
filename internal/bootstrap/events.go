package bootstrap

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/commercetrack/attribution/internal/config"
	"github.com/commercetrack/attribution/internal/events"
	"github.com/commercetrack/attribution/internal/logger"
)

const eventsPingTimeout = 5 * time.Second

// SetupEventPublisher creates the optional lifecycle event publisher. The
// shared tier's Redis connection is reused when available; otherwise a
// dedicated client is dialed. Returns nil when events are disabled or Redis
// is unreachable, which downgrades publishing to a no-op.
func SetupEventPublisher(cfg *config.Config, tiers *CacheTiers, log logger.Logger) *events.Publisher {
	if !cfg.Events.Enabled {
		return nil
	}

	var client *redis.Client
	if tiers.Shared != nil {
		client = tiers.Shared.Client()
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Shared.Address,
			Password: cfg.Cache.Shared.Password,
			DB:       cfg.Cache.Shared.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), eventsPingTimeout)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("Redis not available, events disabled",
				logger.Error(err),
			)
			client.Close()
			return nil
		}
	}

	log.Info("Event publisher initialized",
		logger.String("stream", cfg.Events.Stream),
	)
	return events.NewPublisher(client, cfg.Events.Stream, log)
}
