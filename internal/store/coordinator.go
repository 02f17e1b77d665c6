package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/commercetrack/attribution/internal/logger"
	"github.com/commercetrack/attribution/internal/models"
	"github.com/commercetrack/attribution/internal/telemetry"
)

// Coordinator presents a single logical session store while fanning out to
// the edge, shared, and durable tiers.
//
// Read path: edge, then shared, then durable, back-filling faster tiers on
// the way out. Write path: durable synchronously, then invalidate (never
// update) the faster tiers so they repopulate lazily from truth on the next
// read. Unavailability of a faster tier degrades latency, never correctness;
// unavailability of the durable tier fails the call.
type Coordinator struct {
	fast    []Tier // ordered fastest first
	durable Durable
	log     logger.Logger
	metrics *telemetry.Metrics
}

// NewCoordinator builds a coordinator over the given tiers. fast holds the
// cache layers ordered fastest first and may be empty; durable is required.
func NewCoordinator(fast []Tier, durable Durable, log logger.Logger, metrics *telemetry.Metrics) *Coordinator {
	return &Coordinator{
		fast:    fast,
		durable: durable,
		log:     log,
		metrics: metrics,
	}
}

// GetSession reads a session through the tiers. Returns ErrNotFound only
// when the durable tier definitively reports absence; a durable failure maps
// to ErrStoreUnavailable so a timeout is never mistaken for a missing
// session.
func (c *Coordinator) GetSession(ctx context.Context, tok string) (*models.Session, error) {
	for i, tier := range c.fast {
		session, err := tier.Get(ctx, tok)
		if err == nil {
			c.metrics.TierHits.WithLabelValues(tier.Name()).Inc()
			c.backfill(ctx, c.fast[:i], session)
			return session, nil
		}
		if errors.Is(err, ErrNotFound) {
			c.metrics.TierMisses.WithLabelValues(tier.Name()).Inc()
			continue
		}
		// Tier is unavailable: degrade to the next tier, keep correctness.
		c.degraded(tier, "get", err)
	}

	session, err := c.durable.GetSession(ctx, tok)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.metrics.TierMisses.WithLabelValues("durable").Inc()
			return nil, ErrNotFound
		}
		c.metrics.DurableFailures.Inc()
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	c.metrics.TierHits.WithLabelValues("durable").Inc()
	c.backfill(ctx, c.fast, session)
	return session, nil
}

// CreateSession writes a new session to the durable tier and invalidates the
// faster tiers.
func (c *Coordinator) CreateSession(ctx context.Context, session *models.Session) error {
	if err := c.durable.CreateSession(ctx, session); err != nil {
		c.metrics.DurableFailures.Inc()
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	c.invalidate(ctx, session.Token)
	return nil
}

// UpdateSessionCAS persists a session mutation if the stored version still
// matches expectedVersion, then invalidates the faster tiers. A lost race
// surfaces as ErrVersionConflict; any other durable failure as
// ErrStoreUnavailable.
func (c *Coordinator) UpdateSessionCAS(ctx context.Context, session *models.Session, expectedVersion int64) error {
	err := c.durable.UpdateSessionCAS(ctx, session, expectedVersion)
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			c.metrics.VersionConflicts.Inc()
			// The durable row moved on; local caches of the old value must go.
			c.invalidate(ctx, session.Token)
			return ErrVersionConflict
		}
		c.metrics.DurableFailures.Inc()
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	c.invalidate(ctx, session.Token)
	return nil
}

// CreateLinkage writes a cart linkage to the durable tier. Linkages are
// immutable and read rarely, so they bypass the cache tiers entirely. A cart
// claimed by another session is a permanent condition, never reclassified as
// a retriable outage.
func (c *Coordinator) CreateLinkage(ctx context.Context, linkage *models.CartLinkage) (bool, error) {
	won, err := c.durable.CreateLinkage(ctx, linkage)
	if err != nil {
		if errors.Is(err, ErrCartAlreadyClaimed) {
			return false, err
		}
		c.metrics.DurableFailures.Inc()
		return false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return won, nil
}

// GetLinkageBySession reads the linkage for a session from the durable tier.
func (c *Coordinator) GetLinkageBySession(ctx context.Context, tok string) (*models.CartLinkage, error) {
	linkage, err := c.durable.GetLinkageBySession(ctx, tok)
	if err != nil {
		if errors.Is(err, ErrLinkageNotFound) {
			return nil, ErrLinkageNotFound
		}
		c.metrics.DurableFailures.Inc()
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return linkage, nil
}

// ListSessionsByPage reads committed sessions for a page within a window.
// Aggregation consults the durable tier only: cache tiers are never a source
// of truth for attribution correctness.
func (c *Coordinator) ListSessionsByPage(ctx context.Context, pageID string, start, end time.Time) ([]models.Session, error) {
	sessions, err := c.durable.ListSessionsByPage(ctx, pageID, start, end)
	if err != nil {
		c.metrics.DurableFailures.Inc()
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return sessions, nil
}

// ListExpirable reads idle ACTIVE sessions for the expiry sweeper. Durable
// tier only; the sweeper expires each one through UpdateSessionCAS so cache
// invalidation happens on the normal write path.
func (c *Coordinator) ListExpirable(ctx context.Context, cutoff time.Time, limit int) ([]models.Session, error) {
	sessions, err := c.durable.ListExpirable(ctx, cutoff, limit)
	if err != nil {
		c.metrics.DurableFailures.Inc()
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return sessions, nil
}

// backfill repopulates faster tiers after a slower-tier hit. Failures only
// cost future latency.
func (c *Coordinator) backfill(ctx context.Context, tiers []Tier, session *models.Session) {
	for _, tier := range tiers {
		if err := tier.Set(ctx, session); err != nil {
			c.degraded(tier, "backfill", err)
		}
	}
}

// invalidate drops the token from every faster tier after a durable write.
// An unreachable tier is logged as degraded; its entry still expires on TTL.
func (c *Coordinator) invalidate(ctx context.Context, tok string) {
	for _, tier := range c.fast {
		if err := tier.Invalidate(ctx, tok); err != nil {
			c.degraded(tier, "invalidate", err)
		}
	}
}

func (c *Coordinator) degraded(tier Tier, op string, err error) {
	c.metrics.TierDegraded.WithLabelValues(tier.Name()).Inc()
	c.log.Warn("Store tier degraded",
		logger.String("tier", tier.Name()),
		logger.String("op", op),
		logger.Error(err),
	)
}
