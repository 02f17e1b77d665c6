// Package analytics derives funnel metrics from committed session and
// linkage state. Snapshots are recomputable at any time and are never a
// source of truth.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/commercetrack/attribution/internal/collab"
	"github.com/commercetrack/attribution/internal/logger"
	"github.com/commercetrack/attribution/internal/models"
	"github.com/commercetrack/attribution/internal/store"
	"github.com/commercetrack/attribution/internal/telemetry"
)

// Store is the read surface the aggregator needs. Reads go to the durable
// tier only; cache tiers are never consulted for funnel truth.
type Store interface {
	ListSessionsByPage(ctx context.Context, pageID string, start, end time.Time) ([]models.Session, error)
	GetLinkageBySession(ctx context.Context, tok string) (*models.CartLinkage, error)
}

// Aggregator computes funnel snapshots for a page over a time window.
type Aggregator struct {
	store   Store
	carts   collab.CartService
	metrics *telemetry.Metrics
	log     logger.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(st Store, carts collab.CartService, metrics *telemetry.Metrics, log logger.Logger) *Aggregator {
	return &Aggregator{
		store:   st,
		carts:   carts,
		metrics: metrics,
		log:     log,
	}
}

// ComputeFunnel classifies every session created for the page within
// [start, end) into exactly one bucket: viewed-only, cart-linked,
// checkout-started, or converted. Funnel order is monotonic; a session that
// reached checkout without a linkage record is counted as an anomaly, never
// silently reclassified. The session record is authoritative for
// conversion: a converted session counts even when the order collaborator
// cannot see the order yet.
func (a *Aggregator) ComputeFunnel(ctx context.Context, pageID string, start, end time.Time) (*models.FunnelSnapshot, error) {
	sessions, err := a.store.ListSessionsByPage(ctx, pageID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list sessions for funnel: %w", err)
	}

	snapshot := &models.FunnelSnapshot{
		PageID:      pageID,
		WindowStart: start,
		WindowEnd:   end,
	}

	for i := range sessions {
		a.classify(ctx, &sessions[i], snapshot)
	}

	a.metrics.FunnelComputations.Inc()
	if snapshot.Anomalies > 0 {
		a.metrics.FunnelAnomalies.Add(float64(snapshot.Anomalies))
		a.log.Warn("Funnel window contains ordering anomalies",
			logger.String("page_id", pageID),
			logger.Int("anomalies", snapshot.Anomalies),
		)
	}

	return snapshot, nil
}

func (a *Aggregator) classify(ctx context.Context, session *models.Session, snapshot *models.FunnelSnapshot) {
	if session.State == models.StateConverted || session.ConvertedAt != nil {
		snapshot.Converted++
		return
	}

	if session.CartID == nil {
		snapshot.Viewed++
		return
	}

	checkoutStarted := a.checkoutStartedAt(ctx, *session.CartID)
	if checkoutStarted == nil {
		snapshot.CartLinked++
		return
	}

	// Checkout reached: the funnel order requires a linkage record to
	// exist. Its absence is an external inconsistency.
	_, err := a.store.GetLinkageBySession(ctx, session.Token)
	switch {
	case err == nil:
		snapshot.CheckoutStarted++
	case errors.Is(err, store.ErrLinkageNotFound):
		snapshot.Anomalies++
		a.log.Warn("Checkout started without a cart linkage",
			logger.String("token", session.Token),
			logger.String("cart_id", *session.CartID),
		)
	default:
		// Linkage unreadable: count conservatively as cart-linked rather
		// than inventing an anomaly out of a transient store failure.
		snapshot.CartLinked++
		a.log.Warn("Linkage lookup failed during funnel computation",
			logger.String("token", session.Token),
			logger.Error(err),
		)
	}
}

// checkoutStartedAt asks the cart collaborator when checkout began. Partial
// data from the collaborator degrades the snapshot, not the call.
func (a *Aggregator) checkoutStartedAt(ctx context.Context, cartID string) *time.Time {
	ts, err := a.carts.GetCheckoutStartedAt(ctx, cartID)
	if err != nil {
		if !errors.Is(err, collab.ErrCartNotFound) {
			a.log.Warn("Cart collaborator lookup failed",
				logger.String("cart_id", cartID),
				logger.Error(err),
			)
		}
		return nil
	}
	return ts
}
