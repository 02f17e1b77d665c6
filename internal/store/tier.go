// Package store implements the three-layer session store: an in-process
// edge cache, a shared Redis cache, and the durable Postgres tier, fronted
// by a coordinator that enforces read-through and invalidate-on-write
// discipline.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/commercetrack/attribution/internal/models"
)

var (
	// ErrNotFound means the record is definitively absent in the consulted
	// tier. A timeout or transport failure is never mapped to ErrNotFound.
	ErrNotFound = errors.New("session not found")

	// ErrStoreUnavailable means the durable tier could not serve the call.
	// The operation failed; callers may retry with backoff.
	ErrStoreUnavailable = errors.New("durable store unavailable")

	// ErrVersionConflict means a compare-and-set write lost a race. The
	// caller should re-read and decide from current state, not retry blindly.
	ErrVersionConflict = errors.New("session version conflict")

	// ErrLinkageNotFound means no cart linkage exists for the session.
	ErrLinkageNotFound = errors.New("cart linkage not found")

	// ErrCartAlreadyClaimed means the cart is linked to a different session.
	// The condition is permanent; retrying cannot succeed.
	ErrCartAlreadyClaimed = errors.New("cart already linked to another session")
)

// Tier is one cache layer holding session records by token. Implementations
// must return ErrNotFound for a definitive miss and a distinct error for
// unavailability so the coordinator never fabricates a fresh session where
// one already existed.
type Tier interface {
	Get(ctx context.Context, token string) (*models.Session, error)
	Set(ctx context.Context, session *models.Session) error
	Invalidate(ctx context.Context, token string) error
	Name() string
}

// Durable is the authoritative session store. It has no TTL and is the only
// tier consulted for attribution correctness. All mutations happen here;
// faster tiers are invalidated, never updated in place.
type Durable interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, token string) (*models.Session, error)
	// UpdateSessionCAS persists the session if its stored version still
	// equals expectedVersion, bumping Version on success. Returns
	// ErrVersionConflict when another writer got there first.
	UpdateSessionCAS(ctx context.Context, session *models.Session, expectedVersion int64) error
	// CreateLinkage inserts the linkage if the session has none yet and
	// reports whether this call won the first write.
	CreateLinkage(ctx context.Context, linkage *models.CartLinkage) (won bool, err error)
	GetLinkageBySession(ctx context.Context, token string) (*models.CartLinkage, error)
	ListSessionsByPage(ctx context.Context, pageID string, start, end time.Time) ([]models.Session, error)
	// ListExpirable returns ACTIVE sessions whose last activity predates
	// cutoff, oldest first, capped at limit.
	ListExpirable(ctx context.Context, cutoff time.Time, limit int) ([]models.Session, error)
}
