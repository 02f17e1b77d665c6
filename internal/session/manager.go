// Package session implements the session lifecycle: creation with one-shot
// attribution resolution, resume with inactivity expiry, first-write-wins
// cart linkage, and duplicate-tolerant conversion. All mutations are
// compare-and-set writes against the durable tier version.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/commercetrack/attribution/internal/attribution"
	"github.com/commercetrack/attribution/internal/events"
	"github.com/commercetrack/attribution/internal/logger"
	"github.com/commercetrack/attribution/internal/models"
	"github.com/commercetrack/attribution/internal/store"
	"github.com/commercetrack/attribution/internal/telemetry"
	"github.com/commercetrack/attribution/internal/token"
)

var (
	// ErrSessionNotFound means the token resolves to no session in any tier.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired means the session passed the inactivity horizon.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionAlreadyLinked means the session is linked to a different
	// cart. The original linkage is returned alongside.
	ErrSessionAlreadyLinked = errors.New("session already linked to a different cart")

	// ErrInvalidTransition means the requested state change is not allowed,
	// e.g. converting an expired session.
	ErrInvalidTransition = errors.New("invalid session state transition")
)

// casAttempts bounds informed retries after a lost compare-and-set race.
// Each retry re-reads current state first; a blind retry never happens.
const casAttempts = 3

// Store is the coordinator surface the manager writes through.
type Store interface {
	GetSession(ctx context.Context, tok string) (*models.Session, error)
	CreateSession(ctx context.Context, session *models.Session) error
	UpdateSessionCAS(ctx context.Context, session *models.Session, expectedVersion int64) error
	CreateLinkage(ctx context.Context, linkage *models.CartLinkage) (bool, error)
	GetLinkageBySession(ctx context.Context, tok string) (*models.CartLinkage, error)
	ListExpirable(ctx context.Context, cutoff time.Time, limit int) ([]models.Session, error)
}

// CreateParams carries the request context a new session is resolved from.
// Attribution inputs are only consulted when a new session is actually
// created; a resumed session keeps its original sourceAttributes.
type CreateParams struct {
	PageID             string
	PresentedToken     string
	RawQuery           url.Values
	Referrer           string
	VisitorFingerprint *string
}

// Manager owns session lifecycle semantics on top of the tier coordinator.
type Manager struct {
	store     Store
	issuer    *token.Issuer
	publisher *events.Publisher
	metrics   *telemetry.Metrics
	log       logger.Logger
	horizon   time.Duration
}

// NewManager creates a session manager. publisher may be nil.
func NewManager(
	st Store,
	issuer *token.Issuer,
	publisher *events.Publisher,
	metrics *telemetry.Metrics,
	log logger.Logger,
	horizon time.Duration,
) *Manager {
	return &Manager{
		store:     st,
		issuer:    issuer,
		publisher: publisher,
		metrics:   metrics,
		log:       log,
		horizon:   horizon,
	}
}

// Create starts a session for a page view, or resumes one if the request
// presents a token that still resolves to a live session. The resume path
// makes creation idempotent: replaying the same request never forks a second
// session. Attribution is resolved exactly once, at creation.
func (m *Manager) Create(ctx context.Context, params CreateParams) (*models.Session, error) {
	if params.PresentedToken != "" && token.Valid(params.PresentedToken) {
		existing, err := m.store.GetSession(ctx, params.PresentedToken)
		switch {
		case err == nil:
			if existing.State != models.StateExpired && !existing.ExpiredAt(time.Now().UTC(), m.horizon) {
				m.metrics.SessionsResumed.Inc()
				return existing, nil
			}
			// Expired: fall through and mint a fresh session.
		case errors.Is(err, store.ErrNotFound):
			// Unknown token, mint a fresh session.
		default:
			// The store cannot say whether the session exists. Creating a
			// new one here could fork a live session, so fail instead.
			return nil, err
		}
	}

	tok, err := m.issuer.Issue()
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}

	session := &models.Session{
		Token:              tok,
		PageID:             params.PageID,
		VisitorFingerprint: params.VisitorFingerprint,
		SourceAttributes:   attribution.Resolve(params.RawQuery, params.Referrer),
		State:              models.StateActive,
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	m.metrics.SessionsCreated.Inc()
	m.publisher.PublishAsync(events.SessionEvent{
		EventType:    events.SessionCreated,
		SessionToken: session.Token,
		PageID:       session.PageID,
		SourceType:   session.SourceAttributes.SourceType,
	})

	m.log.Debug("Session created",
		logger.String("page_id", session.PageID),
		logger.String("source_type", string(session.SourceAttributes.SourceType)),
	)

	return session, nil
}

// Resume looks up a session by token and refreshes its activity clock. A
// session idle past the inactivity horizon is transitioned to EXPIRED first
// and reported as ErrSessionExpired; resuming never reanimates it.
func (m *Manager) Resume(ctx context.Context, tok string) (*models.Session, error) {
	session, err := m.getSession(ctx, tok)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	switch {
	case session.State == models.StateExpired:
		return nil, ErrSessionExpired
	case session.State == models.StateActive && session.ExpiredAt(now, m.horizon):
		if err := m.expire(ctx, session); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	case session.State == models.StateActive:
		session.LastActivityAt = now
		if err := m.store.UpdateSessionCAS(ctx, session, session.Version); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				// A concurrent writer advanced the session; its write
				// carries a fresh activity timestamp, so just re-read.
				return m.getSession(ctx, tok)
			}
			return nil, err
		}
	}

	m.metrics.SessionsResumed.Inc()
	return session, nil
}

// LinkCart attaches a cart to the session, first write wins. Re-linking the
// same cart is a no-op returning the existing linkage; a different cart
// returns the original linkage alongside ErrSessionAlreadyLinked. The
// linkage copies the session's sourceType at link time and never changes.
func (m *Manager) LinkCart(ctx context.Context, tok, cartID string) (*models.CartLinkage, error) {
	session, err := m.liveSession(ctx, tok)
	if err != nil {
		return nil, err
	}

	if session.CartID != nil {
		return m.existingLinkage(ctx, tok, cartID)
	}

	linkage := &models.CartLinkage{
		CartID:       cartID,
		SessionToken: tok,
		SourceType:   session.SourceAttributes.SourceType,
		LinkedAt:     time.Now().UTC(),
	}

	won, err := m.store.CreateLinkage(ctx, linkage)
	if err != nil {
		return nil, err
	}
	if !won {
		// Lost the race to a concurrent link.
		return m.existingLinkage(ctx, tok, cartID)
	}

	// Denormalize the cart onto the session row. The linkage row is
	// authoritative; a lost race here only means a concurrent writer
	// touched an unrelated field, so reapply from fresh state.
	if err := m.setCartID(ctx, session, cartID); err != nil {
		return nil, err
	}

	m.metrics.CartsLinked.Inc()
	m.publisher.PublishAsync(events.SessionEvent{
		EventType:    events.CartLinked,
		SessionToken: tok,
		PageID:       session.PageID,
		SourceType:   linkage.SourceType,
		CartID:       &linkage.CartID,
	})

	return linkage, nil
}

// RecordConversion marks the session CONVERTED with the given order.
// Duplicate notifications return the already-converted session without
// error. An EXPIRED session is a hard ErrInvalidTransition: the order
// exists, but it is not attributable through this session.
func (m *Manager) RecordConversion(ctx context.Context, tok, orderID string) (*models.Session, error) {
	session, err := m.getSession(ctx, tok)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		switch session.State {
		case models.StateConverted:
			return session, nil
		case models.StateExpired:
			return nil, ErrInvalidTransition
		}

		now := time.Now().UTC()
		session.State = models.StateConverted
		session.OrderID = &orderID
		session.ConvertedAt = &now
		session.LastActivityAt = now

		err := m.store.UpdateSessionCAS(ctx, session, session.Version)
		if err == nil {
			m.metrics.Conversions.Inc()
			m.publisher.PublishAsync(events.SessionEvent{
				EventType:    events.SessionConverted,
				SessionToken: tok,
				PageID:       session.PageID,
				SourceType:   session.SourceAttributes.SourceType,
				CartID:       session.CartID,
				OrderID:      session.OrderID,
			})
			return session, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return nil, err
		}

		session, err = m.getSession(ctx, tok)
		if err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("record conversion for session: %w", store.ErrVersionConflict)
}

// getSession maps the coordinator's not-found to the manager's sentinel.
func (m *Manager) getSession(ctx context.Context, tok string) (*models.Session, error) {
	session, err := m.store.GetSession(ctx, tok)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// liveSession fetches a session and enforces the inactivity horizon the same
// way Resume does, without refreshing the activity clock.
func (m *Manager) liveSession(ctx context.Context, tok string) (*models.Session, error) {
	session, err := m.getSession(ctx, tok)
	if err != nil {
		return nil, err
	}
	if session.State == models.StateExpired {
		return nil, ErrSessionExpired
	}
	if session.State == models.StateActive && session.ExpiredAt(time.Now().UTC(), m.horizon) {
		if err := m.expire(ctx, session); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	}
	return session, nil
}

// existingLinkage resolves an idempotent re-link against the recorded one.
func (m *Manager) existingLinkage(ctx context.Context, tok, cartID string) (*models.CartLinkage, error) {
	linkage, err := m.store.GetLinkageBySession(ctx, tok)
	if err != nil {
		return nil, err
	}
	if linkage.CartID == cartID {
		return linkage, nil
	}
	return linkage, ErrSessionAlreadyLinked
}

// setCartID writes the cart denormalization onto the session row, re-reading
// and reapplying after a lost race.
func (m *Manager) setCartID(ctx context.Context, session *models.Session, cartID string) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		session.CartID = &cartID
		session.LastActivityAt = time.Now().UTC()

		err := m.store.UpdateSessionCAS(ctx, session, session.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}

		fresh, err := m.store.GetSession(ctx, session.Token)
		if err != nil {
			return err
		}
		if fresh.CartID != nil {
			// Another path already recorded it.
			*session = *fresh
			return nil
		}
		*session = *fresh
	}
	return fmt.Errorf("set cart on session: %w", store.ErrVersionConflict)
}

// expire transitions an idle session to EXPIRED through the normal CAS
// write path so cache tiers are invalidated. Losing the race is fine: the
// winner either expired it too or converted it, and monotonicity holds
// either way.
func (m *Manager) expire(ctx context.Context, session *models.Session) error {
	if !session.CanTransition(models.StateExpired) {
		return nil
	}

	session.State = models.StateExpired

	err := m.store.UpdateSessionCAS(ctx, session, session.Version)
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil
		}
		return err
	}

	m.metrics.SessionsExpired.Inc()
	m.publisher.PublishAsync(events.SessionEvent{
		EventType:    events.SessionExpired,
		SessionToken: session.Token,
		PageID:       session.PageID,
		SourceType:   session.SourceAttributes.SourceType,
	})

	return nil
}
