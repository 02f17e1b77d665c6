package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/commercetrack/attribution/internal/logger"
	"github.com/commercetrack/attribution/internal/models"
	"github.com/commercetrack/attribution/internal/store"
)

const (
	uniqueViolationCode   = "23505"
	cartClaimedConstraint = "cart_linkages_cart_id_key"
)

// SessionRepository is the durable tier: the single mutation authority for
// sessions and cart linkages.
type SessionRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewSessionRepository(db *sql.DB, log logger.Logger) *SessionRepository {
	return &SessionRepository{
		db:     db,
		logger: log,
	}
}

const sessionColumns = `token, page_id, visitor_fingerprint, source_attributes,
	       cart_id, state, order_id, created_at, last_activity_at, converted_at, version`

func (r *SessionRepository) CreateSession(ctx context.Context, session *models.Session) error {
	now := time.Now().UTC()
	session.CreatedAt = now
	session.LastActivityAt = now
	session.Version = 1

	query := `
		INSERT INTO sessions (
			token, page_id, visitor_fingerprint, source_attributes,
			cart_id, state, order_id, created_at, last_activity_at, converted_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx,
		query,
		session.Token,
		session.PageID,
		session.VisitorFingerprint,
		session.SourceAttributes,
		session.CartID,
		session.State,
		session.OrderID,
		session.CreatedAt,
		session.LastActivityAt,
		session.ConvertedAt,
		session.Version,
	)

	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

func (r *SessionRepository) GetSession(ctx context.Context, token string) (*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE token = $1
	`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	return session, nil
}

// UpdateSessionCAS writes the mutable session fields if the stored version
// still matches expectedVersion. On success the session's Version is bumped;
// zero rows affected means another writer won and the caller must re-read.
func (r *SessionRepository) UpdateSessionCAS(ctx context.Context, session *models.Session, expectedVersion int64) error {
	query := `
		UPDATE sessions
		SET cart_id = $3, state = $4, order_id = $5, last_activity_at = $6,
		    converted_at = $7, version = version + 1
		WHERE token = $1 AND version = $2
	`

	result, err := r.db.ExecContext(ctx,
		query,
		session.Token,
		expectedVersion,
		session.CartID,
		session.State,
		session.OrderID,
		session.LastActivityAt,
		session.ConvertedAt,
	)

	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return store.ErrVersionConflict
	}

	session.Version = expectedVersion + 1
	return nil
}

// CreateLinkage inserts the session's cart linkage. The primary key on
// session_token makes the insert first-write-wins: ON CONFLICT DO NOTHING
// reports zero rows for the losers, never overwriting the original linkage.
// A cart already linked to a different session trips the cart_id unique
// constraint instead and maps to ErrCartAlreadyClaimed.
func (r *SessionRepository) CreateLinkage(ctx context.Context, linkage *models.CartLinkage) (bool, error) {
	linkage.LinkedAt = time.Now().UTC()

	query := `
		INSERT INTO cart_linkages (cart_id, session_token, source_type, linked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_token) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx,
		query,
		linkage.CartID,
		linkage.SessionToken,
		linkage.SourceType,
		linkage.LinkedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) &&
			string(pqErr.Code) == uniqueViolationCode &&
			pqErr.Constraint == cartClaimedConstraint {
			return false, store.ErrCartAlreadyClaimed
		}
		return false, fmt.Errorf("insert linkage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

func (r *SessionRepository) GetLinkageBySession(ctx context.Context, token string) (*models.CartLinkage, error) {
	query := `
		SELECT cart_id, session_token, source_type, linked_at
		FROM cart_linkages
		WHERE session_token = $1
	`

	var linkage models.CartLinkage
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&linkage.CartID,
		&linkage.SessionToken,
		&linkage.SourceType,
		&linkage.LinkedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrLinkageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query linkage: %w", err)
	}

	return &linkage, nil
}

// ListSessionsByPage returns sessions created for a page inside the window,
// oldest first.
func (r *SessionRepository) ListSessionsByPage(ctx context.Context, pageID string, start, end time.Time) ([]models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE page_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, pageID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// ListExpirable returns tokens and versions of ACTIVE sessions whose last
// activity predates the cutoff. The sweeper expires them through the normal
// CAS path.
func (r *SessionRepository) ListExpirable(ctx context.Context, cutoff time.Time, limit int) ([]models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE state = $1 AND last_activity_at < $2
		ORDER BY last_activity_at
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, models.StateActive, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query expirable sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expirable sessions: %w", err)
	}

	return sessions, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var session models.Session
	if err := row.Scan(
		&session.Token,
		&session.PageID,
		&session.VisitorFingerprint,
		&session.SourceAttributes,
		&session.CartID,
		&session.State,
		&session.OrderID,
		&session.CreatedAt,
		&session.LastActivityAt,
		&session.ConvertedAt,
		&session.Version,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &session, nil
}
