package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercetrack/attribution/internal/models"
	"github.com/commercetrack/attribution/internal/store"
	"github.com/commercetrack/attribution/internal/testhelpers"
)

// setupTestDB connects to a local PostgreSQL instance for integration tests.
// Set ATTRIBUTION_TEST_DB to customize the connection string. Tests are
// skipped in short mode and when no database is reachable.
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	connStr := os.Getenv("ATTRIBUTION_TEST_DB")
	if connStr == "" {
		connStr = "host=localhost port=5432 user=postgres password=postgres dbname=attribution_test sslmode=disable"
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Skipf("Skipping test: could not connect to test database: %v", err)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		t.Skipf("Skipping test: could not ping test database: %v", err)
	}

	logger := testhelpers.NewTestLogger()
	if err := testhelpers.RunMigrations(ctx, db, logger); err != nil {
		db.Close()
		t.Skipf("Skipping test: could not run migrations: %v", err)
	}

	cleanup := func() {
		ctx := context.Background()
		_, _ = db.ExecContext(ctx, "TRUNCATE TABLE cart_linkages, sessions CASCADE")
		db.Close()
	}

	return db, cleanup
}

func integrationSession(token string) *models.Session {
	campaign := "spring-sale"
	return &models.Session{
		Token:  token,
		PageID: "page-integration",
		SourceAttributes: models.SourceAttributes{
			SourceType: models.SourceLandingPage,
			Campaign:   &campaign,
		},
		State: models.StateActive,
	}
}

func TestSessionRepository_Lifecycle_Integration(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := testhelpers.NewTestLogger()
	repo := NewSessionRepository(db, logger)
	ctx := context.Background()

	session := integrationSession("integration-token-1")
	require.NoError(t, repo.CreateSession(ctx, session))
	assert.Equal(t, int64(1), session.Version)

	got, err := repo.GetSession(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.Token, got.Token)
	assert.Equal(t, models.StateActive, got.State)
	assert.Equal(t, models.SourceLandingPage, got.SourceAttributes.SourceType)
	require.NotNil(t, got.SourceAttributes.Campaign)
	assert.Equal(t, "spring-sale", *got.SourceAttributes.Campaign)

	_, err = repo.GetSession(ctx, "no-such-token")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Convert through CAS, then verify a stale writer loses.
	stale := *got
	now := time.Now().UTC()
	orderID := "order-9"
	got.State = models.StateConverted
	got.OrderID = &orderID
	got.ConvertedAt = &now
	got.LastActivityAt = now
	require.NoError(t, repo.UpdateSessionCAS(ctx, got, 1))
	assert.Equal(t, int64(2), got.Version)

	stale.State = models.StateExpired
	err = repo.UpdateSessionCAS(ctx, &stale, 1)
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	final, err := repo.GetSession(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, models.StateConverted, final.State)
	assert.Equal(t, int64(2), final.Version)
}

func TestSessionRepository_LinkageFirstWriteWins_Integration(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := testhelpers.NewTestLogger()
	repo := NewSessionRepository(db, logger)
	ctx := context.Background()

	session := integrationSession("integration-token-2")
	require.NoError(t, repo.CreateSession(ctx, session))

	won, err := repo.CreateLinkage(ctx, &models.CartLinkage{
		CartID:       "cart-1",
		SessionToken: session.Token,
		SourceType:   models.SourceLandingPage,
	})
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.CreateLinkage(ctx, &models.CartLinkage{
		CartID:       "cart-2",
		SessionToken: session.Token,
		SourceType:   models.SourceDirect,
	})
	require.NoError(t, err)
	assert.False(t, won, "second linkage must not overwrite the first")

	linkage, err := repo.GetLinkageBySession(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "cart-1", linkage.CartID)
}

func TestSessionRepository_ListExpirable_Integration(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := testhelpers.NewTestLogger()
	repo := NewSessionRepository(db, logger)
	ctx := context.Background()

	idle := integrationSession("integration-token-idle")
	require.NoError(t, repo.CreateSession(ctx, idle))
	_, err := db.ExecContext(ctx,
		"UPDATE sessions SET last_activity_at = $1 WHERE token = $2",
		time.Now().UTC().Add(-48*time.Hour), idle.Token,
	)
	require.NoError(t, err)

	fresh := integrationSession("integration-token-fresh")
	require.NoError(t, repo.CreateSession(ctx, fresh))

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	expirable, err := repo.ListExpirable(ctx, cutoff, 100)
	require.NoError(t, err)

	tokens := make([]string, 0, len(expirable))
	for _, s := range expirable {
		tokens = append(tokens, s.Token)
	}
	assert.Contains(t, tokens, idle.Token)
	assert.NotContains(t, tokens, fresh.Token)
}
