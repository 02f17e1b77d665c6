package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercetrack/attribution/internal/models"
	"github.com/commercetrack/attribution/internal/testhelpers"
)

func newTestEdgeTier(t *testing.T, ttl time.Duration) *EdgeTier {
	t.Helper()

	tier, err := NewEdgeTier(EdgeConfig{TTL: ttl}, testhelpers.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { tier.Close() })
	return tier
}

func edgeSession(tok string) *models.Session {
	campaign := "fall_sale"
	return &models.Session{
		Token:  tok,
		PageID: "page-1",
		State:  models.StateActive,
		SourceAttributes: models.SourceAttributes{
			SourceType: models.SourceLandingPage,
			Campaign:   &campaign,
		},
		Version: 1,
	}
}

func TestEdgeTier_SetGet(t *testing.T) {
	tier := newTestEdgeTier(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, tier.Set(ctx, edgeSession("tok-abc")))

	got, err := tier.Get(ctx, "tok-abc")
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", got.Token)
	assert.Equal(t, models.SourceLandingPage, got.SourceAttributes.SourceType)
	require.NotNil(t, got.SourceAttributes.Campaign)
	assert.Equal(t, "fall_sale", *got.SourceAttributes.Campaign)
}

func TestEdgeTier_GetMissing(t *testing.T) {
	tier := newTestEdgeTier(t, time.Minute)

	_, err := tier.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEdgeTier_Invalidate(t *testing.T) {
	tier := newTestEdgeTier(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, tier.Set(ctx, edgeSession("tok-abc")))
	require.NoError(t, tier.Invalidate(ctx, "tok-abc"))

	_, err := tier.Get(ctx, "tok-abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEdgeTier_InvalidateMissingIsNoError(t *testing.T) {
	tier := newTestEdgeTier(t, time.Minute)

	assert.NoError(t, tier.Invalidate(context.Background(), "absent"))
}

func TestEdgeTier_EntriesExpire(t *testing.T) {
	tier := newTestEdgeTier(t, 50*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, tier.Set(ctx, edgeSession("tok-abc")))

	time.Sleep(120 * time.Millisecond)

	_, err := tier.Get(ctx, "tok-abc")
	assert.ErrorIs(t, err, ErrNotFound)
}
