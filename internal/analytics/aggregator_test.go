package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercetrack/attribution/internal/collab"
	"github.com/commercetrack/attribution/internal/models"
	"github.com/commercetrack/attribution/internal/store"
	"github.com/commercetrack/attribution/internal/telemetry"
	"github.com/commercetrack/attribution/internal/testhelpers"
)

type fakeStore struct {
	sessions []models.Session
	linkages map[string]models.CartLinkage
	listErr  error
}

func (f *fakeStore) ListSessionsByPage(_ context.Context, _ string, _, _ time.Time) ([]models.Session, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.sessions, nil
}

func (f *fakeStore) GetLinkageBySession(_ context.Context, tok string) (*models.CartLinkage, error) {
	l, ok := f.linkages[tok]
	if !ok {
		return nil, store.ErrLinkageNotFound
	}
	return &l, nil
}

// fakeCarts maps cart IDs to checkout-start timestamps; absent means no
// checkout yet.
type fakeCarts struct {
	checkouts map[string]time.Time
}

func (f *fakeCarts) GetOrCreateCart(_ context.Context, _ string) (*collab.Cart, error) {
	panic("not used in funnel computation")
}

func (f *fakeCarts) GetCheckoutStartedAt(_ context.Context, cartID string) (*time.Time, error) {
	ts, ok := f.checkouts[cartID]
	if !ok {
		return nil, nil
	}
	return &ts, nil
}

func newTestAggregator(fs *fakeStore, fc *fakeCarts) *Aggregator {
	return NewAggregator(fs, fc, telemetry.NewUnregistered(), testhelpers.NewTestLogger())
}

func linkedSession(token, cartID string) models.Session {
	id := cartID
	return models.Session{
		Token:  token,
		PageID: "page-1",
		State:  models.StateActive,
		CartID: &id,
		SourceAttributes: models.SourceAttributes{
			SourceType: models.SourceDirect,
		},
	}
}

func TestAggregator_ComputeFunnel(t *testing.T) {
	fs := &fakeStore{linkages: make(map[string]models.CartLinkage)}
	fc := &fakeCarts{checkouts: make(map[string]time.Time)}

	// 100 sessions: 72 viewed-only, 20 cart-linked, 5 checkout-started,
	// 3 converted.
	for i := 0; i < 72; i++ {
		fs.sessions = append(fs.sessions, models.Session{
			Token:  fmt.Sprintf("view-%d", i),
			PageID: "page-1",
			State:  models.StateActive,
		})
	}
	for i := 0; i < 20; i++ {
		s := linkedSession(fmt.Sprintf("cart-tok-%d", i), fmt.Sprintf("cart-%d", i))
		fs.sessions = append(fs.sessions, s)
		fs.linkages[s.Token] = models.CartLinkage{CartID: *s.CartID, SessionToken: s.Token}
	}
	for i := 0; i < 5; i++ {
		s := linkedSession(fmt.Sprintf("checkout-tok-%d", i), fmt.Sprintf("checkout-%d", i))
		fs.sessions = append(fs.sessions, s)
		fs.linkages[s.Token] = models.CartLinkage{CartID: *s.CartID, SessionToken: s.Token}
		fc.checkouts[*s.CartID] = time.Now()
	}
	for i := 0; i < 3; i++ {
		s := linkedSession(fmt.Sprintf("conv-tok-%d", i), fmt.Sprintf("conv-%d", i))
		now := time.Now()
		orderID := fmt.Sprintf("order-%d", i)
		s.State = models.StateConverted
		s.ConvertedAt = &now
		s.OrderID = &orderID
		fs.sessions = append(fs.sessions, s)
		fs.linkages[s.Token] = models.CartLinkage{CartID: *s.CartID, SessionToken: s.Token}
	}

	agg := newTestAggregator(fs, fc)

	snapshot, err := agg.ComputeFunnel(context.Background(), "page-1",
		time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 72, snapshot.Viewed)
	assert.Equal(t, 20, snapshot.CartLinked)
	assert.Equal(t, 5, snapshot.CheckoutStarted)
	assert.Equal(t, 3, snapshot.Converted)
	assert.Equal(t, 0, snapshot.Anomalies)
	assert.Equal(t, 100, snapshot.Total())
}

func TestAggregator_CheckoutWithoutLinkageIsAnomaly(t *testing.T) {
	fs := &fakeStore{linkages: make(map[string]models.CartLinkage)}
	fc := &fakeCarts{checkouts: map[string]time.Time{"cart-odd": time.Now()}}

	// Session claims a cart that reached checkout, but no linkage record
	// exists. Counted as an anomaly, never promoted to checkout-started.
	fs.sessions = append(fs.sessions, linkedSession("tok-odd", "cart-odd"))

	agg := newTestAggregator(fs, fc)

	snapshot, err := agg.ComputeFunnel(context.Background(), "page-1",
		time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, snapshot.Anomalies)
	assert.Equal(t, 0, snapshot.CheckoutStarted)
}

func TestAggregator_ConvertedIsAuthoritativeWithoutOrderVisibility(t *testing.T) {
	now := time.Now()
	orderID := "order-unseen"
	converted := linkedSession("tok-conv", "cart-conv")
	converted.State = models.StateConverted
	converted.ConvertedAt = &now
	converted.OrderID = &orderID

	fs := &fakeStore{
		sessions: []models.Session{converted},
		linkages: map[string]models.CartLinkage{
			"tok-conv": {CartID: "cart-conv", SessionToken: "tok-conv"},
		},
	}
	fc := &fakeCarts{checkouts: make(map[string]time.Time)}

	agg := newTestAggregator(fs, fc)

	snapshot, err := agg.ComputeFunnel(context.Background(), "page-1",
		time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.Converted)
}

func TestAggregator_StoreErrorPropagates(t *testing.T) {
	fs := &fakeStore{listErr: store.ErrStoreUnavailable}
	fc := &fakeCarts{}

	agg := newTestAggregator(fs, fc)

	_, err := agg.ComputeFunnel(context.Background(), "page-1",
		time.Now().Add(-time.Hour), time.Now())
	assert.ErrorIs(t, err, store.ErrStoreUnavailable)
}
