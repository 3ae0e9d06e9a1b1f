package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfline/bookpricer/internal/model"
	"github.com/shelfline/bookpricer/pkg/marketplace"
)

// fakeStore is an in-memory Store for exercising the façade without a
// database.
type fakeStore struct {
	cached   map[string]*model.PricingData
	stale    map[string]*model.PricingData
	settings map[string]*model.UserSettings
	books    map[string]*model.Book

	setCalls   int
	lastTTL    time.Duration
	touchCalls int
	purged     int
	estimates  map[string]float64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cached:    map[string]*model.PricingData{},
		stale:     map[string]*model.PricingData{},
		settings:  map[string]*model.UserSettings{},
		books:     map[string]*model.Book{},
		estimates: map[string]float64{},
	}
}

func (f *fakeStore) GetCachedPricing(_ context.Context, isbn string) (*model.PricingData, error) {
	return f.cached[isbn], nil
}

func (f *fakeStore) GetStalePricing(_ context.Context, isbn string) (*model.PricingData, error) {
	if pd, ok := f.cached[isbn]; ok {
		return pd, nil
	}
	return f.stale[isbn], nil
}

func (f *fakeStore) SetCachedPricing(_ context.Context, isbn string, data *model.PricingData, ttl time.Duration) error {
	f.setCalls++
	f.lastTTL = ttl
	f.cached[isbn] = data
	return nil
}

func (f *fakeStore) TouchPricingAccess(_ context.Context, _ string) error {
	f.touchCalls++
	return nil
}

func (f *fakeStore) DeleteExpiredPricing(_ context.Context) (int, error) {
	return f.purged, nil
}

func (f *fakeStore) GetUserSettings(_ context.Context, userID string) (*model.UserSettings, error) {
	return f.settings[userID], nil
}

func (f *fakeStore) GetBook(_ context.Context, id string) (*model.Book, error) {
	return f.books[id], nil
}

func (f *fakeStore) UpdateBookEstimatedPrice(_ context.Context, id string, price float64) error {
	f.estimates[id] = price
	return nil
}

func (f *fakeStore) Migrate(_ context.Context) error { return nil }
func (f *fakeStore) Close() error                    { return nil }

// fakeClient is a canned marketplace.Client.
type fakeClient struct {
	items []marketplace.Item
	err   error
	calls int
}

func (c *fakeClient) FindCompletedSales(_ context.Context, _ string) ([]marketplace.Item, error) {
	c.calls++
	return c.items, c.err
}

func soldItems() []marketplace.Item {
	end := time.Now().Add(-48 * time.Hour).UTC().Format("2006-01-02T15:04:05.000Z")
	return []marketplace.Item{
		marketplace.NewItem("10.00", "Good", end),
		marketplace.NewItem("12.00", "Very Good", end),
		marketplace.NewItem("14.00", "Good", end),
	}
}

const testISBN = "9780134190440"

func TestServiceUnconfigured(t *testing.T) {
	svc := NewService(newFakeStore(), nil)

	_, err := svc.GetPricingData(context.Background(), testISBN, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnconfigured))

	snap := svc.Metrics()
	assert.Equal(t, int64(1), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalErrors)
}

func TestServiceFetchesAndWritesThrough(t *testing.T) {
	st := newFakeStore()
	client := &fakeClient{items: soldItems()}
	svc := NewService(st, client)

	got, err := svc.GetPricingData(context.Background(), testISBN, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, testISBN, got.ISBN)
	assert.Equal(t, 12.0, got.AveragePrice)
	assert.Equal(t, 3, got.TotalSales)

	// write-through hits both tiers
	assert.Equal(t, 1, st.setCalls)
	assert.Equal(t, 90*24*time.Hour, st.lastTTL)
	assert.NotNil(t, svc.memory.Get(testISBN))
}

func TestServicePersistentHitSkipsFetchAndPromotes(t *testing.T) {
	st := newFakeStore()
	st.cached[testISBN] = &model.PricingData{ISBN: testISBN, AveragePrice: 9.99}
	client := &fakeClient{items: soldItems()}
	svc := NewService(st, client)

	got, err := svc.GetPricingData(context.Background(), testISBN, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 9.99, got.AveragePrice)
	assert.Equal(t, 0, client.calls)
	assert.Equal(t, 1, st.touchCalls)
	assert.NotNil(t, svc.memory.Get(testISBN))
}

func TestServiceMemoryHitOnSecondCall(t *testing.T) {
	st := newFakeStore()
	client := &fakeClient{items: soldItems()}
	svc := NewService(st, client, WithCacheDefaults(90, false))

	first, err := svc.GetPricingData(context.Background(), testISBN, "")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, 0, st.setCalls)

	second, err := svc.GetPricingData(context.Background(), testISBN, "")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, 1, client.calls, "second lookup must be served from memory")
	assert.Equal(t, first.AveragePrice, second.AveragePrice)
}

func TestServiceNotFound(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st, &fakeClient{})

	got, err := svc.GetPricingData(context.Background(), testISBN, "")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, st.setCalls)
}

func TestServiceRateLimitFallsBackToStale(t *testing.T) {
	st := newFakeStore()
	st.stale[testISBN] = &model.PricingData{ISBN: testISBN, AveragePrice: 7.77}
	client := &fakeClient{err: eris.Wrap(marketplace.ErrRateLimited, "findCompletedSales")}
	svc := NewService(st, client)

	got, err := svc.GetPricingData(context.Background(), testISBN, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 7.77, got.AveragePrice)
	assert.Equal(t, 1, client.calls)
	assert.True(t, svc.backoff.Active())

	// backoff gate skips the next fetch but still serves stale
	got, err = svc.GetPricingData(context.Background(), testISBN, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, client.calls)
}

func TestServiceRateLimitWithoutStaleReturnsNil(t *testing.T) {
	st := newFakeStore()
	client := &fakeClient{err: eris.Wrap(marketplace.ErrRateLimited, "findCompletedSales")}
	svc := NewService(st, client)

	got, err := svc.GetPricingData(context.Background(), testISBN, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestServiceTimeoutSurfacesError(t *testing.T) {
	st := newFakeStore()
	client := &fakeClient{err: eris.Wrap(marketplace.ErrTimeout, "findCompletedSales")}
	svc := NewService(st, client)

	_, err := svc.GetPricingData(context.Background(), testISBN, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, marketplace.ErrTimeout))
}

func TestServiceErrorRateGate(t *testing.T) {
	st := newFakeStore()
	client := &fakeClient{err: eris.New("upstream exploded")}
	svc := NewService(st, client)

	for i := 0; i < 5; i++ {
		_, err := svc.GetPricingData(context.Background(), testISBN, "")
		require.Error(t, err)
	}
	assert.Equal(t, 5, client.calls)

	// sixth request trips the gate: >5 requests and error rate above 80%
	got, err := svc.GetPricingData(context.Background(), testISBN, "")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 5, client.calls, "gated lookup must not reach the remote")
}

func TestServiceUserSettingsControlPersistentTier(t *testing.T) {
	t.Run("custom retention", func(t *testing.T) {
		st := newFakeStore()
		st.settings["user-1"] = &model.UserSettings{UserID: "user-1", PricingCacheDays: 30, PricingCacheEnabled: true}
		svc := NewService(st, &fakeClient{items: soldItems()})

		_, err := svc.GetPricingData(context.Background(), testISBN, "user-1")
		require.NoError(t, err)
		assert.Equal(t, 30*24*time.Hour, st.lastTTL)
	})

	t.Run("cache disabled", func(t *testing.T) {
		st := newFakeStore()
		st.cached[testISBN] = &model.PricingData{ISBN: testISBN, AveragePrice: 9.99}
		st.settings["user-2"] = &model.UserSettings{UserID: "user-2", PricingCacheEnabled: false}
		client := &fakeClient{items: soldItems()}
		svc := NewService(st, client)

		got, err := svc.GetPricingData(context.Background(), testISBN, "user-2")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 1, client.calls, "disabled cache must go straight to fetch")
		assert.Equal(t, 0, st.setCalls)
	})

	t.Run("unknown user falls back to defaults", func(t *testing.T) {
		st := newFakeStore()
		svc := NewService(st, &fakeClient{items: soldItems()})

		_, err := svc.GetPricingData(context.Background(), testISBN, "nobody")
		require.NoError(t, err)
		assert.Equal(t, 90*24*time.Hour, st.lastTTL)
	})
}

func TestServiceRefreshBookPricing(t *testing.T) {
	st := newFakeStore()
	st.books["book-1"] = &model.Book{ID: "book-1", UserID: "user-1", ISBN: testISBN, PurchasePrice: 5.0}
	svc := NewService(st, &fakeClient{items: soldItems()})

	book, data, err := svc.RefreshBookPricing(context.Background(), "book-1")
	require.NoError(t, err)
	require.NotNil(t, book)
	require.NotNil(t, data)

	assert.Equal(t, 12.0, book.EstimatedPrice)
	assert.Equal(t, 12.0, st.estimates["book-1"])
	require.NotNil(t, data.ProfitAnalysis.Estimate)
	assert.InDelta(t, 8.8, data.ProfitAnalysis.Estimate.ExpectedProfit, 0.001)
}

func TestServiceRefreshBookPricingMissingBook(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeClient{items: soldItems()})

	book, data, err := svc.RefreshBookPricing(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, book)
	assert.Nil(t, data)
}

func TestServicePurgeExpired(t *testing.T) {
	st := newFakeStore()
	st.purged = 4
	svc := NewService(st, nil)

	n, err := svc.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestServiceMetricsSnapshot(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st, &fakeClient{items: soldItems()})

	_, err := svc.GetPricingData(context.Background(), testISBN, "")
	require.NoError(t, err)

	snap := svc.Metrics()
	assert.Equal(t, int64(1), snap.TotalRequests)
	assert.Equal(t, int64(0), snap.TotalErrors)
	assert.Equal(t, 0.0, snap.ErrorRate)
	assert.Equal(t, 1, snap.CacheSize)
}
