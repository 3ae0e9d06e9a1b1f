package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfline/bookpricer/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testPricingData(isbn string) *model.PricingData {
	return &model.PricingData{
		ISBN:            isbn,
		AveragePrice:    12.34,
		Confidence:      model.ConfidenceMedium,
		ConfidenceScore: 50,
		TotalSales:      7,
		LastUpdated:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSQLiteSetAndGetCachedPricing(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetCachedPricing(ctx, "9780134190440", testPricingData("9780134190440"), time.Hour))

	got, err := s.GetCachedPricing(ctx, "9780134190440")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "9780134190440", got.ISBN)
	assert.Equal(t, 12.34, got.AveragePrice)
	assert.Equal(t, model.ConfidenceMedium, got.Confidence)
	assert.Equal(t, 7, got.TotalSales)
}

func TestSQLiteGetCachedPricingMiss(t *testing.T) {
	s := newTestSQLiteStore(t)

	got, err := s.GetCachedPricing(context.Background(), "0000000000")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteExpiredEntryNotReturned(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetCachedPricing(ctx, "9780134190440", testPricingData("9780134190440"), -time.Minute))

	got, err := s.GetCachedPricing(ctx, "9780134190440")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStaleReadIgnoresExpiry(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetCachedPricing(ctx, "9780134190440", testPricingData("9780134190440"), -time.Minute))

	got, err := s.GetStalePricing(ctx, "9780134190440")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 12.34, got.AveragePrice)
}

func TestSQLiteSetOverwritesExisting(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	first := testPricingData("9780134190440")
	require.NoError(t, s.SetCachedPricing(ctx, "9780134190440", first, time.Hour))
	require.NoError(t, s.TouchPricingAccess(ctx, "9780134190440"))

	second := testPricingData("9780134190440")
	second.AveragePrice = 99.99
	second.TotalSales = 30
	require.NoError(t, s.SetCachedPricing(ctx, "9780134190440", second, time.Hour))

	got, err := s.GetCachedPricing(ctx, "9780134190440")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 99.99, got.AveragePrice)
	assert.Equal(t, 30, got.TotalSales)

	// overwrite resets access tracking
	var count int
	row := s.db.QueryRow(`SELECT access_count FROM pricing_cache WHERE isbn = ?`, "9780134190440")
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 0, count)
}

func TestSQLiteTouchPricingAccess(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetCachedPricing(ctx, "9780134190440", testPricingData("9780134190440"), time.Hour))
	require.NoError(t, s.TouchPricingAccess(ctx, "9780134190440"))
	require.NoError(t, s.TouchPricingAccess(ctx, "9780134190440"))

	var count int
	row := s.db.QueryRow(`SELECT access_count FROM pricing_cache WHERE isbn = ?`, "9780134190440")
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 2, count)
}

func TestSQLiteDeleteExpiredPricing(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetCachedPricing(ctx, "1111111111", testPricingData("1111111111"), -time.Minute))
	require.NoError(t, s.SetCachedPricing(ctx, "2222222222", testPricingData("2222222222"), -time.Minute))
	require.NoError(t, s.SetCachedPricing(ctx, "3333333333", testPricingData("3333333333"), time.Hour))

	n, err := s.DeleteExpiredPricing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.GetCachedPricing(ctx, "3333333333")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestSQLiteGetUserSettings(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.db.Exec(
		`INSERT INTO user_settings (user_id, pricing_cache_days, pricing_cache_enabled) VALUES (?, ?, ?)`,
		"user-1", 30, 1,
	)
	require.NoError(t, err)

	got, err := s.GetUserSettings(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 30, got.PricingCacheDays)
	assert.True(t, got.PricingCacheEnabled)

	missing, err := s.GetUserSettings(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteBooks(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.db.Exec(
		`INSERT INTO books (id, user_id, isbn, title, purchase_price, estimated_price) VALUES (?, ?, ?, ?, ?, ?)`,
		"book-1", "user-1", "9780134190440", "The Go Programming Language", 5.0, 0.0,
	)
	require.NoError(t, err)

	b, err := s.GetBook(ctx, "book-1")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "user-1", b.UserID)
	assert.Equal(t, "9780134190440", b.ISBN)
	assert.Equal(t, "The Go Programming Language", b.Title)
	assert.Equal(t, 5.0, b.PurchasePrice)

	require.NoError(t, s.UpdateBookEstimatedPrice(ctx, "book-1", 17.5))
	b, err = s.GetBook(ctx, "book-1")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, 17.5, b.EstimatedPrice)
}

func TestSQLiteGetBookMiss(t *testing.T) {
	s := newTestSQLiteStore(t)

	b, err := s.GetBook(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestSQLiteUpdateBookEstimatedPriceNotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	err := s.UpdateBookEstimatedPrice(context.Background(), "missing", 10.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "book not found")
}
