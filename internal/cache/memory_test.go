package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfline/bookpricer/internal/model"
)

func testPricing(isbn string) *model.PricingData {
	return &model.PricingData{ISBN: isbn, AveragePrice: 12.34, TotalSales: 5}
}

func newTestMemory(t *testing.T) (*Memory, *time.Time) {
	t.Helper()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	m := NewMemory(16)
	m.nowFunc = func() time.Time { return now }
	return m, &now
}

func TestMemory_SetAndGet(t *testing.T) {
	m, _ := newTestMemory(t)

	m.Set("isbn-1", testPricing("isbn-1"))
	got := m.Get("isbn-1")
	require.NotNil(t, got)
	assert.Equal(t, "isbn-1", got.ISBN)
}

func TestMemory_Miss(t *testing.T) {
	m, _ := newTestMemory(t)
	assert.Nil(t, m.Get("nope"))
}

func TestMemory_ExpirationBoundary(t *testing.T) {
	m, now := newTestMemory(t)
	m.Set("isbn-1", testPricing("isbn-1"))

	// Cold entry: 24h TTL. 1ms before expiry -> hit.
	*now = now.Add(coldTTL - time.Millisecond)
	assert.NotNil(t, m.Get("isbn-1"))

	// 1ms past expiry -> miss, entry evicted.
	m2, now2 := newTestMemory(t)
	m2.Set("isbn-1", testPricing("isbn-1"))
	*now2 = now2.Add(coldTTL + time.Millisecond)
	assert.Nil(t, m2.Get("isbn-1"))
	assert.Equal(t, 0, m2.Len())
}

func TestMemory_AdaptiveTTL(t *testing.T) {
	m, _ := newTestMemory(t)

	// No accesses: cold.
	assert.Equal(t, coldTTL, m.TTL("quiet"))

	// 3 lookups within the window: warm.
	for i := 0; i < warmAccessThreshold; i++ {
		m.Get("busy")
	}
	assert.Equal(t, warmTTL, m.TTL("busy"))

	// 10 lookups: hot.
	for i := 0; i < hotAccessThreshold; i++ {
		m.Get("hot")
	}
	assert.Equal(t, hotTTL, m.TTL("hot"))
}

func TestMemory_AccessWindowPruning(t *testing.T) {
	m, now := newTestMemory(t)

	for i := 0; i < hotAccessThreshold; i++ {
		m.Get("isbn-1")
	}
	assert.Equal(t, hotTTL, m.TTL("isbn-1"))

	// A day later the burst no longer counts.
	*now = now.Add(25 * time.Hour)
	assert.Equal(t, coldTTL, m.TTL("isbn-1"))
}

func TestMemory_HotEntryGetsShortExpiry(t *testing.T) {
	m, now := newTestMemory(t)

	for i := 0; i < hotAccessThreshold; i++ {
		m.Get("isbn-1")
	}
	m.Set("isbn-1", testPricing("isbn-1"))

	// Alive just before the hot TTL.
	*now = now.Add(hotTTL - time.Second)
	assert.NotNil(t, m.Get("isbn-1"))

	// Gone just after.
	*now = now.Add(2 * time.Second)
	assert.Nil(t, m.Get("isbn-1"))
}

func TestMemory_SetReplacesWholesale(t *testing.T) {
	m, _ := newTestMemory(t)

	first := testPricing("isbn-1")
	first.AveragePrice = 1.00
	m.Set("isbn-1", first)

	second := testPricing("isbn-1")
	second.AveragePrice = 2.00
	m.Set("isbn-1", second)

	got := m.Get("isbn-1")
	require.NotNil(t, got)
	assert.Equal(t, 2.00, got.AveragePrice)
	assert.Equal(t, 1, m.Len())
}

func TestMemory_BoundedSize(t *testing.T) {
	m, _ := newTestMemory(t)
	for i := 0; i < 100; i++ {
		isbn := fmt.Sprintf("isbn-%03d", i)
		m.Set(isbn, testPricing(isbn))
	}
	assert.LessOrEqual(t, m.Len(), 16)
}

func TestMemory_Purge(t *testing.T) {
	m, _ := newTestMemory(t)
	m.Set("isbn-1", testPricing("isbn-1"))
	m.Purge()
	assert.Equal(t, 0, m.Len())
	assert.Nil(t, m.Get("isbn-1"))
}
