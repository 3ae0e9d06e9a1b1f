// Package pricing is the façade over the market-pricing engine: it
// orchestrates the two cache tiers, the rate-limit gate, and the remote
// completed-sales fetch, and tracks operational counters.
package pricing

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/shelfline/bookpricer/internal/analyze"
	"github.com/shelfline/bookpricer/internal/cache"
	"github.com/shelfline/bookpricer/internal/model"
	"github.com/shelfline/bookpricer/internal/monitoring"
	"github.com/shelfline/bookpricer/internal/normalize"
	"github.com/shelfline/bookpricer/internal/store"
	"github.com/shelfline/bookpricer/pkg/marketplace"
)

const (
	defaultCacheDays = 90

	// The error-rate gate only kicks in once there is a minimally
	// meaningful sample.
	errorRateMinRequests = 5
	errorRateThreshold   = 0.8
)

// Service answers pricing lookups. Reads go persistent tier first, then
// memory, then the remote marketplace; every successful fetch is written
// through to both tiers.
type Service struct {
	store   store.Store
	client  marketplace.Client
	memory  *cache.Memory
	backoff *backoff
	metrics *monitoring.Metrics

	cacheDays    int
	cacheEnabled bool

	requests atomic.Int64
	errors   atomic.Int64

	nowFunc func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics attaches a Prometheus collector bundle.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithMemoryCache substitutes the memory tier.
func WithMemoryCache(m *cache.Memory) Option {
	return func(s *Service) { s.memory = m }
}

// WithCacheDefaults sets the persistent retention applied when a user
// has no settings row.
func WithCacheDefaults(days int, enabled bool) Option {
	return func(s *Service) {
		if days > 0 {
			s.cacheDays = days
		}
		s.cacheEnabled = enabled
	}
}

// NewService creates the pricing façade. A nil client leaves the service
// in an unconfigured state where lookups fail with ErrUnconfigured.
func NewService(st store.Store, client marketplace.Client, opts ...Option) *Service {
	s := &Service{
		store:        st,
		client:       client,
		memory:       cache.NewMemory(0),
		backoff:      newBackoff(),
		cacheDays:    defaultCacheDays,
		cacheEnabled: true,
		nowFunc:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetPricingData returns market pricing for an ISBN, or (nil, nil) when
// no completed sales exist. userID may be empty; when set, that user's
// cache settings govern the persistent tier.
func (s *Service) GetPricingData(ctx context.Context, isbn, userID string) (*model.PricingData, error) {
	start := s.nowFunc()
	s.requests.Add(1)
	s.metrics.IncRequest()

	if s.client == nil {
		s.errors.Add(1)
		s.metrics.IncError("unconfigured")
		return nil, eris.Wrap(ErrUnconfigured, "pricing: get pricing data")
	}

	cacheDays, cacheEnabled := s.resolveCacheSettings(ctx, userID)

	if cacheEnabled {
		if data, err := s.store.GetCachedPricing(ctx, isbn); err != nil {
			zap.L().Warn("persistent cache read failed",
				zap.String("isbn", isbn), zap.Error(err))
		} else if data != nil {
			s.memory.Set(isbn, data)
			s.metrics.SetCacheSize(s.memory.Len())
			s.metrics.IncCacheHit("persistent")
			if err := s.store.TouchPricingAccess(ctx, isbn); err != nil {
				zap.L().Warn("access touch failed",
					zap.String("isbn", isbn), zap.Error(err))
			}
			s.logOutcome(isbn, "persistent_hit", start)
			return data, nil
		}
	}

	if data := s.memory.Get(isbn); data != nil {
		s.metrics.IncCacheHit("memory")
		s.logOutcome(isbn, "memory_hit", start)
		return data, nil
	}

	if s.backoff.Active() {
		zap.L().Info("fetch skipped, rate-limit backoff active",
			zap.String("isbn", isbn),
			zap.Duration("remaining", s.backoff.Remaining()))
		return s.staleFallback(ctx, isbn, "backoff_skip", start)
	}
	if s.errorRateExceeded() {
		zap.L().Warn("fetch skipped, error rate too high",
			zap.String("isbn", isbn),
			zap.Float64("error_rate", s.errorRate()))
		return s.staleFallback(ctx, isbn, "error_rate_skip", start)
	}

	fetchStart := s.nowFunc()
	items, err := s.client.FindCompletedSales(ctx, isbn)
	s.metrics.ObserveFetch(s.nowFunc().Sub(fetchStart))
	if err != nil {
		s.errors.Add(1)
		if errors.Is(err, marketplace.ErrRateLimited) {
			wait := s.backoff.RecordRateLimit()
			s.metrics.IncError("rate_limited")
			zap.L().Warn("marketplace rate limited",
				zap.String("isbn", isbn),
				zap.Duration("backoff", wait))
			return s.staleFallback(ctx, isbn, "rate_limited", start)
		}
		if errors.Is(err, marketplace.ErrTimeout) {
			s.metrics.IncError("timeout")
		} else {
			s.metrics.IncError("fetch")
		}
		s.logOutcome(isbn, "fetch_error", start)
		return nil, eris.Wrap(err, "pricing: fetch completed sales")
	}

	records := normalize.SaleRecords(items)
	data := analyze.Analyze(isbn, records, s.nowFunc())
	if data == nil {
		s.logOutcome(isbn, "not_found", start)
		return nil, nil
	}

	s.memory.Set(isbn, data)
	s.metrics.SetCacheSize(s.memory.Len())
	if cacheEnabled {
		ttl := time.Duration(cacheDays) * 24 * time.Hour
		if err := s.store.SetCachedPricing(ctx, isbn, data, ttl); err != nil {
			zap.L().Warn("persistent cache write failed",
				zap.String("isbn", isbn), zap.Error(err))
		}
	}
	s.logOutcome(isbn, "fetched", start)
	return data, nil
}

// RefreshBookPricing re-fetches pricing for a book's ISBN, persists the
// new estimated price on the inventory record, and returns both. The
// returned pricing carries a profit estimate when the book has a
// purchase price.
func (s *Service) RefreshBookPricing(ctx context.Context, bookID string) (*model.Book, *model.PricingData, error) {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pricing: refresh book pricing")
	}
	if book == nil {
		return nil, nil, nil
	}

	data, err := s.GetPricingData(ctx, book.ISBN, book.UserID)
	if err != nil {
		return book, nil, err
	}
	if data == nil {
		return book, nil, nil
	}

	enriched := analyze.EnrichProfit(*data, book.PurchasePrice)
	data = &enriched
	if err := s.store.UpdateBookEstimatedPrice(ctx, bookID, data.AveragePrice); err != nil {
		return book, data, eris.Wrap(err, "pricing: update estimated price")
	}
	book.EstimatedPrice = data.AveragePrice
	return book, data, nil
}

// PurgeExpired removes expired rows from the persistent tier and returns
// how many were dropped.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpiredPricing(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "pricing: purge expired")
	}
	zap.L().Info("expired pricing entries purged", zap.Int("count", n))
	return n, nil
}

// Snapshot is the health-check view of the service counters.
type Snapshot struct {
	TotalRequests int64   `json:"totalRequests"`
	TotalErrors   int64   `json:"totalErrors"`
	ErrorRate     float64 `json:"errorRate"`
	CacheSize     int     `json:"cacheSize"`
}

// Metrics returns cumulative request/error counts and the current
// memory-cache size.
func (s *Service) Metrics() Snapshot {
	return Snapshot{
		TotalRequests: s.requests.Load(),
		TotalErrors:   s.errors.Load(),
		ErrorRate:     s.errorRate(),
		CacheSize:     s.memory.Len(),
	}
}

// Configured reports whether a marketplace client is attached.
func (s *Service) Configured() bool {
	return s.client != nil
}

func (s *Service) resolveCacheSettings(ctx context.Context, userID string) (int, bool) {
	if userID == "" {
		return s.cacheDays, s.cacheEnabled
	}
	settings, err := s.store.GetUserSettings(ctx, userID)
	if err != nil {
		zap.L().Warn("user settings lookup failed",
			zap.String("user_id", userID), zap.Error(err))
		return s.cacheDays, s.cacheEnabled
	}
	if settings == nil {
		return s.cacheDays, s.cacheEnabled
	}
	days := settings.PricingCacheDays
	if days <= 0 {
		days = s.cacheDays
	}
	return days, settings.PricingCacheEnabled
}

// staleFallback serves any persistent entry regardless of expiration.
// Used when the remote provider cannot be called: stale data beats none.
func (s *Service) staleFallback(ctx context.Context, isbn, reason string, start time.Time) (*model.PricingData, error) {
	data, err := s.store.GetStalePricing(ctx, isbn)
	if err != nil {
		zap.L().Warn("stale cache read failed",
			zap.String("isbn", isbn), zap.Error(err))
		s.logOutcome(isbn, reason, start)
		return nil, nil
	}
	if data == nil {
		s.logOutcome(isbn, reason, start)
		return nil, nil
	}
	s.metrics.IncCacheHit("stale")
	s.logOutcome(isbn, "stale_hit", start)
	return data, nil
}

func (s *Service) errorRate() float64 {
	requests := s.requests.Load()
	if requests == 0 {
		return 0
	}
	return float64(s.errors.Load()) / float64(requests)
}

func (s *Service) errorRateExceeded() bool {
	return s.requests.Load() > errorRateMinRequests && s.errorRate() > errorRateThreshold
}

func (s *Service) logOutcome(isbn, status string, start time.Time) {
	zap.L().Info("pricing lookup",
		zap.String("isbn", isbn),
		zap.String("status", status),
		zap.Duration("latency", s.nowFunc().Sub(start)))
}
