package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/shelfline/bookpricer/internal/cache"
	"github.com/shelfline/bookpricer/internal/monitoring"
	"github.com/shelfline/bookpricer/internal/pricing"
	"github.com/shelfline/bookpricer/internal/store"
	"github.com/shelfline/bookpricer/pkg/marketplace"
)

// engineEnv holds the initialized store, service, and metrics shared by
// the serve/lookup/cache commands.
type engineEnv struct {
	Store   store.Store
	Service *pricing.Service
	Metrics *monitoring.Metrics
}

func (e *engineEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

// initEngine sets up the persistent store, the marketplace client, and
// the pricing façade. Callers should defer env.Close().
func initEngine(ctx context.Context, mode string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	// A missing app id leaves the service unconfigured: cache reads
	// still work, remote fetches answer 503.
	var client marketplace.Client
	if cfg.Marketplace.Configured() {
		client = marketplace.NewClient(cfg.Marketplace.AppID,
			marketplace.WithBaseURL(cfg.Marketplace.BaseURL),
			marketplace.WithToken(cfg.Marketplace.Token),
			marketplace.WithCategoryID(cfg.Marketplace.CategoryID),
			marketplace.WithTimeout(timeoutSecs(cfg.Marketplace.TimeoutSecs)),
			marketplace.WithMaxResults(cfg.Marketplace.MaxResults),
			marketplace.WithLookbackDays(cfg.Marketplace.LookbackDays),
			marketplace.WithRequestsPerSecond(cfg.Marketplace.RequestsPerSec),
		)
	} else {
		zap.L().Warn("BOOKPRICER_MARKETPLACE_APP_ID not set, remote pricing fetches disabled")
	}

	metrics := monitoring.NewMetrics()
	svc := pricing.NewService(st, client,
		pricing.WithMetrics(metrics),
		pricing.WithMemoryCache(cache.NewMemory(cfg.Cache.MemoryEntries)),
		pricing.WithCacheDefaults(cfg.Cache.DefaultDays, cfg.Cache.Enabled),
	)

	return &engineEnv{Store: st, Service: svc, Metrics: metrics}, nil
}

func timeoutSecs(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "bookpricer.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
