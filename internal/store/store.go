// Package store provides the persistent tier of the pricing cache plus
// the slices of inventory and user-settings state the engine touches.
package store

import (
	"context"
	"time"

	"github.com/shelfline/bookpricer/internal/model"
)

// Store defines the persistence interface for the pricing engine.
//
// Cached pricing is keyed uniquely by ISBN and always replaced
// wholesale: a write is a full overwrite, never a merge.
type Store interface {
	// Pricing cache
	GetCachedPricing(ctx context.Context, isbn string) (*model.PricingData, error)
	// GetStalePricing ignores expiration; used for the stale-on-error
	// fallback when the remote provider is throttling.
	GetStalePricing(ctx context.Context, isbn string) (*model.PricingData, error)
	SetCachedPricing(ctx context.Context, isbn string, data *model.PricingData, ttl time.Duration) error
	TouchPricingAccess(ctx context.Context, isbn string) error
	DeleteExpiredPricing(ctx context.Context) (int, error)

	// User settings
	GetUserSettings(ctx context.Context, userID string) (*model.UserSettings, error)

	// Inventory
	GetBook(ctx context.Context, id string) (*model.Book, error)
	UpdateBookEstimatedPrice(ctx context.Context, id string, price float64) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
