// Package model defines the pricing domain types shared across the engine.
package model

import "time"

// SaleRecord is a single normalized completed sale. Records are ephemeral:
// they exist only between fetch and analysis and are never persisted.
type SaleRecord struct {
	Price     float64   `json:"price"`
	Condition Condition `json:"condition"`
	EndDate   time.Time `json:"end_date"`
}

// ConfidenceLevel labels how trustworthy an aggregate estimate is.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// DemandLevel buckets market velocity into a demand signal.
type DemandLevel string

const (
	DemandHigh   DemandLevel = "high"
	DemandMedium DemandLevel = "medium"
	DemandLow    DemandLevel = "low"
)

// PriceDirection describes the short-term price trend.
type PriceDirection string

const (
	PriceRising  PriceDirection = "rising"
	PriceFalling PriceDirection = "falling"
	PriceStable  PriceDirection = "stable"
)

// PriceRange holds the min/max observed price for a group of sales.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ConditionStats aggregates sales of a single condition.
type ConditionStats struct {
	AveragePrice float64    `json:"average_price"`
	Count        int        `json:"count"`
	PriceRange   PriceRange `json:"price_range"`
}

// DateRange is the span covered by the analyzed sale sample.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// MarketVelocity measures how quickly copies of a title sell.
type MarketVelocity struct {
	SalesPerWeek float64     `json:"sales_per_week"`
	TimeToSell   float64     `json:"time_to_sell_days"`
	DemandLevel  DemandLevel `json:"demand_level"`
}

// ProfitEstimate holds profit figures that require the caller's purchase
// price. It is absent until enriched; the analyzer never fills it.
type ProfitEstimate struct {
	ExpectedProfit float64 `json:"expected_profit"`
	ProfitMargin   float64 `json:"profit_margin"`
	ROI            float64 `json:"roi"`
}

// ProfitAnalysis carries the recommended listing price plus an optional
// purchase-cost-aware estimate.
type ProfitAnalysis struct {
	RecommendedListingPrice float64         `json:"recommended_listing_price"`
	Estimate                *ProfitEstimate `json:"estimate,omitempty"`
}

// Trends describes short-term price movement in the sample.
type Trends struct {
	PriceDirection PriceDirection `json:"price_direction"`
	WeeklyChange   float64        `json:"weekly_change_pct"`
	Seasonality    string         `json:"seasonality"`
}

// PricingData is the durable pricing estimate for a single ISBN. It is
// derived deterministically from a sale sample and replaced wholesale on
// refetch, never partially updated.
type PricingData struct {
	ISBN             string                       `json:"isbn"`
	AveragePrice     float64                      `json:"average_price"`
	ConditionPricing map[Condition]ConditionStats `json:"condition_pricing"`
	Confidence       ConfidenceLevel              `json:"confidence"`
	ConfidenceScore  int                          `json:"confidence_score"`
	TotalSales       int                          `json:"total_sales"`
	DateRange        DateRange                    `json:"date_range"`
	LastUpdated      time.Time                    `json:"last_updated"`
	MarketVelocity   MarketVelocity               `json:"market_velocity"`
	ProfitAnalysis   ProfitAnalysis               `json:"profit_analysis"`
	Trends           Trends                       `json:"trends"`
}

// Book is the slice of an inventory record the pricing engine touches.
type Book struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	ISBN           string    `json:"isbn"`
	Title          string    `json:"title"`
	PurchasePrice  float64   `json:"purchase_price"`
	EstimatedPrice float64   `json:"estimated_price"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UserSettings holds the per-user cache policy sourced from the
// application's settings store.
type UserSettings struct {
	UserID              string `json:"user_id"`
	PricingCacheDays    int    `json:"pricing_cache_days"`
	PricingCacheEnabled bool   `json:"pricing_cache_enabled"`
}
