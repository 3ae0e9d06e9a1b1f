// Package analyze computes aggregate pricing statistics from completed
// sale samples. Analysis is pure: the same sample and reference time
// always produce the same PricingData.
package analyze

import (
	"math"
	"time"

	"github.com/shelfline/bookpricer/internal/model"
)

const (
	recencyWindow = 14 * 24 * time.Hour
	trendWindow   = 7 * 24 * time.Hour

	// Listing markup over observed average sale price.
	listingMarkup = 1.15

	// No seasonal model is implemented; the field is a constant.
	seasonalityStable = "stable"
)

// Analyze aggregates a sale sample into a PricingData estimate. The
// reference time `now` anchors recency scoring, trend partitioning, and
// the LastUpdated stamp. An empty sample yields nil: no data, not an
// error.
func Analyze(isbn string, records []model.SaleRecord, now time.Time) *model.PricingData {
	if len(records) == 0 {
		return nil
	}

	prices := make([]float64, len(records))
	var sum float64
	for i, r := range records {
		prices[i] = r.Price
		sum += r.Price
	}
	mean := sum / float64(len(records))

	earliest, latest := dateRange(records)
	score := confidenceScore(records, mean, now)

	return &model.PricingData{
		ISBN:             isbn,
		AveragePrice:     round2(mean),
		ConditionPricing: conditionPricing(records),
		Confidence:       confidenceLabel(score),
		ConfidenceScore:  score,
		TotalSales:       len(records),
		DateRange:        model.DateRange{From: earliest, To: latest},
		LastUpdated:      now,
		MarketVelocity:   velocity(len(records), earliest, latest),
		ProfitAnalysis: model.ProfitAnalysis{
			RecommendedListingPrice: round2(mean * listingMarkup),
		},
		Trends: trends(records, now),
	}
}

// EnrichProfit returns a copy of pd with the purchase-cost-aware profit
// estimate filled in. PricingData is immutable, so the input is not
// modified. A non-positive purchase price returns pd unchanged.
func EnrichProfit(pd model.PricingData, purchasePrice float64) model.PricingData {
	if purchasePrice <= 0 {
		return pd
	}
	listing := pd.ProfitAnalysis.RecommendedListingPrice
	profit := listing - purchasePrice

	est := &model.ProfitEstimate{
		ExpectedProfit: round2(profit),
		ROI:            round2(profit / purchasePrice * 100),
	}
	if listing > 0 {
		est.ProfitMargin = round2(profit / listing * 100)
	}
	pd.ProfitAnalysis.Estimate = est
	return pd
}

func conditionPricing(records []model.SaleRecord) map[model.Condition]model.ConditionStats {
	grouped := make(map[model.Condition][]float64)
	for _, r := range records {
		grouped[r.Condition] = append(grouped[r.Condition], r.Price)
	}

	stats := make(map[model.Condition]model.ConditionStats, len(grouped))
	for cond, prices := range grouped {
		var sum float64
		min, max := prices[0], prices[0]
		for _, p := range prices {
			sum += p
			if p < min {
				min = p
			}
			if p > max {
				max = p
			}
		}
		stats[cond] = model.ConditionStats{
			AveragePrice: round2(sum / float64(len(prices))),
			Count:        len(prices),
			PriceRange:   model.PriceRange{Min: min, Max: max},
		}
	}
	return stats
}

// confidenceScore composes three additive components: sample volume
// (max 40), sale recency (max 30), and price consistency (max 30).
func confidenceScore(records []model.SaleRecord, mean float64, now time.Time) int {
	return volumeScore(len(records)) +
		recencyScore(records, now) +
		consistencyScore(records, mean)
}

func volumeScore(count int) int {
	switch {
	case count >= 20:
		return 40
	case count >= 10:
		return 30
	case count >= 5:
		return 20
	case count >= 2:
		return 10
	default:
		return 0
	}
}

func recencyScore(records []model.SaleRecord, now time.Time) int {
	cutoff := now.Add(-recencyWindow)
	recent := 0
	for _, r := range records {
		if r.EndDate.After(cutoff) {
			recent++
		}
	}
	fraction := float64(recent) / float64(len(records))
	switch {
	case fraction >= 0.5:
		return 30
	case fraction >= 0.25:
		return 20
	case recent > 0:
		return 10
	default:
		return 0
	}
}

// consistencyScore rewards a low coefficient of variation (stddev/mean).
func consistencyScore(records []model.SaleRecord, mean float64) int {
	if mean == 0 {
		return 0
	}
	var sumSq float64
	for _, r := range records {
		d := r.Price - mean
		sumSq += d * d
	}
	stddev := math.Sqrt(sumSq / float64(len(records)))
	cv := stddev / mean
	switch {
	case cv < 0.3:
		return 30
	case cv < 0.5:
		return 20
	case cv < 0.8:
		return 10
	default:
		return 0
	}
}

func confidenceLabel(score int) model.ConfidenceLevel {
	switch {
	case score >= 70:
		return model.ConfidenceHigh
	case score >= 40:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

func dateRange(records []model.SaleRecord) (earliest, latest time.Time) {
	earliest, latest = records[0].EndDate, records[0].EndDate
	for _, r := range records[1:] {
		if r.EndDate.Before(earliest) {
			earliest = r.EndDate
		}
		if r.EndDate.After(latest) {
			latest = r.EndDate
		}
	}
	return earliest, latest
}

func velocity(count int, earliest, latest time.Time) model.MarketVelocity {
	daySpan := latest.Sub(earliest).Hours() / 24

	var salesPerWeek, timeToSell float64
	if daySpan > 0 {
		salesPerWeek = float64(count) / daySpan * 7
	}
	timeToSell = daySpan / float64(count)

	var demand model.DemandLevel
	switch {
	case salesPerWeek > 2:
		demand = model.DemandHigh
	case salesPerWeek > 0.5:
		demand = model.DemandMedium
	default:
		demand = model.DemandLow
	}

	return model.MarketVelocity{
		SalesPerWeek: round2(salesPerWeek),
		TimeToSell:   round2(timeToSell),
		DemandLevel:  demand,
	}
}

// trends partitions the sample at now-7d and compares average prices.
// If either partition is empty there is nothing to compare and the
// direction defaults to stable.
func trends(records []model.SaleRecord, now time.Time) model.Trends {
	cutoff := now.Add(-trendWindow)

	var recentSum, olderSum float64
	var recentN, olderN int
	for _, r := range records {
		if r.EndDate.After(cutoff) {
			recentSum += r.Price
			recentN++
		} else {
			olderSum += r.Price
			olderN++
		}
	}

	t := model.Trends{
		PriceDirection: model.PriceStable,
		Seasonality:    seasonalityStable,
	}
	if recentN == 0 || olderN == 0 {
		return t
	}

	recentAvg := recentSum / float64(recentN)
	olderAvg := olderSum / float64(olderN)
	if olderAvg == 0 {
		return t
	}

	change := (recentAvg - olderAvg) / olderAvg * 100
	t.WeeklyChange = round2(change)
	switch {
	case change > 5:
		t.PriceDirection = model.PriceRising
	case change < -5:
		t.PriceDirection = model.PriceFalling
	}
	return t
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
