// Package normalize converts raw marketplace listings into typed sale
// records suitable for analysis.
package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/shelfline/bookpricer/internal/model"
	"github.com/shelfline/bookpricer/pkg/marketplace"
)

// endTimeLayouts are tried in order when parsing listing end timestamps.
// The provider emits millisecond-precision RFC 3339; older payloads omit
// the fraction.
var endTimeLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	time.RFC3339,
}

// SaleRecords converts raw listings into sale records. Items with a
// missing or non-positive price, or an unparseable end time, are dropped
// silently; partial provider data is expected. The condition string is
// mapped onto the closed condition set, defaulting to Unknown.
func SaleRecords(items []marketplace.Item) []model.SaleRecord {
	records := make([]model.SaleRecord, 0, len(items))
	for _, item := range items {
		price, ok := parsePrice(item.PriceValue())
		if !ok {
			continue
		}
		endDate, ok := parseEndTime(item.EndTime())
		if !ok {
			continue
		}
		records = append(records, model.SaleRecord{
			Price:     price,
			Condition: model.NormalizeCondition(item.ConditionName()),
			EndDate:   endDate,
		})
	}
	return records
}

func parsePrice(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}

func parseEndTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range endTimeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
