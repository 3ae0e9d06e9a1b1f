package model

import "strings"

// Condition is the closed set of normalized listing conditions.
type Condition string

const (
	ConditionNew        Condition = "New"
	ConditionLikeNew    Condition = "Like New"
	ConditionVeryGood   Condition = "Very Good"
	ConditionGood       Condition = "Good"
	ConditionAcceptable Condition = "Acceptable"
	ConditionUnknown    Condition = "Unknown"
)

// conditionKeywords maps lowercase substrings to conditions, in match
// priority order. "like new" must precede "new" and "very good" must
// precede "good" so each raw string maps to exactly one condition.
var conditionKeywords = []struct {
	keyword   string
	condition Condition
}{
	{"like new", ConditionLikeNew},
	{"brand new", ConditionNew},
	{"new", ConditionNew},
	{"very good", ConditionVeryGood},
	{"good", ConditionGood},
	{"acceptable", ConditionAcceptable},
	{"fair", ConditionAcceptable},
}

// NormalizeCondition maps a raw provider condition string onto the closed
// Condition set via case-insensitive substring matching. Unmatched or
// empty input yields ConditionUnknown.
func NormalizeCondition(raw string) Condition {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	if lowered == "" {
		return ConditionUnknown
	}
	for _, kw := range conditionKeywords {
		if strings.Contains(lowered, kw.keyword) {
			return kw.condition
		}
	}
	return ConditionUnknown
}
