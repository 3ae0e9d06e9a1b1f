package marketplace

import (
	"net/http"
	"strings"
)

// rateLimitMarkers are substrings the provider embeds in error bodies
// when a call limit has been exceeded. String matching is fragile by
// nature, which is why detection lives behind RateLimitDetector.
var rateLimitMarkers = []string{
	"ratelimiter",
	"call limit",
	"exceeded the number of times",
	"ip limit exceeded",
}

// DefaultRateLimitDetector reports whether a non-2xx response indicates
// provider throttling: either HTTP 429 or a known marker in the body.
func DefaultRateLimitDetector(statusCode int, body []byte) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	lowered := strings.ToLower(string(body))
	for _, marker := range rateLimitMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
