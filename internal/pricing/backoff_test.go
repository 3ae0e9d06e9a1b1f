package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestBackoff() (*backoff, *time.Time) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	b := newBackoff()
	b.nowFunc = func() time.Time { return now }
	return b, &now
}

func TestBackoffDoublesOnRepeatedRateLimits(t *testing.T) {
	b, now := newTestBackoff()

	assert.Equal(t, 5*time.Minute, b.RecordRateLimit())
	*now = now.Add(time.Minute)
	assert.Equal(t, 10*time.Minute, b.RecordRateLimit())
	*now = now.Add(time.Minute)
	assert.Equal(t, 20*time.Minute, b.RecordRateLimit())
}

func TestBackoffCapsAtCeiling(t *testing.T) {
	b, now := newTestBackoff()

	var d time.Duration
	for i := 0; i < 10; i++ {
		d = b.RecordRateLimit()
		*now = now.Add(time.Minute)
	}
	assert.Equal(t, 2*time.Hour, d)
}

func TestBackoffResetsAfterQuietPeriod(t *testing.T) {
	b, now := newTestBackoff()

	b.RecordRateLimit()
	b.RecordRateLimit()
	assert.True(t, b.Active())

	// more than two hours of silence starts the ladder over
	*now = now.Add(2*time.Hour + time.Minute)
	assert.False(t, b.Active())
	assert.Equal(t, 5*time.Minute, b.RecordRateLimit())
}

func TestBackoffActiveWindow(t *testing.T) {
	b, now := newTestBackoff()

	assert.False(t, b.Active())

	b.RecordRateLimit()
	assert.True(t, b.Active())
	assert.Equal(t, 5*time.Minute, b.Remaining())

	*now = now.Add(4 * time.Minute)
	assert.True(t, b.Active())
	assert.Equal(t, time.Minute, b.Remaining())

	*now = now.Add(2 * time.Minute)
	assert.False(t, b.Active())
	assert.Equal(t, time.Duration(0), b.Remaining())
}
