package pricing

import (
	"sync"
	"time"
)

const (
	backoffFloor      = 5 * time.Minute
	backoffCeiling    = 2 * time.Hour
	backoffResetAfter = 2 * time.Hour
)

// backoff holds the process-wide rate-limit state. Each detected
// rate-limit response doubles the backoff window (floor 5 minutes,
// ceiling 2 hours); more than 2 hours of silence resets it to zero.
// Safe for concurrent use.
type backoff struct {
	mu          sync.Mutex
	lastErrorAt time.Time
	duration    time.Duration

	nowFunc func() time.Time
}

func newBackoff() *backoff {
	return &backoff{nowFunc: time.Now}
}

// RecordRateLimit registers a rate-limit response and returns the new
// backoff duration.
func (b *backoff) RecordRateLimit() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.nowFunc()
	if !b.lastErrorAt.IsZero() && now.Sub(b.lastErrorAt) > backoffResetAfter {
		b.duration = 0
	}

	switch {
	case b.duration == 0:
		b.duration = backoffFloor
	default:
		b.duration *= 2
		if b.duration > backoffCeiling {
			b.duration = backoffCeiling
		}
	}
	b.lastErrorAt = now
	return b.duration
}

// Active reports whether the backoff window is still open, meaning
// outbound fetches should be skipped.
func (b *backoff) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lastErrorAt.IsZero() {
		return false
	}
	now := b.nowFunc()
	if now.Sub(b.lastErrorAt) > backoffResetAfter {
		b.lastErrorAt = time.Time{}
		b.duration = 0
		return false
	}
	return now.Before(b.lastErrorAt.Add(b.duration))
}

// Remaining returns how long until the backoff window closes, zero when
// inactive.
func (b *backoff) Remaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lastErrorAt.IsZero() {
		return 0
	}
	remaining := b.lastErrorAt.Add(b.duration).Sub(b.nowFunc())
	if remaining < 0 {
		return 0
	}
	return remaining
}
