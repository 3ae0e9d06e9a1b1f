// Package cache implements the in-process tier of the two-tier pricing
// cache: a bounded map of PricingData keyed by ISBN with per-entry
// expiration derived from recent access frequency.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/shelfline/bookpricer/internal/model"
)

const (
	defaultMaxEntries = 1024

	// accessWindow bounds how far back access frequency is considered
	// when computing an entry's expiration.
	accessWindow = 24 * time.Hour

	// Hot titles get short-lived entries so their estimates stay fresh;
	// cold titles get long-lived entries to spare remote calls.
	hotTTL  = 1 * time.Hour
	warmTTL = 6 * time.Hour
	coldTTL = 24 * time.Hour

	hotAccessThreshold  = 10
	warmAccessThreshold = 3
)

// Entry is a cached PricingData with expiry and access bookkeeping.
type Entry struct {
	Data         *model.PricingData
	Expires      time.Time
	AccessCount  int
	LastAccessed time.Time
}

// Memory is the ephemeral cache tier. Both the entry map and the
// access-frequency log are bounded LRUs, so a crawl over many ISBNs
// cannot grow process memory without limit. Safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *Entry]
	access  *lru.Cache[string, []time.Time]

	nowFunc func() time.Time
}

// NewMemory creates a memory cache holding at most maxEntries entries.
// Non-positive maxEntries falls back to the default bound.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	entries, _ := lru.New[string, *Entry](maxEntries)
	access, _ := lru.New[string, []time.Time](maxEntries)
	return &Memory{
		entries: entries,
		access:  access,
		nowFunc: time.Now,
	}
}

// Get returns the cached PricingData for the ISBN, or nil on miss.
// Expired entries are evicted lazily here. Every lookup, hit or miss,
// counts toward the ISBN's access frequency.
func (m *Memory) Get(isbn string) *model.PricingData {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	m.recordAccess(isbn, now)

	entry, ok := m.entries.Get(isbn)
	if !ok {
		return nil
	}
	if !now.Before(entry.Expires) {
		m.entries.Remove(isbn)
		return nil
	}

	entry.AccessCount++
	entry.LastAccessed = now
	return entry.Data
}

// Set stores data for the ISBN, replacing any existing entry. The
// expiration duration adapts to how often the ISBN was looked up within
// the access window.
func (m *Memory) Set(isbn string, data *model.PricingData) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	m.entries.Add(isbn, &Entry{
		Data:         data,
		Expires:      now.Add(m.ttlLocked(isbn, now)),
		LastAccessed: now,
	})
}

// TTL reports the expiration duration that a Set for this ISBN would
// currently use.
func (m *Memory) TTL(isbn string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttlLocked(isbn, m.nowFunc())
}

// Len returns the number of entries currently held, including any not
// yet lazily evicted.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries.Len()
}

// Purge drops all entries and access history.
func (m *Memory) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries.Purge()
	m.access.Purge()
}

func (m *Memory) recordAccess(isbn string, now time.Time) {
	log, _ := m.access.Get(isbn)
	log = append(log, now)
	m.access.Add(isbn, pruneBefore(log, now.Add(-accessWindow)))
}

func (m *Memory) ttlLocked(isbn string, now time.Time) time.Duration {
	log, _ := m.access.Get(isbn)
	recent := len(pruneBefore(log, now.Add(-accessWindow)))
	switch {
	case recent >= hotAccessThreshold:
		return hotTTL
	case recent >= warmAccessThreshold:
		return warmTTL
	default:
		return coldTTL
	}
}

func pruneBefore(log []time.Time, cutoff time.Time) []time.Time {
	kept := log[:0]
	for _, ts := range log {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
