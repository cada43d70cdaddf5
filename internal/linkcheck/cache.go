package linkcheck

import (
	"context"
	"sync"
	"time"
)

// CacheEntry is a stored verification result for one URL.
type CacheEntry struct {
	URL           string    `json:"url"`
	Status        int       `json:"status"`
	Valid         bool      `json:"valid"`
	Error         string    `json:"error,omitempty"`
	LastChecked   time.Time `json:"last_checked"`
	FailureCount  int       `json:"failure_count"`
	FirstFailedAt time.Time `json:"first_failed_at,omitzero"`
}

// Cache stores verification results across runs. Get returns nil, nil for
// unknown or expired URLs.
type Cache interface {
	Get(ctx context.Context, url string) (*CacheEntry, error)
	Put(ctx context.Context, entry *CacheEntry) error
}

// EventPublisher receives broken link events.
type EventPublisher interface {
	PublishBrokenLink(ctx context.Context, event *BrokenLinkEvent) error
}

// MemoryCache is a process-local Cache with a fixed TTL.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]CacheEntry
	now     func() time.Time
}

// NewMemoryCache returns a cache whose entries expire after ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, entries: make(map[string]CacheEntry), now: time.Now}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, url string) (*CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[url]
	if !ok {
		return nil, nil
	}
	if c.ttl > 0 && c.now().Sub(e.LastChecked) >= c.ttl {
		delete(c.entries, url)
		return nil, nil
	}
	return &e, nil
}

// Put implements Cache.
func (c *MemoryCache) Put(_ context.Context, entry *CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := *entry
	if e.LastChecked.IsZero() {
		e.LastChecked = c.now()
	}
	c.entries[e.URL] = e
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
