package reconcile

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// countEntry is a memoized exact count.
type countEntry struct {
	// Count is the value returned by the data source.
	Count int

	// Built is the timestamp when the count was taken.
	Built time.Time

	// TTL is the time-to-live of the entry.
	TTL time.Duration
}

// IsExpired returns true if the entry has outlived its TTL.
func (e *countEntry) IsExpired() bool {
	if e.TTL == 0 {
		return true // No caching
	}
	return time.Since(e.Built) > e.TTL
}

// countCache memoizes counts per reset generation. A reset bumps the
// generation, so counts taken under an older filter are never served.
type countCache struct {
	mu      sync.RWMutex
	entries map[uint64]*countEntry
	sf      singleflight.Group
	ttl     time.Duration
}

func newCountCache(ttl time.Duration) *countCache {
	return &countCache{
		entries: make(map[uint64]*countEntry),
		ttl:     ttl,
	}
}

// setTTL changes the time-to-live of future entries.
func (c *countCache) setTTL(ttl time.Duration) {
	c.mu.Lock()
	c.ttl = ttl
	c.mu.Unlock()
}

// getOrCount returns the cached count of generation, or calls count.
// Concurrent callers for the same generation share one backend call.
func (c *countCache) getOrCount(ctx context.Context, generation uint64, count func(context.Context) (int, error)) (int, error) {
	c.mu.RLock()
	ttl := c.ttl
	entry, exists := c.entries[generation]
	c.mu.RUnlock()

	if ttl == 0 {
		return count(ctx)
	}
	if exists && !entry.IsExpired() {
		return entry.Count, nil
	}

	key := strconv.FormatUint(generation, 10)
	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Double-check after acquiring singleflight lock
		c.mu.RLock()
		entry, exists := c.entries[generation]
		c.mu.RUnlock()

		if exists && !entry.IsExpired() {
			return entry.Count, nil
		}

		n, err := count(ctx)
		if err != nil {
			return nil, err
		}
		c.store(generation, n)
		return n, nil
	})
	if err != nil {
		return 0, err
	}

	return result.(int), nil
}

// store records n for generation and drops entries of older generations.
func (c *countCache) store(generation uint64, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ttl == 0 {
		return
	}
	for g := range c.entries {
		if g < generation {
			delete(c.entries, g)
		}
	}
	c.entries[generation] = &countEntry{Count: n, Built: time.Now(), TTL: c.ttl}
}

// invalidate removes every entry.
func (c *countCache) invalidate() {
	c.mu.Lock()
	c.entries = make(map[uint64]*countEntry)
	c.mu.Unlock()
}
