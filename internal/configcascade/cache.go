package configcascade

import (
	"context"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultCacheTTL bounds how stale a cached resolution may get without
	// an explicit invalidation.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultSweepInterval is how often expired entries are purged.
	DefaultSweepInterval = time.Minute
)

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// ttlCache is a small expiring map keyed by colon-joined resolution keys.
type ttlCache[V any] struct {
	mu      sync.Mutex
	entries map[string]ttlEntry[V]
	ttl     time.Duration
	nowFunc func() time.Time
}

func newTTLCache[V any](ttl time.Duration) *ttlCache[V] {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ttlCache[V]{
		entries: make(map[string]ttlEntry[V]),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

func (c *ttlCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.nowFunc().After(entry.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return entry.value, true
}

func (c *ttlCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = ttlEntry[V]{value: value, expiresAt: c.nowFunc().Add(c.ttl)}
}

// invalidate removes entries whose key contains id as one of its segments.
// Empty id clears everything (admin wildcard). Returns the purge count.
func (c *ttlCache[V]) invalidate(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id == "" {
		n := len(c.entries)
		c.entries = make(map[string]ttlEntry[V])
		return n
	}

	n := 0
	for key := range c.entries {
		for _, segment := range strings.Split(key, ":") {
			if segment == id {
				delete(c.entries, key)
				n++
				break
			}
		}
	}
	return n
}

func (c *ttlCache[V]) sweep() {
	now := c.nowFunc()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *ttlCache[V]) run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}
