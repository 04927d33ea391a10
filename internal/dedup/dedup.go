// Package dedup suppresses duplicate generation requests at the ingestion
// edge. Platform adapters occasionally redeliver the same message (gateway
// reconnects, webhook retries); a short-lived fingerprint cache turns the
// replay into an immediate accept pointing at the original job instead of
// spawning new work.
//
// Deduplication is best-effort suppression, not a mutex: two concurrent
// duplicates may both miss the cache and both get enqueued. Downstream
// delivery tolerates that.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long a fingerprint blocks replays. Duplicates arrive
	// within a second or two of the original in practice.
	DefaultTTL = 5 * time.Second

	// DefaultSweepInterval is how often expired fingerprints are purged.
	DefaultSweepInterval = 10 * time.Second
)

// Fingerprint identifies one logical generation request. Two requests with
// the same personality, user, channel and message content within the TTL are
// considered duplicates. Direct messages have no channel id and share the
// fixed "dm" slot instead.
func Fingerprint(personalityName, userID, channelID, message string) string {
	if channelID == "" {
		channelID = "dm"
	}
	sum := sha256.Sum256([]byte(message))
	return strings.Join([]string{
		personalityName, userID, channelID, hex.EncodeToString(sum[:])[:16],
	}, ":")
}

// Entry records what the original submission produced, so a duplicate can be
// answered with the same ids.
type Entry struct {
	RequestID string
	JobID     string
	ExpiresAt time.Time
}

// Cache is the in-process fingerprint store. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]Entry
	ttl     time.Duration
	nowFunc func() time.Time
}

// New creates a Cache. ttl <= 0 means [DefaultTTL].
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		seen:    make(map[string]Entry),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// Check returns the cached entry for fingerprint when it was recorded within
// the TTL. Expired entries are purged lazily on read.
func (c *Cache) Check(fingerprint string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.seen[fingerprint]
	if !ok {
		return Entry{}, false
	}
	if c.nowFunc().After(entry.ExpiresAt) {
		delete(c.seen, fingerprint)
		return Entry{}, false
	}
	return entry, true
}

// Cache records fingerprint with the ids the original submission produced,
// resetting the TTL if the fingerprint is already present.
func (c *Cache) Cache(fingerprint, requestID, jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[fingerprint] = Entry{
		RequestID: requestID,
		JobID:     jobID,
		ExpiresAt: c.nowFunc().Add(c.ttl),
	}
}

// Dispose removes fingerprint immediately. Used when a request fails before
// any job is enqueued so the user can retry without waiting out the TTL.
func (c *Cache) Dispose(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seen, fingerprint)
}

// Size returns the number of cached fingerprints, expired entries included
// until the next sweep.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// sweep removes every expired fingerprint.
func (c *Cache) sweep() {
	now := c.nowFunc()
	c.mu.Lock()
	defer c.mu.Unlock()
	for fp, entry := range c.seen {
		if now.After(entry.ExpiresAt) {
			delete(c.seen, fp)
		}
	}
}

// Run sweeps the cache periodically until ctx is cancelled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("dedup sweeper stopped")
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}
