package access

import (
	"context"
	"sync"
	"time"

	"github.com/surveyforge/surveyforge/internal/observability"
)

// DefaultTTL is the fixed freshness window for cached permission sets.
const DefaultTTL = 5 * time.Minute

// PermissionSource yields the effective permission set for a user.
type PermissionSource interface {
	Permissions(ctx context.Context, userID string) []string
}

// Cache fronts the Resolver with a fixed-window TTL cache keyed by user id.
//
// Role and permission mutations do not invalidate entries; a change becomes
// visible on a given instance only once that instance's entry expires. The
// staleness window is bounded by the TTL. Invalidate/InvalidateAll exist for
// administrative use.
type Cache struct {
	resolver *Resolver
	ttl      time.Duration
	now      func() time.Time
	metrics  *observability.Metrics

	mu      sync.Mutex
	perms   map[string][]string
	expires map[string]time.Time
}

// NewCache constructs a Cache. A nil clock defaults to time.Now.
func NewCache(resolver *Resolver, ttl time.Duration, clock func() time.Time, metrics *observability.Metrics) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &Cache{
		resolver: resolver,
		ttl:      ttl,
		now:      clock,
		metrics:  metrics,
		perms:    make(map[string][]string),
		expires:  make(map[string]time.Time),
	}
}

// Permissions returns the cached effective set when fresh, resolving and
// storing otherwise. Concurrent misses for the same user may resolve more
// than once; the resolution is pure, so the duplicate work is harmless.
func (c *Cache) Permissions(ctx context.Context, userID string) []string {
	c.mu.Lock()
	if expiry, ok := c.expires[userID]; ok && c.now().Before(expiry) {
		cached := append([]string(nil), c.perms[userID]...)
		c.mu.Unlock()
		c.metrics.ObserveAccessCacheLookup(true)
		return cached
	}
	c.mu.Unlock()
	c.metrics.ObserveAccessCacheLookup(false)

	resolved := c.resolver.Resolve(ctx, userID)

	c.mu.Lock()
	c.perms[userID] = append([]string(nil), resolved...)
	c.expires[userID] = c.now().Add(c.ttl)
	c.mu.Unlock()
	return resolved
}

// Invalidate drops the entry for one user.
func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	c.mu.Lock()
	delete(c.perms, userID)
	delete(c.expires, userID)
	c.mu.Unlock()
	return nil
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	c.perms = make(map[string][]string)
	c.expires = make(map[string]time.Time)
	c.mu.Unlock()
	return nil
}

// Sweep removes expired entries and reports how many were dropped. Expired
// entries are otherwise refreshed lazily, so sweeping only bounds memory.
func (c *Cache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, expiry := range c.expires {
		if !now.Before(expiry) {
			delete(c.perms, id)
			delete(c.expires, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of live entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.expires)
}
