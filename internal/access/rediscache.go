package access

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/surveyforge/surveyforge/internal/observability"
)

const redisKeyPrefix = "access:perms:"

// RedisCache is a shared alternative to Cache for multi-instance deployments:
// one expiry per user across all instances instead of one per instance.
// Redis failures fall through to the resolver, so an outage degrades to
// uncached resolution rather than blocking decisions.
type RedisCache struct {
	client   *redis.Client
	resolver *Resolver
	ttl      time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewRedisCache constructs a RedisCache.
func NewRedisCache(client *redis.Client, resolver *Resolver, ttl time.Duration, logger *slog.Logger, metrics *observability.Metrics) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, resolver: resolver, ttl: ttl, logger: logger, metrics: metrics}
}

// Permissions returns the shared cached set when present, resolving and
// storing otherwise.
func (c *RedisCache) Permissions(ctx context.Context, userID string) []string {
	payload, err := c.client.Get(ctx, redisKeyPrefix+userID).Bytes()
	if err == nil {
		var cached []string
		if jsonErr := json.Unmarshal(payload, &cached); jsonErr == nil {
			c.metrics.ObserveAccessCacheLookup(true)
			return cached
		}
	} else if err != redis.Nil && c.logger != nil {
		c.logger.Warn("access cache get", slog.String("user_id", userID), slog.Any("error", err))
	}
	c.metrics.ObserveAccessCacheLookup(false)

	resolved := c.resolver.Resolve(ctx, userID)
	if data, err := json.Marshal(resolved); err == nil {
		if err := c.client.Set(ctx, redisKeyPrefix+userID, data, c.ttl).Err(); err != nil && c.logger != nil {
			c.logger.Warn("access cache set", slog.String("user_id", userID), slog.Any("error", err))
		}
	}
	return resolved
}

// Invalidate drops the shared entry for one user.
func (c *RedisCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, redisKeyPrefix+userID).Err()
}

// InvalidateAll drops every shared entry.
func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
