package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finsight-core/server/internal/metrics"
	logx "github.com/finsight-core/server/pkg/logger"
)

// Config holds cache tunables, sourced from environment variables.
type Config struct {
	TTLSeconds int `envconfig:"CACHE_TTL_SECONDS" default:"30"`
}

// TTL returns the configured default TTL as a duration.
func (c Config) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Cache is a read-through key/value store over Redis with short TTLs. Every
// operation fails open: a backing-store failure is logged and reported as a
// miss (or ignored on write), never surfaced to the caller. The pipeline keeps
// working with degraded performance, not degraded correctness.
type Cache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func New(rdb redis.Cmdable, cfg Config) *Cache {
	return &Cache{rdb: rdb, ttl: cfg.TTL()}
}

// DefaultTTL reports the TTL applied when Set is given a zero duration.
func (c *Cache) DefaultTTL() time.Duration {
	return c.ttl
}

// Get looks up the raw JSON value for key. The boolean reports presence;
// backend errors count as absence.
func (c *Cache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logx.Warn().Err(err).Str("key", key).Msg("cache get failed, treating as miss")
			metrics.CacheErrors.WithLabelValues("get").Inc()
		}
		metrics.CacheMisses.WithLabelValues(Domain(key)).Inc()
		return nil, false
	}
	metrics.CacheHits.WithLabelValues(Domain(key)).Inc()
	return json.RawMessage(val), true
}

// GetJSON unmarshals the cached value for key into dst.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logx.Warn().Err(err).Str("key", key).Msg("cached value not decodable, treating as miss")
		return false
	}
	return true
}

// Set stores value under key. A zero ttl selects the configured default.
// Marshal or backend failures are logged and swallowed.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	b, err := json.Marshal(value)
	if err != nil {
		logx.Warn().Err(err).Str("key", key).Msg("cache value not marshalable, skipping set")
		return
	}
	if err := c.rdb.Set(ctx, key, b, ttl).Err(); err != nil {
		logx.Warn().Err(err).Str("key", key).Msg("cache set failed, continuing without cache")
		metrics.CacheErrors.WithLabelValues("set").Inc()
	}
}

// Invalidate deletes the given keys. Errors are logged and swallowed.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		logx.Warn().Err(err).Strs("keys", keys).Msg("cache invalidate failed")
		metrics.CacheErrors.WithLabelValues("del").Inc()
	}
}

// InvalidateIdentity removes every cached entry keyed to the identity: the
// fixed well-known keys plus a pattern sweep over parameterized query keys.
// Write paths over financial data must call this on success.
func (c *Cache) InvalidateIdentity(ctx context.Context, identity string) {
	keys := IdentityKeys(identity)

	for _, pattern := range IdentityPatterns(identity) {
		iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			logx.Warn().Err(err).Str("pattern", pattern).Msg("cache key sweep failed")
			metrics.CacheErrors.WithLabelValues("scan").Inc()
		}
	}

	c.Invalidate(ctx, keys...)
	logx.Debug().Str("identity", identity).Int("keys", len(keys)).Msg("invalidated cached entries for identity")
}
