// Package cache provides the Redis-backed location-count cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/config"
	"github.com/sells-group/lead-pipeline/internal/metrics"
	"github.com/sells-group/lead-pipeline/pkg/google"
)

// Connect opens a Redis client from cfg. It returns nil when no URL is
// configured.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, eris.Wrap(err, "cache: parse redis url")
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrap(err, "cache: redis ping")
	}
	return client, nil
}

// KV is the subset of *redis.Client used by the cache.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// LocationCache stores brand location estimates in Redis as JSON.
type LocationCache struct {
	kv      KV
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewLocationCache returns a cache writing entries with ttl. m may be nil.
func NewLocationCache(kv KV, ttl time.Duration, m *metrics.Metrics) *LocationCache {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &LocationCache{kv: kv, ttl: ttl, metrics: m}
}

// Get returns the cached estimate for key. Redis errors count as a miss.
func (c *LocationCache) Get(ctx context.Context, key string) (google.BrandLocations, bool) {
	var v google.BrandLocations

	raw, err := c.kv.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Debug("cache: get failed", zap.String("key", key), zap.Error(err))
		}
		c.metrics.CacheResult(false)
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		zap.L().Debug("cache: decode failed", zap.String("key", key), zap.Error(err))
		c.metrics.CacheResult(false)
		return v, false
	}

	c.metrics.CacheResult(true)
	return v, true
}

// Set stores v under key. Failures are logged and dropped.
func (c *LocationCache) Set(ctx context.Context, key string, v google.BrandLocations) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.kv.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		zap.L().Debug("cache: set failed", zap.String("key", key), zap.Error(err))
	}
}
