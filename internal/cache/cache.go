// Package cache stores computed backtest responses in Redis, keyed by a
// hash of the request that produced them
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/rebalance/internal/config"
	"github.com/ajitpratap0/rebalance/internal/metrics"
)

// KeyPrefix namespaces every key written by ResultCache
const KeyPrefix = "rebalance:result:"

// ResultCache is a JSON cache over Redis with a fixed TTL
type ResultCache struct {
	redis *metrics.RedisMetrics
	ttl   time.Duration
}

// New wraps an existing client
func New(client *redis.Client, ttl time.Duration) *ResultCache {
	return &ResultCache{
		redis: metrics.NewRedisMetrics(client),
		ttl:   ttl,
	}
}

// NewFromConfig connects to Redis and verifies the connection
func NewFromConfig(ctx context.Context, cfg config.RedisConfig) (*ResultCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.GetRedisAddr(), err)
	}

	log.Info().
		Str("addr", cfg.GetRedisAddr()).
		Dur("ttl", cfg.GetResultTTL()).
		Msg("Result cache connected")

	return New(client, cfg.GetResultTTL()), nil
}

// Key derives a cache key from kind and the JSON encoding of request.
// Equal requests produce equal keys.
func Key(kind string, request interface{}) (string, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key: %w", err)
	}
	sum := sha256.Sum256(data)
	return KeyPrefix + kind + ":" + hex.EncodeToString(sum[:]), nil
}

// Get decodes the cached value for key into dest. The boolean is false on
// a miss.
func (c *ResultCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		// A corrupt entry is treated as a miss and evicted
		log.Warn().Err(err).Str("key", key).Msg("Discarding undecodable cache entry")
		_ = c.redis.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

// Set encodes value as JSON and stores it under key
func (c *ResultCache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	if err := c.redis.Set(ctx, key, data, c.ttl); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Invalidate removes keys from the cache
func (c *ResultCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...)
}

// Ping checks the connection
func (c *ResultCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx)
}

// Stats returns hit and miss counts
func (c *ResultCache) Stats() (hits, misses int64) {
	return c.redis.Stats()
}

// Close closes the underlying client
func (c *ResultCache) Close() error {
	return c.redis.Client().Close()
}
