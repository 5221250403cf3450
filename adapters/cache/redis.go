package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"factorcorr/domain/factor"
	"factorcorr/internal"
	"factorcorr/internal/config"
	"factorcorr/internal/metrics"
	"factorcorr/ports"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "factorcorr:prediction:"

// DefaultTTL applies when the configured TTL is zero
const DefaultTTL = 10 * time.Minute

// RedisCache stores prediction results as JSON strings with a TTL
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *internal.Logger
}

var _ ports.PredictionCache = (*RedisCache)(nil)

// NewRedisCache wraps an existing client
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *internal.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = internal.NopLogger()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger.WithField("component", "prediction_cache")}
}

// Connect dials redis from config and verifies the connection
func Connect(ctx context.Context, cfg config.RedisConfig, logger *internal.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewRedisCache(client, cfg.TTL, logger), nil
}

// Get returns nil, nil on a miss
func (c *RedisCache) Get(ctx context.Context, key string) (*factor.PredictionResult, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, nil
	}
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var result factor.PredictionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		// a corrupt entry is treated as a miss and evicted
		c.logger.WithError(err).Warn("dropping undecodable cache entry %s", key)
		c.client.Del(ctx, keyPrefix+key)
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, nil
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &result, nil
}

// Set stores a result under key for the configured TTL
func (c *RedisCache) Set(ctx context.Context, key string, result factor.PredictionResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode prediction: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the underlying client
func (c *RedisCache) Close() error {
	return c.client.Close()
}
