// Package cache caches rendered report views in Redis and invalidates them
// when reports change. Caching is optional: a nil *Cache is a no-op, so the
// service layer never branches on whether Redis is configured.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// View cache keys. Submitting or updating a report invalidates both the
// civilian and admin views.
const (
	KeyViewCivilian = "views:civilian"
	KeyViewAdmin    = "views:admin"
)

// DefaultTTL bounds staleness when an invalidation is lost.
const DefaultTTL = 5 * time.Minute

// ErrMiss is returned when a key is absent.
var ErrMiss = errors.New("cache miss")

// Cache wraps a Redis client for view caching.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New connects to Redis using a redis:// URL and verifies the connection.
func New(redisURL string, logger *slog.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	logger.Info("connected to redis", "addr", opts.Addr)

	return &Cache{
		client: client,
		ttl:    DefaultTTL,
		logger: logger.With("component", "cache"),
	}, nil
}

// Get returns the cached bytes for key, or ErrMiss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if c == nil {
		return nil, ErrMiss
	}
	b, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, err
	}
	return b, nil
}

// Set stores value under key with the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	if c == nil {
		return nil
	}
	return c.client.Set(ctx, key, value, c.ttl).Err()
}

// InvalidateViews drops both view keys. Errors are logged, not returned:
// a failed invalidation must never fail the write that triggered it, and
// the TTL caps how stale the views can get.
func (c *Cache) InvalidateViews(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, KeyViewCivilian, KeyViewAdmin).Err(); err != nil {
		c.logger.Error("failed to invalidate view cache", "error", err)
	}
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
