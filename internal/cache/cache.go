// Package cache is a thin best-effort Redis layer for sweep health and
// compliance snapshots. Every failure is returned to the caller to log and
// ignore; nothing in the engine depends on a cache hit.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client with JSON marshalling and a key prefix.
type Cache struct {
	client     *redis.Client
	keyPrefix  string
	defaultTTL time.Duration
}

// Config defines the cache connection settings.
type Config struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	DefaultTTL time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}

	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "opsdesk"
	}
	return &Cache{client: client, keyPrefix: prefix, defaultTTL: ttl}, nil
}

// Set stores a JSON-encoded value under the prefixed key.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value %s: %w", key, err)
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, c.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Get loads a JSON-encoded value. Returns false on a miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("unmarshal cache value %s: %w", key, err)
	}
	return true, nil
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) key(key string) string {
	return c.keyPrefix + ":" + key
}
