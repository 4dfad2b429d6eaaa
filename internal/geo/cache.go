package geo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores resolved countries by IP.
type Cache interface {
	Get(ctx context.Context, ip string) (string, bool)
	Set(ctx context.Context, ip, country string, ttl time.Duration) error
}

type memoryEntry struct {
	country   string
	expiresAt time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, ip string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[ip]
	if !ok {
		return "", false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, ip)
		return "", false
	}
	return e.country, true
}

func (c *MemoryCache) Set(_ context.Context, ip, country string, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[ip] = memoryEntry{country: country, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// RedisCache shares resolved countries between broker instances.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func cacheKey(ip string) string {
	return "geo:country:" + ip
}

func (c *RedisCache) Get(ctx context.Context, ip string) (string, bool) {
	country, err := c.client.Get(ctx, cacheKey(ip)).Result()
	if err != nil {
		return "", false
	}
	return country, true
}

func (c *RedisCache) Set(ctx context.Context, ip, country string, ttl time.Duration) error {
	if err := c.client.Set(ctx, cacheKey(ip), country, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// NewCache returns a RedisCache when addr is set and reachable, and a
// MemoryCache otherwise. The returned close func releases the Redis client.
func NewCache(ctx context.Context, addr string, logger *slog.Logger) (Cache, func() error) {
	noop := func() error { return nil }
	if addr == "" {
		return NewMemoryCache(), noop
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-memory geo cache", "addr", addr, "err", err)
		if cerr := client.Close(); cerr != nil && !errors.Is(cerr, redis.ErrClosed) {
			logger.Debug("closing redis client", "err", cerr)
		}
		return NewMemoryCache(), noop
	}

	logger.Info("using redis geo cache", "addr", addr)
	return NewRedisCache(client), client.Close
}
