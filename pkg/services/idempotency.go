package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyCache deduplicates incident creation by caller-supplied key.
// Entries expire after a configured TTL. Cache failures are non-fatal; a
// miss is the worst outcome.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) (incidentID string, ok bool)
	Set(ctx context.Context, key, incidentID string)
}

const idempotencyPrefix = "pagerd:idempotency:"

// RedisIdempotencyCache stores keys in Redis so deduplication survives
// process restarts and spans replicas.
type RedisIdempotencyCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisIdempotencyCache creates a Redis-backed cache.
func NewRedisIdempotencyCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisIdempotencyCache {
	return &RedisIdempotencyCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisIdempotencyCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, idempotencyPrefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("idempotency cache read failed", slog.String("error", err.Error()))
		}
		return "", false
	}
	return val, true
}

func (c *RedisIdempotencyCache) Set(ctx context.Context, key, incidentID string) {
	if err := c.client.Set(ctx, idempotencyPrefix+key, incidentID, c.ttl).Err(); err != nil {
		c.logger.Warn("idempotency cache write failed", slog.String("error", err.Error()))
	}
}

// MemoryIdempotencyCache is the in-process fallback when no REDIS_URL is
// configured. Expired entries are pruned lazily on access.
type MemoryIdempotencyCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	clock   func() time.Time
}

type memoryEntry struct {
	incidentID string
	expiresAt  time.Time
}

// NewMemoryIdempotencyCache creates an in-process cache.
func NewMemoryIdempotencyCache(ttl time.Duration) *MemoryIdempotencyCache {
	return &MemoryIdempotencyCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source, for tests.
func (c *MemoryIdempotencyCache) SetClock(clock func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}

func (c *MemoryIdempotencyCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if !now.Before(entry.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return entry.incidentID, true
}

func (c *MemoryIdempotencyCache) Set(_ context.Context, key, incidentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = memoryEntry{incidentID: incidentID, expiresAt: now.Add(c.ttl)}
}
