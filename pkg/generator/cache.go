package generator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// cache stores finished generations keyed by normalized question. Both
// implementations are best-effort: a miss or a storage error just costs a
// regeneration.
type cache interface {
	Get(ctx context.Context, key string) (*Result, bool)
	Set(ctx context.Context, key string, result *Result)
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func newRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *redisCache {
	return &redisCache{client: client, ttl: ttl, logger: logger}
}

func (c *redisCache) Get(ctx context.Context, key string) (*Result, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("sql cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.Warn("sql cache entry corrupt, ignoring", zap.Error(err))
		return nil, false
	}
	return &result, true
}

func (c *redisCache) Set(ctx context.Context, key string, result *Result) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("sql cache write failed", zap.Error(err))
	}
}

type memoryEntry struct {
	result    Result
	expiresAt time.Time
}

// memoryCache is the fallback when redis is not configured.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func newMemoryCache(ttl time.Duration) *memoryCache {
	return &memoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *memoryCache) Get(_ context.Context, key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	result := entry.result
	return &result, true
}

func (c *memoryCache) Set(_ context.Context, key string, result *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{result: *result, expiresAt: c.now().Add(c.ttl)}
}
