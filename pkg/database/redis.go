package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/meridianmed/insight-engine/pkg/config"
)

// NewRedisClient creates a Redis client for the generated-SQL cache.
// Returns nil if Redis is not configured (host is empty); callers fall
// back to the in-memory cache.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg.Host == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return client, nil
}
