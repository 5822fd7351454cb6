package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores lookup results as JSON.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache returns nil when client is nil; a nil cache misses on every
// read and drops writes.
func NewRedisCache(client *redis.Client) *RedisCache {
	if client == nil {
		return nil
	}
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]Study, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("catalog: cache get: %w", err)
	}
	var studies []Study
	if err := json.Unmarshal(data, &studies); err != nil {
		return nil, false, fmt.Errorf("catalog: cache decode: %w", err)
	}
	return studies, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, studies []Study, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(studies)
	if err != nil {
		return fmt.Errorf("catalog: cache encode: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("catalog: cache set: %w", err)
	}
	return nil
}
