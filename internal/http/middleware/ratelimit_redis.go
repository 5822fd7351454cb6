package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter counts requests in fixed windows shared by every API
// replica.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	if client == nil {
		panic("middleware: redis client cannot be nil")
	}
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisRateLimiter{client: client, limit: limit, window: window, prefix: "ratelimit:chat", now: time.Now}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	slot := now.UnixNano() / int64(l.window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("middleware: rate limit incr: %w", err)
	}
	if incr.Val() <= int64(l.limit) {
		return true, 0, nil
	}
	windowEnd := time.Unix(0, (slot+1)*int64(l.window))
	return false, windowEnd.Sub(now), nil
}
