package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLimiter struct {
	allowed    bool
	retryAfter time.Duration
	err        error
	keys       []string
}

func (s *stubLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	s.keys = append(s.keys, key)
	return s.allowed, s.retryAfter, s.err
}

func TestRateLimiter_TokenBucket(t *testing.T) {
	clock := time.Date(2026, 10, 14, 14, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := rl.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, wait, _ := rl.Allow(ctx, "10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, wait)

	ok, _, _ = rl.Allow(ctx, "10.0.0.2")
	assert.True(t, ok, "buckets are per client")

	clock = clock.Add(30 * time.Second)
	ok, _, _ = rl.Allow(ctx, "10.0.0.1")
	assert.True(t, ok)
}

func TestRedisRateLimiter_FixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := time.Date(2026, 10, 14, 14, 0, 15, 0, time.UTC)
	limiter := NewRedisRateLimiter(client, 2, time.Minute)
	limiter.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, wait, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 45*time.Second, wait)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.True(t, mr.TTL(keys[0]) > 0, "window key must expire")

	clock = clock.Add(time.Minute)
	ok, _, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok, "next window starts fresh")
}

func TestRedisRateLimiter_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, _, err := NewRedisRateLimiter(client, 2, time.Minute).Allow(context.Background(), "10.0.0.1")
	assert.Error(t, err)
}

func TestRateLimitMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("rejects over budget", func(t *testing.T) {
		limiter := &stubLimiter{retryAfter: 1500 * time.Millisecond}
		req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
		req.RemoteAddr = "192.0.2.7:5123"
		rec := httptest.NewRecorder()

		RateLimit(limiter, nil)(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), "Demasiadas solicitudes")
		assert.Equal(t, []string{"192.0.2.7"}, limiter.keys)
	})

	t.Run("prefers real ip header", func(t *testing.T) {
		limiter := &stubLimiter{allowed: true}
		req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
		req.Header.Set("X-Real-Ip", "203.0.113.9")
		rec := httptest.NewRecorder()

		RateLimit(limiter, nil)(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"203.0.113.9"}, limiter.keys)
	})

	t.Run("fails open", func(t *testing.T) {
		limiter := &stubLimiter{err: errors.New("redis down")}
		rec := httptest.NewRecorder()

		RateLimit(limiter, nil)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
