package api

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterAllow(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		keys     []string
		expected []bool
	}{
		{"within limit", 2, []string{"1.1.1.1", "1.1.1.1"}, []bool{true, true}},
		{"exceed limit", 1, []string{"1.1.1.1", "1.1.1.1"}, []bool{true, false}},
		{"separate keys", 1, []string{"1.1.1.1", "2.2.2.2"}, []bool{true, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			l := NewMemoryLimiter(tt.limit, time.Minute)
			l.now = func() time.Time { return now }
			for i, key := range tt.keys {
				d, err := l.Allow(context.Background(), key)
				require.NoError(t, err)
				assert.Equal(t, tt.expected[i], d.Allowed, "attempt %d", i+1)
			}
		})
	}
}

func TestMemoryLimiterRefillAndRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(2, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "ip")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 30*time.Second, d.RetryAfter)

	// A denied check must not consume future capacity.
	now = now.Add(30 * time.Second)
	d, err = l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemoryLimiterCleanup(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(5, time.Second)
	l.now = func() time.Time { return now }

	_, _ = l.Allow(context.Background(), "a")
	_, _ = l.Allow(context.Background(), "b")
	assert.Zero(t, l.Cleanup())

	now = now.Add(2 * time.Second)
	assert.Equal(t, 2, l.Cleanup())
}

func TestMemoryLimiterConcurrent(t *testing.T) {
	l := NewMemoryLimiter(3, time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Allow(context.Background(), "same")
			if err == nil && d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, allowed)
}

func TestRedisLimiter(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping integration test")
	}

	prefix := "test:smart-todos:login:"
	defer client.Del(ctx, prefix+"ip", prefix+"ip:counter", prefix+"other", prefix+"other:counter")

	l := NewRedisLimiter(client, 3, time.Minute, prefix)
	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "ip")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 3-i-1, d.Remaining)
	}

	d, err := l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Positive(t, d.RetryAfter)

	d, err = l.Allow(ctx, "other")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
