package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()

	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	opt, err := redis.ParseURL(url)
	require.NoError(t, err)

	c := NewWithClient(redis.NewClient(opt), time.Minute)
	require.NoError(t, c.HealthCheck(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	type entry struct {
		Rows int `json:"rows"`
	}

	var got entry
	assert.ErrorIs(t, c.Get(ctx, "cache_test:absent", &got), ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "cache_test:a", entry{Rows: 3}))
	require.NoError(t, c.Set(ctx, "cache_test:b", entry{Rows: 4}, time.Second))
	require.NoError(t, c.Get(ctx, "cache_test:a", &got))
	assert.Equal(t, 3, got.Rows)

	require.NoError(t, c.client.Set(ctx, "cache_test:c", "{", time.Minute).Err())
	assert.ErrorIs(t, c.Get(ctx, "cache_test:c", &got), ErrCacheCorrupt)
	require.NoError(t, c.Delete(ctx, "cache_test:c"))
	assert.ErrorIs(t, c.Get(ctx, "cache_test:c", &got), ErrCacheMiss)

	deleted, err := c.DeletePattern(ctx, "cache_test:*")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	deleted, err = c.DeletePattern(ctx, "cache_test:*")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
