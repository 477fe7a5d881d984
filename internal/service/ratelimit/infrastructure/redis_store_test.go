package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/pkg/redis"
	"storefront/internal/service/ratelimit/domain"
)

func newRedisStore(t *testing.T) (*RedisCounterStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewFromUniversal(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisCounterStore(client, 24*time.Hour)
	require.NoError(t, err)
	return store, mr
}

func TestRedisStoreFixedWindow(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	p := domain.Policy{Ceiling: 2, Window: time.Minute}
	t0 := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	d, err := store.Consume(ctx, "lookup:1.2.3.4", t0, 1, p)
	require.NoError(t, err)
	assert.True(t, d.OK)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, t0.Add(time.Minute), d.ResetAt)

	d, err = store.Consume(ctx, "lookup:1.2.3.4", t0.Add(time.Second), 1, p)
	require.NoError(t, err)
	assert.True(t, d.OK)

	d, err = store.Consume(ctx, "lookup:1.2.3.4", t0.Add(2*time.Second), 1, p)
	require.NoError(t, err)
	assert.False(t, d.OK)
	assert.Equal(t, 58*time.Second, d.RetryAfter)

	// 拒绝不会累加
	count := mr.HGet("ratelimit:{lookup:1.2.3.4}", "count")
	assert.Equal(t, "2", count)
	assert.Equal(t, 24*time.Hour, mr.TTL("ratelimit:{lookup:1.2.3.4}"))

	d, err = store.Consume(ctx, "lookup:1.2.3.4", t0.Add(time.Minute), 1, p)
	require.NoError(t, err)
	assert.True(t, d.OK)
	assert.Equal(t, t0.Add(2*time.Minute), d.ResetAt)

	n, err := store.Purge(ctx, t0)
	require.NoError(t, err)
	assert.Zero(t, n)
}
