package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"ideabox/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aggregateCaches(t *testing.T) map[string]AggregateCache {
	local, err := NewLocalAggregateCache(16, time.Minute)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]AggregateCache{
		"local": local,
		"redis": NewRedisAggregateCache(client, time.Minute),
	}
}

func TestAggregateCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, cache := range aggregateCaches(t) {
		t.Run(name, func(t *testing.T) {
			_, gen, ok, err := cache.Get(ctx, 7)
			require.NoError(t, err)
			assert.False(t, ok)

			want := models.VoteTotals{AgreeCount: 3, DisagreeCount: 1}
			require.NoError(t, cache.Set(ctx, 7, gen, want))

			got, _, ok, err := cache.Get(ctx, 7)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, want, got)
		})
	}
}

func TestAggregateCacheDropsStaleSet(t *testing.T) {
	ctx := context.Background()
	for name, cache := range aggregateCaches(t) {
		t.Run(name, func(t *testing.T) {
			// 读者在投票之前拿到了 generation
			_, gen, _, err := cache.Get(ctx, 9)
			require.NoError(t, err)

			require.NoError(t, cache.Invalidate(ctx, 9))
			require.NoError(t, cache.Set(ctx, 9, gen, models.VoteTotals{AgreeCount: 1}))

			_, newGen, ok, err := cache.Get(ctx, 9)
			require.NoError(t, err)
			assert.False(t, ok, "stale totals must not be served")
			assert.NotEqual(t, gen, newGen)
		})
	}
}

func TestAggregateCacheInvalidateIsPerIdea(t *testing.T) {
	ctx := context.Background()
	for name, cache := range aggregateCaches(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []uint{1, 2} {
				_, gen, _, err := cache.Get(ctx, id)
				require.NoError(t, err)
				require.NoError(t, cache.Set(ctx, id, gen, models.VoteTotals{AgreeCount: int64(id)}))
			}
			require.NoError(t, cache.Invalidate(ctx, 1))

			_, _, ok, err := cache.Get(ctx, 1)
			require.NoError(t, err)
			assert.False(t, ok)

			got, _, ok, err := cache.Get(ctx, 2)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.EqualValues(t, 2, got.AgreeCount)
		})
	}
}

func TestBrokerSubscribeCancel(t *testing.T) {
	cache, err := NewLocalAggregateCache(16, time.Minute)
	require.NoError(t, err)
	b := NewAggregateBroker(cache)
	b.SetSource(func(context.Context, uint) (models.VoteTotals, error) {
		return models.VoteTotals{AgreeCount: 4}, nil
	})

	ch, cancel := b.Subscribe(5)
	assert.True(t, b.hasSubscribers(5))

	b.publish(5, models.VoteTotals{AgreeCount: 1})
	b.publish(5, models.VoteTotals{AgreeCount: 2})
	// 只保留最新值
	assert.EqualValues(t, 2, (<-ch).AgreeCount)

	cancel()
	cancel()
	assert.False(t, b.hasSubscribers(5))
	_, open := <-ch
	assert.False(t, open)

	totals, err := b.Totals(context.Background(), 5)
	require.NoError(t, err)
	assert.EqualValues(t, 4, totals.AgreeCount)
}

func TestLocalAggregateCacheBoundsGenerations(t *testing.T) {
	ctx := context.Background()
	cache, err := NewLocalAggregateCache(2, time.Minute)
	require.NoError(t, err)

	_, gen, _, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, 1))
	// 大量其他想法的投票把 1 的 generation 挤出去
	for id := uint(2); id <= 40; id++ {
		require.NoError(t, cache.Invalidate(ctx, id))
	}
	assert.LessOrEqual(t, cache.gens.Len(), 8)

	require.NoError(t, cache.Set(ctx, 1, gen, models.VoteTotals{AgreeCount: 1}))
	_, _, ok, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "totals read before the vote must not be stored")
}

// failingInvalidate wraps a cache whose reads keep working while invalidation fails.
type failingInvalidate struct {
	AggregateCache
	fail atomic.Bool
}

func (c *failingInvalidate) Invalidate(ctx context.Context, ideaIDs ...uint) error {
	if c.fail.Load() {
		return errors.New("connection reset")
	}
	return c.AggregateCache.Invalidate(ctx, ideaIDs...)
}

func TestBrokerReadsThroughAfterFailedInvalidate(t *testing.T) {
	ctx := context.Background()
	for name, inner := range aggregateCaches(t) {
		t.Run(name, func(t *testing.T) {
			cache := &failingInvalidate{AggregateCache: inner}
			b := NewAggregateBroker(cache)
			var agree atomic.Int64
			agree.Store(1)
			b.SetSource(func(context.Context, uint) (models.VoteTotals, error) {
				return models.VoteTotals{AgreeCount: agree.Load()}, nil
			})

			totals, err := b.Totals(ctx, 3)
			require.NoError(t, err)
			assert.EqualValues(t, 1, totals.AgreeCount)

			// 投票已提交, 但缓存失效失败
			agree.Store(2)
			cache.fail.Store(true)
			assert.Error(t, b.Invalidate(ctx, 3))

			totals, err = b.Totals(ctx, 3)
			require.NoError(t, err)
			assert.EqualValues(t, 2, totals.AgreeCount)

			b.retryStale(ctx)
			assert.True(t, b.isStale(3), "still failing")

			cache.fail.Store(false)
			b.retryStale(ctx)
			assert.False(t, b.isStale(3))

			totals, err = b.Totals(ctx, 3)
			require.NoError(t, err)
			assert.EqualValues(t, 2, totals.AgreeCount)

			// 恢复后重新走缓存
			agree.Store(5)
			totals, err = b.Totals(ctx, 3)
			require.NoError(t, err)
			assert.EqualValues(t, 2, totals.AgreeCount)
		})
	}
}
