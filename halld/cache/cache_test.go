package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/studyhall/studyhall/halld/cache"
)

func newRedisCache(t *testing.T) cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedis("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c
}

func TestRedisCache(t *testing.T) {
	t.Parallel()

	t.Run("RoundTrip", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		c := newRedisCache(t)

		type snapshot struct {
			Tag     string `json:"tag"`
			Elapsed int64  `json:"elapsed"`
		}
		err := c.Set(ctx, "active:abc", snapshot{Tag: "Math", Elapsed: 42}, time.Minute)
		require.NoError(t, err)

		var got snapshot
		ok, err := c.Get(ctx, "active:abc", &got)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, snapshot{Tag: "Math", Elapsed: 42}, got)
	})

	t.Run("Miss", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		c := newRedisCache(t)

		var got map[string]interface{}
		ok, err := c.Get(ctx, "missing", &got)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		c := newRedisCache(t)

		require.NoError(t, c.Set(ctx, "room:ABC123", "snapshot", time.Minute))
		require.NoError(t, c.Delete(ctx, "room:ABC123", "room:NOPE"))

		var got string
		ok, err := c.Get(ctx, "room:ABC123", &got)
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestNoopCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := cache.NewNoop()

	require.NoError(t, c.Set(ctx, "key", "value", time.Minute))
	var got string
	ok, err := c.Get(ctx, "key", &got)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, c.Delete(ctx, "key"))
	require.NoError(t, c.Close())
}
