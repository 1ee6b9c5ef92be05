package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCacheBasics(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "job-1", map[string]any{"stage": "uploaded", "files": float64(3)}, 0))

	got, err := c.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "uploaded", got["stage"])
	assert.Equal(t, float64(3), got["files"])

	require.NoError(t, c.Update(ctx, "job-1", map[string]any{"stage": "outlined"}))
	got, err = c.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "outlined", got["stage"])
	assert.Equal(t, float64(3), got["files"])

	require.NoError(t, c.Delete(ctx, "job-1"))
	_, err = c.Get(ctx, "job-1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Get(ctx, "never-set")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, c.Update(ctx, "never-set", map[string]any{"a": 1}), ErrNotFound)
}

func TestMemoryCache_Basics(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	testCacheBasics(t, c)
}

func TestMemoryCache_TTL(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", map[string]any{"a": "b"}, 10*time.Millisecond))
	_, err := c.Get(ctx, "short")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCache_GetReturnsCopy(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "job", map[string]any{"stage": "uploaded"}, 0))

	got, err := c.Get(ctx, "job")
	require.NoError(t, err)
	got["stage"] = "mutated"

	again, err := c.Get(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, "uploaded", again["stage"])
}

func TestRedisCache_Basics(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	c := NewRedisCache(RedisOptions{Addr: mr.Addr()})
	defer c.Close()
	testCacheBasics(t, c)
}

func TestRedisCache_TTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	c := NewRedisCache(RedisOptions{Addr: mr.Addr()})
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", map[string]any{"a": "b"}, time.Minute))

	// miniredis advances time manually
	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisCache_UpdatePreservesTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	c := NewRedisCache(RedisOptions{Addr: mr.Addr()})
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "job", map[string]any{"stage": "uploaded"}, time.Hour))
	require.NoError(t, c.Update(ctx, "job", map[string]any{"stage": "outlined"}))

	ttl := mr.TTL("blogforge:job:job")
	assert.Greater(t, ttl, time.Duration(0))
}
