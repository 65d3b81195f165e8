package authz

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client), mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "user:permissions:1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cache.Set(ctx, "user:permissions:1", []byte(`{"leave.read":true}`), time.Hour))

	payload, ok, err := cache.Get(ctx, "user:permissions:1")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"leave.read":true}`, string(payload))
}

func TestRedisCacheSetAppliesTTL(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "user:permissions:2", []byte(`{}`), time.Hour))
	require.Equal(t, time.Hour, mr.TTL("user:permissions:2"))

	mr.FastForward(2 * time.Hour)
	_, ok, err := cache.Get(ctx, "user:permissions:2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCacheDelete(t *testing.T) {
	cache, _ := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "user:permissions:3", []byte(`{}`), time.Hour))
	require.NoError(t, cache.Delete(ctx, "user:permissions:3"))

	_, ok, err := cache.Get(ctx, "user:permissions:3")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCacheDeleteByPrefix(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	// More keys than one SCAN batch to exercise cursor iteration.
	for i := 0; i < 600; i++ {
		require.NoError(t, cache.Set(ctx, fmt.Sprintf("user:permissions:%d", i), []byte(`{}`), time.Hour))
	}
	require.NoError(t, cache.Set(ctx, "session:42", []byte("keep"), time.Hour))

	require.NoError(t, cache.DeleteByPrefix(ctx, "user:permissions:"))

	for i := 0; i < 600; i++ {
		require.False(t, mr.Exists(fmt.Sprintf("user:permissions:%d", i)))
	}
	require.True(t, mr.Exists("session:42"))
}

func TestRedisCacheReportsServerErrors(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()
	mr.Close()

	_, _, err := cache.Get(ctx, "user:permissions:1")
	require.Error(t, err)
	require.Error(t, cache.Set(ctx, "user:permissions:1", []byte(`{}`), time.Hour))
	require.Error(t, cache.Delete(ctx, "user:permissions:1"))
	require.Error(t, cache.DeleteByPrefix(ctx, "user:permissions:"))
}

func TestRedisCacheNilClientActsAsMiss(t *testing.T) {
	cache := NewRedisCache(nil)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "anything")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, cache.Set(ctx, "anything", []byte(`{}`), time.Hour))
	require.NoError(t, cache.Delete(ctx, "anything"))
	require.NoError(t, cache.DeleteByPrefix(ctx, "any"))
}
