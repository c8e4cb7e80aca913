package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisSessionCacheLifecycle(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewRedisSessionCache(client, time.Second, false, zap.NewNop())
	ctx := context.Background()

	require.False(t, cache.Exists(ctx, "alice"))

	require.NoError(t, cache.SetActive(ctx, "alice", time.Hour))
	require.True(t, cache.Exists(ctx, "alice"))
	require.True(t, mr.Exists("sess:alice"))

	raw, err := mr.Get("sess:alice")
	require.NoError(t, err)
	require.JSONEq(t, `{"active":true}`, raw)
	require.Equal(t, time.Hour, mr.TTL("sess:alice"))

	require.NoError(t, cache.Remove(ctx, "alice"))
	require.False(t, cache.Exists(ctx, "alice"))
}

func TestRedisSessionCacheExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewRedisSessionCache(client, time.Second, false, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, cache.SetActive(ctx, "alice", time.Minute))
	mr.FastForward(time.Minute + time.Second)
	require.False(t, cache.Exists(ctx, "alice"))
}

func TestRedisSessionCacheUnreachableUsesDefault(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()

	open := NewRedisSessionCache(client, 100*time.Millisecond, true, zap.NewNop())
	require.True(t, open.Exists(context.Background(), "alice"))

	closed := NewRedisSessionCache(client, 100*time.Millisecond, false, zap.NewNop())
	require.False(t, closed.Exists(context.Background(), "alice"))

	require.Error(t, open.SetActive(context.Background(), "alice", time.Minute))
}

func TestRedisSessionCacheRejectsEmptySubject(t *testing.T) {
	_, client := newTestRedis(t)
	cache := NewRedisSessionCache(client, time.Second, true, zap.NewNop())

	require.Error(t, cache.SetActive(context.Background(), "", time.Minute))
	require.False(t, cache.Exists(context.Background(), ""))
	require.NoError(t, cache.Remove(context.Background(), ""))
}

func TestNoopSessionCache(t *testing.T) {
	cache := NewNoopSessionCache()
	ctx := context.Background()

	require.NoError(t, cache.SetActive(ctx, "alice", time.Minute))
	require.True(t, cache.Exists(ctx, "anyone"))
	require.NoError(t, cache.Remove(ctx, "alice"))
}
