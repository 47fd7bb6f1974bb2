package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/artpar/linkhost/internal/core/proxy"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisBackend(client), mr
}

func TestRedisBackend_PositiveEntry(t *testing.T) {
	b, mr := setupTestRedis(t)
	ctx := context.Background()

	entry := Entry{Found: true, Route: proxy.Route{Hostname: "shop.example.com", DomainID: "cdom_1", DistributionID: "dist-1", LinkCode: "sale"}}
	require.NoError(t, b.Set(ctx, "shop.example.com", entry, time.Minute))

	assert.True(t, mr.Exists(KeyPrefix+"shop.example.com"))
	assert.Equal(t, time.Minute, mr.TTL(KeyPrefix+"shop.example.com"))

	got, ok, err := b.Get(ctx, "shop.example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, entry, got)
}

func TestRedisBackend_NegativeEntryExpires(t *testing.T) {
	b, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "unknown.example.com", Entry{}, 30*time.Second))

	raw, err := mr.Get(KeyPrefix + "unknown.example.com")
	require.NoError(t, err)
	assert.Equal(t, negativeValue, raw)

	got, ok, err := b.Get(ctx, "unknown.example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, got.Found)

	mr.FastForward(31 * time.Second)
	_, ok, err = b.Get(ctx, "unknown.example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisBackend_CorruptValue(t *testing.T) {
	b, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(KeyPrefix+"shop.example.com", "{not json"))

	_, ok, err := b.Get(context.Background(), "shop.example.com")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	client.Close()

	client, err = Connect(context.Background(), mr.Addr())
	require.NoError(t, err)
	client.Close()

	_, err = Connect(context.Background(), "redis://%zz")
	assert.Error(t, err)
}
