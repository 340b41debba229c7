package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/photopixel/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisCache(client), mr
}

func testCart(ref domain.CartRef) *domain.Cart {
	cart := domain.NewCart(ref, time.Now())
	cart.Version = 3
	cart.Increment("cam-001", 2, decimal.RequireFromString("1299.99"), time.Now())
	cart.Increment("lens-002", 1, decimal.NewFromInt(500), time.Now())
	return cart
}

func TestGet_Success(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ref := domain.PersistentRef("user123")

	data, err := json.Marshal(testCart(ref))
	require.NoError(t, err)
	require.NoError(t, mr.Set(cacheKey(ref), string(data)))

	result, err := cache.Get(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "user123", result.OwnerID)
	assert.Equal(t, domain.CartKindPersistent, result.Kind)
	assert.Equal(t, int64(3), result.Version)
	require.Len(t, result.Lines, 2)
	assert.True(t, decimal.RequireFromString("1299.99").Equal(result.Lines[0].UnitPrice))
}

func TestGet_CacheMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	result, err := cache.Get(context.Background(), domain.PersistentRef("nonexistent"))

	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, result)
}

func TestGet_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ref := domain.PersistentRef("user123")
	require.NoError(t, mr.Set(cacheKey(ref), `{"owner_id":"us`))

	_, err := cache.Get(context.Background(), ref)

	require.ErrorContains(t, err, "unmarshal cart failed")
}

func TestSet_WithTTL(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ref := domain.BuyNowRef("user789")

	require.NoError(t, cache.Set(context.Background(), testCart(ref)))

	ttl := mr.TTL(cacheKey(ref))
	assert.True(t, ttl >= 15*time.Minute, "TTL should be at least base TTL")
	assert.True(t, ttl < 20*time.Minute, "TTL should be base + max jitter")
}

func TestSetIfAbsent_DoesNotOverwrite(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()
	ref := domain.PersistentRef("user123")

	newer := testCart(ref)
	newer.Version = 7
	require.NoError(t, cache.Set(ctx, newer))

	older := testCart(ref)
	older.Version = 2
	require.NoError(t, cache.SetIfAbsent(ctx, older))

	got, err := cache.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Version)
}

func TestSetIfAbsent_FillsMiss(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ref := domain.PersistentRef("user123")

	require.NoError(t, cache.SetIfAbsent(context.Background(), testCart(ref)))

	assert.True(t, mr.Exists(cacheKey(ref)))
}

func TestDelete_Success(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	ref := domain.PersistentRef("user123")
	require.NoError(t, cache.Set(ctx, testCart(ref)))

	require.NoError(t, cache.Delete(ctx, ref))

	assert.False(t, mr.Exists(cacheKey(ref)))
	require.NoError(t, cache.Delete(ctx, ref))
}

func TestCacheKey_SeparatesKinds(t *testing.T) {
	assert.Equal(t, "cart:persistent:u1", cacheKey(domain.PersistentRef("u1")))
	assert.Equal(t, "cart:buy_now:u1", cacheKey(domain.BuyNowRef("u1")))
}

func TestRedisDown_ReturnsError(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	_, err := cache.Get(context.Background(), domain.PersistentRef("user123"))

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}
