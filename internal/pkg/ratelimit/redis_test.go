package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisLimiter(t *testing.T, max int, period time.Duration) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisLimiter(client, "test", max, period), mr
}

func TestRedisLimiter_Window(t *testing.T) {
	limiter, mr := setupRedisLimiter(t, 10, time.Minute)

	for i := 0; i < 10; i++ {
		assert.True(t, limiter.Allow("user:1"), "call %d should pass", i+1)
	}
	assert.False(t, limiter.Allow("user:1"))
	assert.Equal(t, 0, limiter.Remaining("user:1"))
	assert.True(t, limiter.ResetTime("user:1").After(time.Now()))

	mr.FastForward(time.Minute)

	assert.True(t, limiter.Allow("user:1"))
	assert.Equal(t, 9, limiter.Remaining("user:1"))
}

func TestRedisLimiter_SharedAcrossInstances(t *testing.T) {
	limiter, mr := setupRedisLimiter(t, 2, time.Minute)

	other := NewRedisLimiter(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test", 2, time.Minute)

	assert.True(t, limiter.Allow("ip"))
	assert.True(t, other.Allow("ip"))
	assert.False(t, limiter.Allow("ip"))
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	limiter, mr := setupRedisLimiter(t, 1, time.Minute)
	mr.Close()

	assert.True(t, limiter.Allow("k"))
	assert.True(t, limiter.Allow("k"))
	assert.Equal(t, 1, limiter.Remaining("k"))
}

func TestRedisLimiter_UnknownKey(t *testing.T) {
	limiter, _ := setupRedisLimiter(t, 5, time.Minute)

	assert.Equal(t, 5, limiter.Remaining("nobody"))
	assert.WithinDuration(t, time.Now(), limiter.ResetTime("nobody"), time.Second)
}

func TestRedisLimiter_WindowStartsAtFirstHit(t *testing.T) {
	limiter, mr := setupRedisLimiter(t, 3, time.Minute)
	key := "ratelimit:test:ip"

	assert.True(t, limiter.Allow("ip"))
	assert.Equal(t, time.Minute, mr.TTL(key))

	// 后续命中不会延长窗口
	mr.FastForward(30 * time.Second)
	assert.True(t, limiter.Allow("ip"))
	assert.Equal(t, 30*time.Second, mr.TTL(key))
}

func TestRedisLimiter_RepairsKeyWithoutExpiry(t *testing.T) {
	limiter, mr := setupRedisLimiter(t, 3, time.Minute)
	key := "ratelimit:test:ip"

	// 没有过期时间的计数
	require.NoError(t, mr.Set(key, "1"))
	assert.Equal(t, time.Duration(0), mr.TTL(key))

	assert.True(t, limiter.Allow("ip"))
	assert.Equal(t, time.Minute, mr.TTL(key))

	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}
