package ratelimit

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

const redisTimeout = 500 * time.Millisecond

// incrScript 计数与设置过期时间在同一个脚本内执行，key 不会遗留为永不过期
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 or redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisLimiter 多副本共享计数：窗口内首次命中时设置过期时间，窗口结束后计数自然清零。
// Redis 不可用时放行，限流只用于防刷，不能因此拒绝正常请求。
type RedisLimiter struct {
	client *redis.Client
	prefix string
	max    int
	period time.Duration
}

func NewRedisLimiter(client *redis.Client, prefix string, max int, period time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		max:    max,
		period: period,
	}
}

func (l *RedisLimiter) key(key string) string {
	return "ratelimit:" + l.prefix + ":" + key
}

func (l *RedisLimiter) Allow(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	k := l.key(key)
	count, err := incrScript.Run(ctx, l.client, []string{k}, l.period.Milliseconds()).Int64()
	if err != nil {
		log.Error().Err(err).Str("key", k).Msg("rate limiter incr failed")
		return true
	}

	return count <= int64(l.max)
}

func (l *RedisLimiter) Remaining(key string) int {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	count, err := l.client.Get(ctx, l.key(key)).Int()
	if err == redis.Nil {
		return l.max
	}
	if err != nil {
		return l.max
	}
	if count >= l.max {
		return 0
	}
	return l.max - count
}

func (l *RedisLimiter) ResetTime(key string) time.Time {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	now := time.Now()
	ttl, err := l.client.PTTL(ctx, l.key(key)).Result()
	if err != nil || ttl <= 0 {
		return now
	}
	return now.Add(ttl)
}
