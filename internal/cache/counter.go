package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// 超出上限时不自增，返回 -1 与当前值
var incrWithinLimitScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local limit = tonumber(ARGV[1])
if limit > 0 and current >= limit then
	return {-1, current}
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return {1, current}
`)

// 计数为 0 时不再递减
var decrFloorScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current <= 0 then
	return 0
end
return redis.call("DECR", KEYS[1])
`)

// IncrWithinLimit 在上限内自增计数，返回是否成功与自增后的值
func IncrWithinLimit(ctx context.Context, key string, limit int64, ttl time.Duration) (bool, int64, error) {
	if !Enabled() {
		return false, 0, nil
	}
	res, err := incrWithinLimitScript.Run(ctx, redisClient, []string{buildKey(key)}, limit, int64(ttl.Seconds())).Int64Slice()
	if err != nil {
		return false, 0, err
	}
	if len(res) != 2 {
		return false, 0, nil
	}
	return res[0] == 1, res[1], nil
}

// GetCounter 读取计数
func GetCounter(ctx context.Context, key string) (int64, error) {
	if !Enabled() {
		return 0, nil
	}
	val, err := redisClient.Get(ctx, buildKey(key)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

// DecrCounter 归还一次计数，不会减到 0 以下
func DecrCounter(ctx context.Context, key string) (int64, error) {
	if !Enabled() {
		return 0, nil
	}
	return decrFloorScript.Run(ctx, redisClient, []string{buildKey(key)}).Int64()
}
