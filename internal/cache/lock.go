package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockNotHeld 锁已过期或被他人持有
var ErrLockNotHeld = errors.New("lock not held")

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// TryLock 以 token 抢占分布式锁，未启用 Redis 时返回 false
func TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if !Enabled() {
		return false, nil
	}
	return redisClient.SetNX(ctx, buildKey(key), token, ttl).Result()
}

// RefreshLock 续期，仅 token 匹配时生效
func RefreshLock(ctx context.Context, key, token string, ttl time.Duration) error {
	if !Enabled() {
		return ErrLockNotHeld
	}
	res, err := refreshLockScript.Run(ctx, redisClient, []string{buildKey(key)}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if res == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Unlock 释放锁，仅 token 匹配时删除
func Unlock(ctx context.Context, key, token string) error {
	if !Enabled() {
		return nil
	}
	res, err := releaseLockScript.Run(ctx, redisClient, []string{buildKey(key)}, token).Int64()
	if err != nil {
		return err
	}
	if res == 0 {
		return ErrLockNotHeld
	}
	return nil
}
