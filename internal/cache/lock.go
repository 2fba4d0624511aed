package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TryLock 尝试获取分布式锁，成功时返回释放函数。
// 未启用 Redis 时视为获取成功，由数据库条件更新兜底。
func TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if !Enabled() {
		return func() {}, true, nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	fullKey := buildKey("lock:" + key)
	token := uuid.NewString()
	ok, err := redisClient.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = releaseLockScript.Run(releaseCtx, redisClient, []string{fullKey}, token).Err()
	}
	return release, true, nil
}
