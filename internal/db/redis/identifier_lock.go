package redisdb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	applog "dualstore/internal/platform/log"
)

const lockKeyPrefix = "athlete:lock:"

// 只删除自己持有的锁，避免 TTL 过期后误删他人的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// IdentifierLock 基于 Redis SETNX 的 Athlete_ID 分布式锁，
// 覆盖"唯一性检查 -> 双写"这段窗口。
type IdentifierLock struct {
	client redis.Cmdable
	ttl    time.Duration
	owner  string
}

// NewIdentifierLock 创建标识锁，ttl <= 0 时取 10s
func NewIdentifierLock(client redis.Cmdable, ttl time.Duration) *IdentifierLock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &IdentifierLock{
		client: client,
		ttl:    ttl,
		owner:  uuid.NewString(),
	}
}

// Acquire 获取锁。已被占用时返回 false, nil。
func (l *IdentifierLock) Acquire(ctx context.Context, id string) (bool, error) {
	key := lockKey(id)
	acquired, err := l.client.SetNX(ctx, key, l.owner, l.ttl).Result()
	if err != nil {
		applog.Warn("[IdentifierLock] Failed to acquire lock", "athlete_id", id, "error", err)
		return false, fmt.Errorf("acquire lock %s: %w", key, err)
	}

	if acquired {
		applog.Debug("[IdentifierLock] Lock acquired", "athlete_id", id)
	} else {
		applog.Debug("[IdentifierLock] Lock already held", "athlete_id", id)
	}
	return acquired, nil
}

// Release 释放锁
func (l *IdentifierLock) Release(ctx context.Context, id string) error {
	key := lockKey(id)
	if err := releaseScript.Run(ctx, l.client, []string{key}, l.owner).Err(); err != nil && err != redis.Nil {
		applog.Warn("[IdentifierLock] Failed to release lock", "athlete_id", id, "error", err)
		return fmt.Errorf("release lock %s: %w", key, err)
	}

	applog.Debug("[IdentifierLock] Lock released", "athlete_id", id)
	return nil
}

func lockKey(id string) string {
	return lockKeyPrefix + id
}
