package lock

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// Redis 分布式锁
// ============================================================================
//
// 账本本身的并发安全完全依赖数据库行锁和条件更新，这里的锁只用于
// 协调多实例部署下的后台任务（例如过期交易码清理），避免每个实例
// 在同一时刻都去扫描同一批数据。
//
// 加锁：SET key value NX PX timeout
// 释放：Lua 脚本校验 value 后再删除，防止误删别人的锁
//
// ============================================================================

const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// DistributedLock 分布式锁
type DistributedLock struct {
	client     redis.Cmdable
	key        string
	value      string // 锁持有者标识
	expiration time.Duration
}

// NewDistributedLock 创建分布式锁，value 用于标识持有者
func NewDistributedLock(client redis.Cmdable, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// NewSweepLock 过期交易码清理任务的锁，每次调用生成新的持有者标识
func NewSweepLock(client redis.Cmdable, expiration time.Duration) *DistributedLock {
	return NewDistributedLock(client, "stampcode:sweep:lock", uuid.NewString(), expiration)
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Unlock 释放锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Err()
}
