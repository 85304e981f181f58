package job

import (
	"context"
	"log"
	"time"

	"loyaltysystem/internal/config"
	"loyaltysystem/internal/infrastructure/lock"

	"github.com/go-redis/redis/v8"
)

// Sweeper 过期交易码清理
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Locker 多实例之间互斥的锁
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// StampCodeSweepJob 定时把过期未使用的交易码置为 expired
//
// 清理本身是幂等的条件更新，多个实例同时执行也不会出错；
// 分布式锁只是避免所有实例在同一时刻重复扫描
type StampCodeSweepJob struct {
	sweeper  Sweeper
	newLock  func() Locker
	stopCh   chan struct{}
	interval time.Duration
}

// NewStampCodeSweepJob redisClient 为 nil 时不加锁，适用于单实例部署
func NewStampCodeSweepJob(sweeper Sweeper, redisClient redis.Cmdable, cfg *config.Config) *StampCodeSweepJob {
	interval := cfg.Business.SweepInterval()
	j := &StampCodeSweepJob{
		sweeper:  sweeper,
		stopCh:   make(chan struct{}),
		interval: interval,
	}
	if redisClient != nil {
		j.newLock = func() Locker {
			return lock.NewSweepLock(redisClient, interval)
		}
	}
	return j
}

func (j *StampCodeSweepJob) Start(ctx context.Context) {
	log.Println("[StampCodeSweepJob] 过期交易码清理任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[StampCodeSweepJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[StampCodeSweepJob] 任务停止")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *StampCodeSweepJob) Stop() {
	close(j.stopCh)
}

// sweep 执行一轮清理，返回本轮置为过期的数量；没拿到锁时跳过
func (j *StampCodeSweepJob) sweep(ctx context.Context) int64 {
	if j.newLock != nil {
		l := j.newLock()
		ok, err := l.TryLock(ctx)
		if err != nil {
			log.Printf("[StampCodeSweepJob] 获取锁失败: %v", err)
			return 0
		}
		if !ok {
			return 0
		}
		defer func() {
			if err := l.Unlock(ctx); err != nil {
				log.Printf("[StampCodeSweepJob] 释放锁失败: %v", err)
			}
		}()
	}

	count, err := j.sweeper.SweepExpired(ctx)
	if err != nil {
		log.Printf("[StampCodeSweepJob] 清理失败: %v", err)
		return 0
	}
	if count > 0 {
		log.Printf("[StampCodeSweepJob] 本次过期 %d 个交易码", count)
	}
	return count
}
