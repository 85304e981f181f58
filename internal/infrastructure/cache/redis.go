package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"loyaltysystem/internal/config"

	"github.com/go-redis/redis/v8"
)

const pingTimeout = 5 * time.Second

// NewRedis 创建 Redis 客户端并检查连通性
// 账本不在 Redis 里保存任何状态，只用它做多实例后台任务的互斥
func NewRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	opts := options(cfg)
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis %s 失败: %w", opts.Addr, err)
	}

	log.Printf("[Redis] 连接成功: addr=%s, db=%d", opts.Addr, opts.DB)
	return client, nil
}

func options(cfg *config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  pingTimeout,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
}
