package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loyaltysystem/internal/config"
	"loyaltysystem/internal/handler"
	"loyaltysystem/internal/infrastructure/cache"
	"loyaltysystem/internal/infrastructure/database"
	"loyaltysystem/internal/infrastructure/mq"
	"loyaltysystem/internal/job"
	"loyaltysystem/internal/repository"
	"loyaltysystem/internal/service"
	"loyaltysystem/pkg/clock"
	"loyaltysystem/pkg/idgen"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		log.Fatalf("初始化ID生成器失败: %v", err)
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("连接数据库失败: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	redisClient, err := cache.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("连接Redis失败: %v", err)
	}
	defer redisClient.Close()

	producer, err := mq.NewKafkaProducer(&cfg.Kafka)
	if err != nil {
		log.Fatalf("连接Kafka失败: %v", err)
	}
	publisher := mq.NewPublisher(producer)
	defer publisher.Close()

	store := repository.NewLedgerStore(db, cfg.Database.LockTimeout(), cfg.Database.TxTimeout())
	engine := service.NewEngine(store, cfg, clock.Real())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 后台任务
	outboxSender := job.NewOutboxSender(store.Outbox, publisher, cfg)
	go outboxSender.Start(ctx)

	sweepJob := job.NewStampCodeSweepJob(engine.Codes, redisClient, cfg)
	go sweepJob.Start(ctx)

	router := handler.SetupRouter(engine, cfg)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 先停后台任务，再关闭 HTTP 服务
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	log.Println("服务已关闭")
}
