package job

import (
	"context"
	"log"
	"time"

	"loyaltysystem/internal/config"
	"loyaltysystem/internal/infrastructure/metrics"
	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"
)

// Publisher 消息发布，生产环境是 Kafka 同步生产者
type Publisher interface {
	Publish(topic, key, value string) error
}

// OutboxSender 把事务内写入 outbox 的账本事件投递到 Kafka
//
// 投递是至少一次：发送成功但更新状态失败时，下一轮会重复发送，
// 消费方按 payload 里的 event_id 去重
type OutboxSender struct {
	outbox     *repository.OutboxRepository
	publisher  Publisher
	metrics    *metrics.LedgerMetrics
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
	maxRetries int
}

func NewOutboxSender(outbox *repository.OutboxRepository, publisher Publisher, cfg *config.Config) *OutboxSender {
	return &OutboxSender{
		outbox:     outbox,
		publisher:  publisher,
		metrics:    metrics.Ledger(),
		stopCh:     make(chan struct{}),
		interval:   100 * time.Millisecond,
		batchSize:  100,
		maxRetries: cfg.Business.MaxRetryCount,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	log.Println("[OutboxSender] 账本事件投递任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			log.Println("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// flush 投递一批待发送事件，返回成功条数
func (s *OutboxSender) flush(ctx context.Context) int {
	messages, err := s.outbox.ListPending(ctx, s.batchSize)
	if err != nil {
		log.Printf("[OutboxSender] 查询待投递事件失败: %v", err)
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.deliver(ctx, msg) {
			sent++
		}
	}
	if sent > 0 {
		log.Printf("[OutboxSender] 本轮投递完成: sent=%d, total=%d", sent, len(messages))
	}
	return sent
}

func (s *OutboxSender) deliver(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload)
	s.metrics.ObserveOutboxPublish(err)

	if err == nil {
		if _, markErr := s.outbox.MarkSent(ctx, msg.ID, time.Now()); markErr != nil {
			log.Printf("[OutboxSender] 更新事件状态失败，下一轮会重复投递: id=%d, err=%v", msg.ID, markErr)
		}
		return true
	}

	failed, recordErr := s.outbox.RecordFailure(ctx, msg, err, s.maxRetries)
	if recordErr != nil {
		log.Printf("[OutboxSender] 记录投递失败出错: id=%d, err=%v", msg.ID, recordErr)
		return false
	}
	if failed {
		log.Printf("[OutboxSender] 事件超过最大重试次数，标记为失败: id=%d, tenantID=%d, type=%s, err=%v",
			msg.ID, msg.TenantID, msg.EventType, err)
	} else {
		log.Printf("[OutboxSender] 事件投递失败，等待重试: id=%d, retry=%d, err=%v", msg.ID, msg.RetryCount, err)
	}
	return false
}
