package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"

	"github.com/google/uuid"
)

// eventWriter 把账本事件写入 outbox，和业务数据在同一个事务里提交
type eventWriter struct {
	topic string
}

func (w eventWriter) write(uow *repository.UnitOfWork, eventType string, tenantID, key int64, now time.Time, data map[string]interface{}) error {
	payload := map[string]interface{}{
		"event_id":    uuid.New().String(),
		"event_type":  eventType,
		"tenant_id":   tenantID,
		"occurred_at": now.Format(time.RFC3339Nano),
	}
	for k, v := range data {
		payload[k] = v
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	// 同一实体的事件使用同一个 key，落到同一个分区，保证消费顺序
	msg := &model.OutboxMessage{
		TenantID:   tenantID,
		MessageKey: strconv.FormatInt(key, 10),
		Topic:      w.topic,
		EventType:  eventType,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	if err := uow.AppendOutbox(msg); err != nil {
		return fmt.Errorf("写入事件失败: %w", err)
	}
	return nil
}
