package repository

import (
	"context"
	"time"

	"loyaltysystem/internal/model"

	"gorm.io/gorm"
)

const maxLastErrorLen = 512

// OutboxRepository 账本事件发件箱
//
// 状态只会从 PENDING 变为 SENT 或 FAILED，所有状态更新都带 status = PENDING 条件，
// 多个发送实例同时处理同一条消息时只有一个能改到它
type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Create 写入事件，正常情况下 tx 是业务事务
func (r *OutboxRepository) Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(msg).Error
}

// ListPending 按写入顺序取一批待投递事件
func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// MarkSent 投递成功，返回 false 表示消息已经被别的实例处理
func (r *OutboxRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ?", id, model.OutboxStatusPending).
		Updates(map[string]interface{}{
			"status":     model.OutboxStatusSent,
			"sent_at":    sentAt,
			"last_error": "",
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RecordFailure 记录一次投递失败；重试次数达到 maxRetries 时转为 FAILED，不再自动投递
// 返回消息是否已进入 FAILED
func (r *OutboxRepository) RecordFailure(ctx context.Context, msg *model.OutboxMessage, cause error, maxRetries int) (bool, error) {
	retries := msg.RetryCount + 1
	status := model.OutboxStatusPending
	if retries >= maxRetries {
		status = model.OutboxStatusFailed
	}

	lastError := cause.Error()
	if runes := []rune(lastError); len(runes) > maxLastErrorLen {
		lastError = string(runes[:maxLastErrorLen])
	}

	result := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ?", msg.ID, model.OutboxStatusPending).
		Updates(map[string]interface{}{
			"retry_count": retries,
			"status":      status,
			"last_error":  lastError,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	msg.RetryCount = retries
	msg.Status = status
	msg.LastError = lastError
	return status == model.OutboxStatusFailed, nil
}

func (r *OutboxRepository) ListByStatus(ctx context.Context, status string) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).Where("status = ?", status).Order("id ASC").Find(&messages).Error
	return messages, err
}
