package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// 账本事件类型，写入 outbox 后由 OutboxSender 投递到 Kafka
const (
	EventPointsEarned      = "points.earned"
	EventPointsRedeemed    = "points.redeemed"
	EventStampsAdded       = "stamps.added"
	EventStampsRemoved     = "stamps.removed"
	EventCardCompleted     = "card.completed"
	EventRewardRedeemed    = "reward.redeemed"
	EventStampCodeConsumed = "stamp_code.consumed"
	EventProgressReady     = "progress.ready"
	EventProgressAvailed   = "progress.availed"
)

// OutboxMessage 事务发件箱：事件和业务数据同事务落库，提交后异步投递
type OutboxMessage struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID   int64      `gorm:"index;not null" json:"tenant_id"`
	MessageKey string     `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string     `gorm:"type:varchar(64);not null" json:"topic"`
	EventType  string     `gorm:"type:varchar(32);not null" json:"event_type"`
	Payload    string     `gorm:"type:text;not null" json:"payload"`
	Status     string     `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int        `gorm:"not null;default:0" json:"retry_count"`
	LastError  string     `gorm:"type:varchar(512)" json:"last_error,omitempty"`
	SentAt     *time.Time `json:"sent_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}
