package model

import (
	"time"
)

type CodeStatus string

const (
	CodeStatusPending   CodeStatus = "pending"
	CodeStatusCompleted CodeStatus = "completed"
	CodeStatusCancelled CodeStatus = "cancelled"
	CodeStatusExpired   CodeStatus = "expired"
)

// CanTransitionTo 只有 pending 可以流转，其余都是终态
func (s CodeStatus) CanTransitionTo(target CodeStatus) bool {
	switch s {
	case CodeStatusPending:
		switch target {
		case CodeStatusCompleted, CodeStatusCancelled, CodeStatusExpired:
			return true
		}
		return false
	case CodeStatusCompleted, CodeStatusCancelled, CodeStatusExpired:
		return false
	default:
		return false
	}
}

// StampTransactionCode 一次性盖章交易码（二维码内容）
//
// 由客户端申请，店员扫码时消费，且只能被消费一次；过期后由清理任务置为 expired
type StampTransactionCode struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Code            string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	TenantID        int64      `gorm:"index;not null" json:"tenant_id"`
	CustomerID      int64      `gorm:"index:idx_code_customer_reward;not null" json:"customer_id"`
	RewardID        int64      `gorm:"index:idx_code_customer_reward;not null" json:"reward_id"`
	StoreID         *int64     `json:"store_id,omitempty"`
	Status          CodeStatus `gorm:"type:varchar(16);index:idx_code_status_expires;not null" json:"status"`
	ExpiresAt       time.Time  `gorm:"index:idx_code_status_expires;not null" json:"expires_at"`
	ConsumedBy      *int64     `json:"consumed_by,omitempty"`
	ConsumedStoreID *int64     `json:"consumed_store_id,omitempty"`
	ConsumedAt      *time.Time `json:"consumed_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (StampTransactionCode) TableName() string {
	return "stamp_transaction_code"
}
