package model

import (
	"time"
)

// ============================================================================
// 流水类型
// ============================================================================

type LoyaltyTransactionType string

const (
	LoyaltyTransactionEarn   LoyaltyTransactionType = "earn"
	LoyaltyTransactionRedeem LoyaltyTransactionType = "redeem"
)

type StampTransactionType string

const (
	StampTransactionAdd      StampTransactionType = "add"
	StampTransactionRemove   StampTransactionType = "remove"
	StampTransactionComplete StampTransactionType = "complete"
)

// ============================================================================
// 积分流水
// ============================================================================

// LoyaltyTransaction 积分流水表
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除
// 2. 每次余额变动恰好一条流水，和余额更新在同一个事务里提交
// 3. BalanceAfter = BalanceBefore + Delta，便于按流水重建任意时刻的余额
type LoyaltyTransaction struct {
	ID            int64                  `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string                 `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	TenantID      int64                  `gorm:"index;not null" json:"tenant_id"`
	AccountID     int64                  `gorm:"index;not null" json:"account_id"`
	Type          LoyaltyTransactionType `gorm:"type:varchar(16);not null" json:"type"`
	Delta         int64                  `gorm:"not null" json:"delta"` // 正数入账，负数出账
	BalanceBefore int64                  `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64                  `gorm:"not null" json:"balance_after"`
	Reason        string                 `gorm:"type:varchar(256)" json:"reason"`
	StoreID       *int64                 `json:"store_id,omitempty"`
	ActorID       *int64                 `json:"actor_id,omitempty"`
	CreatedAt     time.Time              `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LoyaltyTransaction) TableName() string {
	return "loyalty_transaction"
}

// ============================================================================
// 印章流水
// ============================================================================

// StampTransaction 印章流水表，结构和积分流水一致
//
// 注意 StampsAfter 记录的是未截断的原始计数：集满之后继续盖章时，
// 卡面 current_stamps 停在 total_stamps，流水里仍然能看到真实的盖章数量
type StampTransaction struct {
	ID            int64                `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string               `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	TenantID      int64                `gorm:"index;not null" json:"tenant_id"`
	CardID        int64                `gorm:"index;not null" json:"card_id"`
	AccountID     int64                `gorm:"index;not null" json:"account_id"`
	Type          StampTransactionType `gorm:"type:varchar(16);not null" json:"type"`
	Delta         int                  `gorm:"not null" json:"delta"`
	StampsBefore  int                  `gorm:"not null" json:"stamps_before"`
	StampsAfter   int                  `gorm:"not null" json:"stamps_after"`
	Reason        string               `gorm:"type:varchar(256)" json:"reason"`
	StoreID       *int64               `json:"store_id,omitempty"`
	ActorID       *int64               `json:"actor_id,omitempty"`
	CreatedAt     time.Time            `gorm:"autoCreateTime;index" json:"created_at"`
}

func (StampTransaction) TableName() string {
	return "stamp_transaction"
}
