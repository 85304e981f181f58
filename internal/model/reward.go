package model

import (
	"time"
)

type RewardType string

const (
	RewardTypeDiscountAmount     RewardType = "discount_amount"
	RewardTypeDiscountPercentage RewardType = "discount_percentage"
	RewardTypeFreeItem           RewardType = "free_item"
	RewardTypeStampReward        RewardType = "stamp_reward"
)

// Valid 校验奖励类型，入库前调用
func (t RewardType) Valid() bool {
	switch t {
	case RewardTypeDiscountAmount, RewardTypeDiscountPercentage, RewardTypeFreeItem, RewardTypeStampReward:
		return true
	}
	return false
}

// RewardDefinition 奖励定义（由租户后台维护，引擎只读取并累加兑换次数）
type RewardDefinition struct {
	ID                 int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID           int64      `gorm:"index;not null" json:"tenant_id"`
	Name               string     `gorm:"type:varchar(128);not null" json:"name"`
	Description        string     `gorm:"type:varchar(512)" json:"description"`
	RewardType         RewardType `gorm:"type:varchar(32);not null" json:"reward_type"`
	PointsCost         int64      `gorm:"not null;default:0" json:"points_cost"`
	StampsRequired     int        `gorm:"not null;default:0" json:"stamps_required"`
	DiscountAmount     int64      `gorm:"not null;default:0" json:"discount_amount"`
	DiscountPercentage int        `gorm:"not null;default:0" json:"discount_percentage"`
	IsActive           bool       `gorm:"not null" json:"is_active"`
	StartsAt           *time.Time `json:"starts_at"`
	EndsAt             *time.Time `json:"ends_at"`
	MaxRedemptions     *int64     `json:"max_redemptions"` // nil 表示不限量
	CurrentRedemptions int64      `gorm:"not null;default:0" json:"current_redemptions"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RewardDefinition) TableName() string {
	return "reward_definition"
}

// IsAvailable 是否可兑换：启用、在有效期内、未达到兑换上限
func (r *RewardDefinition) IsAvailable(now time.Time) bool {
	if !r.IsActive {
		return false
	}
	if r.StartsAt != nil && now.Before(*r.StartsAt) {
		return false
	}
	if r.EndsAt != nil && now.After(*r.EndsAt) {
		return false
	}
	if r.MaxRedemptions != nil && r.CurrentRedemptions >= *r.MaxRedemptions {
		return false
	}
	return true
}

type RedemptionStatus string

const (
	RedemptionStatusActive RedemptionStatus = "active"
)

// RewardRedemption 兑换记录，创建后不再修改
type RewardRedemption struct {
	ID                  int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	RedemptionNo        string           `gorm:"type:varchar(64);uniqueIndex;not null" json:"redemption_no"`
	TenantID            int64            `gorm:"index;not null" json:"tenant_id"`
	AccountID           int64            `gorm:"index;not null" json:"account_id"`
	RewardID            int64            `gorm:"index;not null" json:"reward_id"`
	StoreID             int64            `gorm:"not null" json:"store_id"`
	ActorID             int64            `gorm:"not null" json:"actor_id"`
	PointsSpent         int64            `gorm:"not null" json:"points_spent"`
	LedgerTransactionID int64            `gorm:"not null" json:"ledger_transaction_id"`
	Status              RedemptionStatus `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt           time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
}

func (RewardRedemption) TableName() string {
	return "reward_redemption"
}
