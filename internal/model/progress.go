package model

import (
	"fmt"
	"time"
)

// ProgressStatus 集章进度状态
//
//	in_progress -> ready_to_redeem -> availed
//
// 重置不会产生新状态：计数清零，状态保持 in_progress
type ProgressStatus string

const (
	ProgressInProgress    ProgressStatus = "in_progress"
	ProgressReadyToRedeem ProgressStatus = "ready_to_redeem"
	ProgressAvailed       ProgressStatus = "availed"
)

// CanTransitionTo 状态迁移校验
func (s ProgressStatus) CanTransitionTo(target ProgressStatus) bool {
	switch s {
	case ProgressInProgress:
		return target == ProgressReadyToRedeem
	case ProgressReadyToRedeem:
		return target == ProgressAvailed
	case ProgressAvailed:
		return false
	default:
		return false
	}
}

// UserRewardProgress 客户针对某个奖励的集章进度
//
// 同一 (租户, 客户, 奖励) 同时只能有一条 in_progress 记录，由 OpenKey 唯一索引保证：
// 进行中时 OpenKey 有值，集满后置为 NULL（NULL 不参与唯一约束）。
// 新一轮集章会新建记录，已关闭的记录保留作为历史
type UserRewardProgress struct {
	ID              int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID        int64          `gorm:"index:idx_progress_customer;not null" json:"tenant_id"`
	CustomerID      int64          `gorm:"index:idx_progress_customer;not null" json:"customer_id"`
	RewardID        int64          `gorm:"index;not null" json:"reward_id"`
	StampsCollected int            `gorm:"not null;default:0" json:"stamps_collected"`
	StampsRequired  int            `gorm:"not null" json:"stamps_required"`
	Status          ProgressStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	OpenKey         *string        `gorm:"type:varchar(96);uniqueIndex" json:"-"`
	CompletedAt     *time.Time     `json:"completed_at"`
	RedeemedAt      *time.Time     `json:"redeemed_at"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserRewardProgress) TableName() string {
	return "user_reward_progress"
}

// ProgressOpenKey 进行中记录的唯一键
func ProgressOpenKey(tenantID, customerID, rewardID int64) string {
	return fmt.Sprintf("%d:%d:%d", tenantID, customerID, rewardID)
}

// ProgressStats 客户集章统计
type ProgressStats struct {
	CustomerID           int64 `json:"customer_id"`
	InProgress           int64 `json:"in_progress"`
	ReadyToRedeem        int64 `json:"ready_to_redeem"`
	Availed              int64 `json:"availed"`
	TotalStampsCollected int64 `json:"total_stamps_collected"`
}
