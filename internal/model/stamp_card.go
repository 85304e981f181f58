package model

import (
	"time"
)

// StampCard 集章卡
//
// 不变量：0 <= CurrentStamps <= TotalStamps；IsCompleted 一旦为 true，卡面计数冻结
// 过期是被动的：只在修改时比较 ExpiresAt，不做后台删除
type StampCard struct {
	ID                int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID          int64      `gorm:"index;not null" json:"tenant_id"`
	AccountID         int64      `gorm:"index;not null" json:"account_id"`
	Title             string     `gorm:"type:varchar(128);not null" json:"title"`
	TotalStamps       int        `gorm:"not null" json:"total_stamps"`
	CurrentStamps     int        `gorm:"not null;default:0" json:"current_stamps"`
	IsCompleted       bool       `gorm:"not null;default:false" json:"is_completed"`
	CompletedAt       *time.Time `json:"completed_at"`
	ExpiresAt         *time.Time `json:"expires_at"`
	RewardDescription string     `gorm:"type:varchar(256)" json:"reward_description"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (StampCard) TableName() string {
	return "stamp_card"
}

func (c *StampCard) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// ProgressPercent 展示用进度，封顶 100
func (c *StampCard) ProgressPercent() int {
	if c.TotalStamps <= 0 {
		return 0
	}
	p := c.CurrentStamps * 100 / c.TotalStamps
	if p > 100 {
		return 100
	}
	return p
}
