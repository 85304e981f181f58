package model

import (
	"time"
)

// 会员等级
type Level string

const (
	LevelBronze   Level = "bronze"
	LevelSilver   Level = "silver"
	LevelGold     Level = "gold"
	LevelPlatinum Level = "platinum"
)

// LevelFor 按累计获得积分计算会员等级（只升不降，因为 total_earned 单调递增）
func LevelFor(totalEarned int64) Level {
	switch {
	case totalEarned >= 10000:
		return LevelPlatinum
	case totalEarned >= 5000:
		return LevelGold
	case totalEarned >= 1000:
		return LevelSilver
	default:
		return LevelBronze
	}
}

// LoyaltyAccount 会员积分账户
//
// 不变量：CurrentPoints = TotalEarned - TotalRedeemed >= 0
// 账户只做软删除（IsActive=false），余额只能通过积分账本修改
type LoyaltyAccount struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID       int64      `gorm:"not null;uniqueIndex:uk_tenant_customer" json:"tenant_id"`
	CustomerID     int64      `gorm:"not null;uniqueIndex:uk_tenant_customer" json:"customer_id"`
	CurrentPoints  int64      `gorm:"not null;default:0" json:"current_points"`
	TotalEarned    int64      `gorm:"not null;default:0" json:"total_earned"`
	TotalRedeemed  int64      `gorm:"not null;default:0" json:"total_redeemed"`
	Level          Level      `gorm:"type:varchar(16);not null;default:bronze" json:"level"`
	IsActive       bool       `gorm:"not null;default:true" json:"is_active"`
	LastActivityAt *time.Time `json:"last_activity_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (LoyaltyAccount) TableName() string {
	return "loyalty_account"
}

// BalanceConsistent 校验余额不变量
func (a *LoyaltyAccount) BalanceConsistent() bool {
	return a.CurrentPoints >= 0 && a.CurrentPoints == a.TotalEarned-a.TotalRedeemed
}
