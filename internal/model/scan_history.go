package model

import (
	"time"
)

// ScanHistoryRecord 扫码记录，和交易码消费、集章进度更新在同一事务内写入
type ScanHistoryRecord struct {
	ID           int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID     int64          `gorm:"index;not null" json:"tenant_id"`
	CodeID       int64          `gorm:"uniqueIndex;not null" json:"code_id"` // 一个交易码最多一条扫码记录
	ProgressID   int64          `gorm:"index;not null" json:"progress_id"`
	CustomerID   int64          `gorm:"index;not null" json:"customer_id"`
	RewardID     int64          `gorm:"not null" json:"reward_id"`
	StaffID      int64          `gorm:"not null" json:"staff_id"`
	StoreID      int64          `gorm:"not null" json:"store_id"`
	StampsBefore int            `gorm:"not null" json:"stamps_before"`
	StampsAfter  int            `gorm:"not null" json:"stamps_after"`
	StatusAfter  ProgressStatus `gorm:"type:varchar(20);not null" json:"status_after"`
	CreatedAt    time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

func (ScanHistoryRecord) TableName() string {
	return "scan_history"
}
