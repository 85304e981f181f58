package repository

import (
	"context"

	"loyaltysystem/internal/model"

	"gorm.io/gorm"
)

type ScanHistoryRepository struct {
	db *gorm.DB
}

func NewScanHistoryRepository(db *gorm.DB) *ScanHistoryRepository {
	return &ScanHistoryRepository{db: db}
}

func (r *ScanHistoryRepository) Create(ctx context.Context, tx *gorm.DB, record *model.ScanHistoryRecord) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(record).Error
}

func (r *ScanHistoryRepository) ListByCustomer(ctx context.Context, tenantID, customerID int64, page, pageSize int) ([]*model.ScanHistoryRecord, int64, error) {
	var records []*model.ScanHistoryRecord
	var total int64

	query := r.db.WithContext(ctx).Model(&model.ScanHistoryRecord{}).
		Where("tenant_id = ? AND customer_id = ?", tenantID, customerID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := paginate(page, pageSize)
	err := query.
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&records).Error

	return records, total, err
}

func (r *ScanHistoryRepository) CountByCode(ctx context.Context, codeID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ScanHistoryRecord{}).Where("code_id = ?", codeID).Count(&count).Error
	return count, err
}
