package repository

import (
	"context"

	"loyaltysystem/internal/model"

	"gorm.io/gorm"
)

// TransactionRepository 积分流水和印章流水，只追加不修改
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.LoyaltyTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) CreateStamp(ctx context.Context, tx *gorm.DB, trans *model.StampTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) ListByAccountID(ctx context.Context, tenantID, accountID int64, page, pageSize int) ([]*model.LoyaltyTransaction, int64, error) {
	var transactions []*model.LoyaltyTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.LoyaltyTransaction{}).
		Where("tenant_id = ? AND account_id = ?", tenantID, accountID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := paginate(page, pageSize)
	err := query.
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&transactions).Error

	return transactions, total, err
}

func (r *TransactionRepository) ListByCardID(ctx context.Context, tenantID, cardID int64, page, pageSize int) ([]*model.StampTransaction, int64, error) {
	var transactions []*model.StampTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.StampTransaction{}).
		Where("tenant_id = ? AND card_id = ?", tenantID, cardID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := paginate(page, pageSize)
	err := query.
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&transactions).Error

	return transactions, total, err
}
