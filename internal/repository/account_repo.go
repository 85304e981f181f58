package repository

import (
	"context"
	"errors"

	"loyaltysystem/internal/apperr"
	"loyaltysystem/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByID(ctx context.Context, tenantID, accountID int64) (*model.LoyaltyAccount, error) {
	return r.getByID(ctx, r.db, tenantID, accountID)
}

func (r *AccountRepository) getByID(ctx context.Context, tx *gorm.DB, tenantID, accountID int64) (*model.LoyaltyAccount, error) {
	var account model.LoyaltyAccount
	err := tx.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", accountID, tenantID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.AccountNotFound(accountID)
		}
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) GetByCustomer(ctx context.Context, tenantID, customerID int64) (*model.LoyaltyAccount, error) {
	var account model.LoyaltyAccount
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND customer_id = ?", tenantID, customerID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.AccountNotFound(customerID)
		}
		return nil, err
	}
	return &account, nil
}

// GetByIDForUpdate 加行锁读取账户，必须在事务内调用
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, tenantID, accountID int64) (*model.LoyaltyAccount, error) {
	var account model.LoyaltyAccount
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND tenant_id = ?", accountID, tenantID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.AccountNotFound(accountID)
		}
		return nil, err
	}
	return &account, nil
}

// UpdateBalance 写回余额相关字段，调用前必须已经持有该行的行锁
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx *gorm.DB, account *model.LoyaltyAccount) error {
	return tx.WithContext(ctx).
		Model(&model.LoyaltyAccount{}).
		Where("id = ?", account.ID).
		Updates(map[string]interface{}{
			"current_points":   account.CurrentPoints,
			"total_earned":     account.TotalEarned,
			"total_redeemed":   account.TotalRedeemed,
			"level":            account.Level,
			"last_activity_at": account.LastActivityAt,
		}).Error
}

// GetOrCreate 开户，并发开户依赖 (tenant_id, customer_id) 唯一索引去重
func (r *AccountRepository) GetOrCreate(ctx context.Context, tenantID, customerID int64) (*model.LoyaltyAccount, error) {
	account, err := r.GetByCustomer(ctx, tenantID, customerID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, apperr.ErrAccountNotFound) {
		return nil, err
	}

	newAccount := &model.LoyaltyAccount{
		TenantID:   tenantID,
		CustomerID: customerID,
		Level:      model.LevelBronze,
		IsActive:   true,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "customer_id"}},
			DoNothing: true,
		}).
		Create(newAccount).Error
	if err != nil {
		return nil, err
	}

	return r.GetByCustomer(ctx, tenantID, customerID)
}

// Deactivate 软删除，账户和流水都保留；重复停用不报错
func (r *AccountRepository) Deactivate(ctx context.Context, tenantID, accountID int64) error {
	if _, err := r.GetByID(ctx, tenantID, accountID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&model.LoyaltyAccount{}).
		Where("id = ? AND tenant_id = ?", accountID, tenantID).
		Update("is_active", false).Error
}
