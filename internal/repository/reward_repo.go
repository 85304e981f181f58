package repository

import (
	"context"
	"errors"
	"fmt"

	"loyaltysystem/internal/apperr"
	"loyaltysystem/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RewardRepository 奖励定义和兑换记录
type RewardRepository struct {
	db *gorm.DB
}

func NewRewardRepository(db *gorm.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

func (r *RewardRepository) Create(ctx context.Context, tx *gorm.DB, reward *model.RewardDefinition) error {
	if !reward.RewardType.Valid() {
		return fmt.Errorf("不支持的奖励类型: %s", reward.RewardType)
	}
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(reward).Error
}

func (r *RewardRepository) GetByID(ctx context.Context, tenantID, rewardID int64) (*model.RewardDefinition, error) {
	return r.getByID(ctx, r.db, tenantID, rewardID)
}

func (r *RewardRepository) getByID(ctx context.Context, tx *gorm.DB, tenantID, rewardID int64) (*model.RewardDefinition, error) {
	var reward model.RewardDefinition
	err := tx.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", rewardID, tenantID).
		First(&reward).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.RewardNotFound(rewardID)
		}
		return nil, err
	}
	return &reward, nil
}

func (r *RewardRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, tenantID, rewardID int64) (*model.RewardDefinition, error) {
	var reward model.RewardDefinition
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND tenant_id = ?", rewardID, tenantID).
		First(&reward).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.RewardNotFound(rewardID)
		}
		return nil, err
	}
	return &reward, nil
}

// IncrementRedemptions 兑换次数 +1，调用前必须持有奖励行锁并已校验上限
func (r *RewardRepository) IncrementRedemptions(ctx context.Context, tx *gorm.DB, rewardID int64) error {
	result := tx.WithContext(ctx).
		Model(&model.RewardDefinition{}).
		Where("id = ?", rewardID).
		UpdateColumn("current_redemptions", gorm.Expr("current_redemptions + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.RewardNotFound(rewardID)
	}
	return nil
}

func (r *RewardRepository) CreateRedemption(ctx context.Context, tx *gorm.DB, redemption *model.RewardRedemption) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(redemption).Error
}

func (r *RewardRepository) ListRedemptionsByAccountID(ctx context.Context, tenantID, accountID int64, page, pageSize int) ([]*model.RewardRedemption, int64, error) {
	var redemptions []*model.RewardRedemption
	var total int64

	query := r.db.WithContext(ctx).Model(&model.RewardRedemption{}).
		Where("tenant_id = ? AND account_id = ?", tenantID, accountID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := paginate(page, pageSize)
	err := query.
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&redemptions).Error

	return redemptions, total, err
}
