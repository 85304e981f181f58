package repository

import (
	"context"
	"errors"

	"loyaltysystem/internal/apperr"
	"loyaltysystem/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StampCardRepository struct {
	db *gorm.DB
}

func NewStampCardRepository(db *gorm.DB) *StampCardRepository {
	return &StampCardRepository{db: db}
}

func (r *StampCardRepository) Create(ctx context.Context, tx *gorm.DB, card *model.StampCard) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(card).Error
}

func (r *StampCardRepository) GetByID(ctx context.Context, tenantID, cardID int64) (*model.StampCard, error) {
	var card model.StampCard
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", cardID, tenantID).
		First(&card).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.CardNotFound(cardID)
		}
		return nil, err
	}
	return &card, nil
}

func (r *StampCardRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, tenantID, cardID int64) (*model.StampCard, error) {
	var card model.StampCard
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND tenant_id = ?", cardID, tenantID).
		First(&card).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.CardNotFound(cardID)
		}
		return nil, err
	}
	return &card, nil
}

// UpdateProgress 写回卡面计数和完成状态，调用前必须持有行锁
func (r *StampCardRepository) UpdateProgress(ctx context.Context, tx *gorm.DB, card *model.StampCard) error {
	return tx.WithContext(ctx).
		Model(&model.StampCard{}).
		Where("id = ?", card.ID).
		Updates(map[string]interface{}{
			"current_stamps":     card.CurrentStamps,
			"is_completed":       card.IsCompleted,
			"completed_at":       card.CompletedAt,
			"reward_description": card.RewardDescription,
		}).Error
}

func (r *StampCardRepository) ListByAccountID(ctx context.Context, tenantID, accountID int64) ([]*model.StampCard, error) {
	var cards []*model.StampCard
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND account_id = ?", tenantID, accountID).
		Order("id DESC").
		Find(&cards).Error
	return cards, err
}
