package repository

import (
	"context"
	"errors"

	"loyaltysystem/internal/apperr"
	"loyaltysystem/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressRepository struct {
	db *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// GetOpenForUpdate 锁住 (租户, 客户, 奖励) 唯一的进行中记录
func (r *ProgressRepository) GetOpenForUpdate(ctx context.Context, tx *gorm.DB, tenantID, customerID, rewardID int64) (*model.UserRewardProgress, error) {
	var progress model.UserRewardProgress
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("open_key = ? AND status = ?", model.ProgressOpenKey(tenantID, customerID, rewardID), model.ProgressInProgress).
		First(&progress).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.OpenProgressNotFound(customerID, rewardID)
		}
		return nil, err
	}
	return &progress, nil
}

// CreateOpen 新开一轮集章；已存在进行中记录时不插入，返回 false
func (r *ProgressRepository) CreateOpen(ctx context.Context, tx *gorm.DB, progress *model.UserRewardProgress) (bool, error) {
	key := model.ProgressOpenKey(progress.TenantID, progress.CustomerID, progress.RewardID)
	progress.OpenKey = &key
	progress.Status = model.ProgressInProgress

	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "open_key"}},
			DoNothing: true,
		}).
		Create(progress)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *ProgressRepository) GetByID(ctx context.Context, tenantID, progressID int64) (*model.UserRewardProgress, error) {
	var progress model.UserRewardProgress
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", progressID, tenantID).
		First(&progress).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ProgressNotFound(progressID)
		}
		return nil, err
	}
	return &progress, nil
}

func (r *ProgressRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, tenantID, progressID int64) (*model.UserRewardProgress, error) {
	var progress model.UserRewardProgress
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND tenant_id = ?", progressID, tenantID).
		First(&progress).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ProgressNotFound(progressID)
		}
		return nil, err
	}
	return &progress, nil
}

// UpdateCounters 写回计数、状态和进行中标记，调用前必须持有行锁
func (r *ProgressRepository) UpdateCounters(ctx context.Context, tx *gorm.DB, progress *model.UserRewardProgress) error {
	return tx.WithContext(ctx).
		Model(&model.UserRewardProgress{}).
		Where("id = ?", progress.ID).
		Updates(map[string]interface{}{
			"stamps_collected": progress.StampsCollected,
			"status":           progress.Status,
			"open_key":         progress.OpenKey,
			"completed_at":     progress.CompletedAt,
		}).Error
}

// TransitionStatus 条件更新：只有当前状态等于 from 时才迁移到 to
//
// 并发下只有一个调用方能看到 RowsAffected=1，其余返回 false
func (r *ProgressRepository) TransitionStatus(ctx context.Context, tx *gorm.DB, progressID int64, from, to model.ProgressStatus, fields map[string]interface{}) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, apperr.InvalidTransition("reward_progress", progressID, string(from), string(to))
	}
	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}

	result := tx.WithContext(ctx).
		Model(&model.UserRewardProgress{}).
		Where("id = ? AND status = ?", progressID, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *ProgressRepository) Delete(ctx context.Context, tx *gorm.DB, progressID int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Delete(&model.UserRewardProgress{}, progressID).Error
}

func (r *ProgressRepository) ListByCustomer(ctx context.Context, tenantID, customerID int64, status model.ProgressStatus) ([]*model.UserRewardProgress, error) {
	var list []*model.UserRewardProgress
	query := r.db.WithContext(ctx).Where("tenant_id = ? AND customer_id = ?", tenantID, customerID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("id DESC").Find(&list).Error
	return list, err
}

// Stats 按状态聚合客户的集章记录
func (r *ProgressRepository) Stats(ctx context.Context, tenantID, customerID int64) (*model.ProgressStats, error) {
	var rows []struct {
		Status model.ProgressStatus
		Count  int64
		Stamps int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.UserRewardProgress{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(stamps_collected), 0) AS stamps").
		Where("tenant_id = ? AND customer_id = ?", tenantID, customerID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &model.ProgressStats{CustomerID: customerID}
	for _, row := range rows {
		switch row.Status {
		case model.ProgressInProgress:
			stats.InProgress = row.Count
		case model.ProgressReadyToRedeem:
			stats.ReadyToRedeem = row.Count
		case model.ProgressAvailed:
			stats.Availed = row.Count
		}
		stats.TotalStampsCollected += row.Stamps
	}
	return stats, nil
}
