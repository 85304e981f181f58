package repository

import (
	"context"
	"errors"
	"time"

	"loyaltysystem/internal/apperr"
	"loyaltysystem/internal/model"

	"gorm.io/gorm"
)

// StampCodeRepository 一次性交易码
//
// 交易码的所有状态迁移都是带谓词的条件更新（WHERE status = 'pending' ...），
// 这是交易码唯一的并发控制手段：重复扫码时只有一个请求能更新成功
type StampCodeRepository struct {
	db *gorm.DB
}

func NewStampCodeRepository(db *gorm.DB) *StampCodeRepository {
	return &StampCodeRepository{db: db}
}

func (r *StampCodeRepository) Create(ctx context.Context, tx *gorm.DB, code *model.StampTransactionCode) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(code).Error
}

func (r *StampCodeRepository) Exists(ctx context.Context, tx *gorm.DB, code string) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).Model(&model.StampTransactionCode{}).Where("code = ?", code).Count(&count).Error
	return count > 0, err
}

func (r *StampCodeRepository) GetByCode(ctx context.Context, code string) (*model.StampTransactionCode, error) {
	return r.getByCode(ctx, r.db, code)
}

func (r *StampCodeRepository) getByCode(ctx context.Context, tx *gorm.DB, code string) (*model.StampTransactionCode, error) {
	var c model.StampTransactionCode
	err := tx.WithContext(ctx).Where("code = ?", code).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.CodeNotFound(code)
		}
		return nil, err
	}
	return &c, nil
}

// transition 在 query 的谓词之上追加 status = from，把命中的交易码迁移到 to
func (r *StampCodeRepository) transition(query *gorm.DB, from, to model.CodeStatus, fields map[string]interface{}) (int64, error) {
	if !from.CanTransitionTo(to) {
		return 0, apperr.InvalidTransition("stamp_code", 0, string(from), string(to))
	}
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	result := query.Model(&model.StampTransactionCode{}).
		Where("status = ?", from).
		Updates(updates)
	return result.RowsAffected, result.Error
}

// Consume pending -> completed，仅当未过期
func (r *StampCodeRepository) Consume(ctx context.Context, tx *gorm.DB, codeID, staffID, storeID int64, now time.Time) (bool, error) {
	query := tx.WithContext(ctx).Where("id = ? AND expires_at > ?", codeID, now)
	affected, err := r.transition(query, model.CodeStatusPending, model.CodeStatusCompleted, map[string]interface{}{
		"consumed_by":       staffID,
		"consumed_store_id": storeID,
		"consumed_at":       now,
	})
	return affected > 0, err
}

// Cancel pending -> cancelled
func (r *StampCodeRepository) Cancel(ctx context.Context, tx *gorm.DB, codeID int64) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	query := tx.WithContext(ctx).Where("id = ?", codeID)
	affected, err := r.transition(query, model.CodeStatusPending, model.CodeStatusCancelled, nil)
	return affected > 0, err
}

// CancelPendingForPair 作废同一客户同一奖励下尚未使用的旧交易码
func (r *StampCodeRepository) CancelPendingForPair(ctx context.Context, tx *gorm.DB, tenantID, customerID, rewardID int64) (int64, error) {
	query := tx.WithContext(ctx).
		Where("tenant_id = ? AND customer_id = ? AND reward_id = ?", tenantID, customerID, rewardID)
	return r.transition(query, model.CodeStatusPending, model.CodeStatusCancelled, nil)
}

// ExpirePending 批量把已过期的 pending 交易码置为 expired，可重复执行
func (r *StampCodeRepository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	query := r.db.WithContext(ctx).Where("expires_at <= ?", now)
	return r.transition(query, model.CodeStatusPending, model.CodeStatusExpired, nil)
}
