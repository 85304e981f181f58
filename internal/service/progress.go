package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"loyaltysystem/internal/apperr"
	"loyaltysystem/internal/config"
	"loyaltysystem/internal/infrastructure/metrics"
	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"
	"loyaltysystem/pkg/clock"
)

// ProgressStateMachine 扫码集章进度
//
//	in_progress --集满--> ready_to_redeem --核销--> availed
//
// 和集章卡是两套独立的生命周期：集章卡挂在账户上可以反复使用，
// 集章进度绑定 (客户, 奖励)，每轮集满核销后再开新的一轮
type ProgressStateMachine struct {
	store   *repository.LedgerStore
	clock   clock.Clock
	events  eventWriter
	metrics *metrics.LedgerMetrics
}

func NewProgressStateMachine(store *repository.LedgerStore, cfg *config.Config, clk clock.Clock) *ProgressStateMachine {
	return &ProgressStateMachine{
		store:   store,
		clock:   clk,
		events:  eventWriter{topic: cfg.Kafka.Topic.LedgerEvent},
		metrics: metrics.Ledger(),
	}
}

// Start 返回 (客户, 奖励) 当前进行中的记录，没有则开一轮新的
func (m *ProgressStateMachine) Start(ctx context.Context, tenantID, customerID, rewardID int64) (*model.UserRewardProgress, error) {
	var progress *model.UserRewardProgress
	err := m.store.InTx(ctx, func(uow *repository.UnitOfWork) error {
		var err error
		progress, err = m.openInTx(uow, tenantID, customerID, rewardID)
		return err
	})
	m.metrics.ObserveOperation("start_progress", err)
	if err != nil {
		return nil, err
	}
	return progress, nil
}

// AddStamp 给进行中的记录加一个章，没有进行中的记录返回 ProgressNotFound
func (m *ProgressStateMachine) AddStamp(ctx context.Context, tenantID, customerID, rewardID int64) (*model.UserRewardProgress, error) {
	var progress *model.UserRewardProgress
	err := m.store.InTx(ctx, func(uow *repository.UnitOfWork) error {
		locked, err := uow.LockOpenProgress(tenantID, customerID, rewardID)
		if err != nil {
			return err
		}
		if _, err := m.stampInTx(uow, locked); err != nil {
			return err
		}
		progress = locked
		return nil
	})
	m.metrics.ObserveOperation("add_progress_stamp", err)
	if err != nil {
		return nil, err
	}

	m.metrics.ObserveStamps("progress", 1)
	log.Printf("[ProgressStateMachine] 集章: progressID=%d, stamps=%d/%d, status=%s",
		progress.ID, progress.StampsCollected, progress.StampsRequired, progress.Status)
	return progress, nil
}

// RedeemProgress ready_to_redeem -> availed
//
// 条件更新保证同一条记录只能被核销一次，并发核销时只有一个成功，
// 其余返回 TransactionCodeExpiredOrConsumed
func (m *ProgressStateMachine) RedeemProgress(ctx context.Context, tenantID, progressID int64) (*model.UserRewardProgress, error) {
	var progress *model.UserRewardProgress
	err := m.store.InTx(ctx, func(uow *repository.UnitOfWork) error {
		locked, err := uow.LockProgress(tenantID, progressID)
		if err != nil {
			return err
		}

		now := m.clock.Now()
		ok, err := uow.TransitionProgress(locked.ID, model.ProgressReadyToRedeem, model.ProgressAvailed, map[string]interface{}{
			"redeemed_at": now,
		})
		if err != nil {
			return fmt.Errorf("更新集章进度失败: %w", err)
		}
		if !ok {
			return apperr.ProgressAlreadyClosed(locked.ID)
		}

		locked.Status = model.ProgressAvailed
		locked.RedeemedAt = &now
		progress = locked
		return m.events.write(uow, model.EventProgressAvailed, tenantID, locked.CustomerID, now, map[string]interface{}{
			"progress_id": locked.ID,
			"customer_id": locked.CustomerID,
			"reward_id":   locked.RewardID,
		})
	})
	m.metrics.ObserveOperation("redeem_progress", err)
	if err != nil {
		return nil, err
	}

	log.Printf("[ProgressStateMachine] 核销: progressID=%d, customerID=%d, rewardID=%d", progress.ID, progress.CustomerID, progress.RewardID)
	return progress, nil
}

// ResetProgress 管理员清零进行中的记录，状态保持 in_progress
func (m *ProgressStateMachine) ResetProgress(ctx context.Context, tenantID, progressID int64) (*model.UserRewardProgress, error) {
	var progress *model.UserRewardProgress
	err := m.store.InTx(ctx, func(uow *repository.UnitOfWork) error {
		locked, err := uow.LockProgress(tenantID, progressID)
		if err != nil {
			return err
		}
		if locked.Status != model.ProgressInProgress {
			return apperr.InvalidTransition("reward_progress", locked.ID, string(locked.Status), string(model.ProgressInProgress))
		}
		locked.StampsCollected = 0
		if err := uow.SaveProgressCounters(locked); err != nil {
			return fmt.Errorf("重置集章进度失败: %w", err)
		}
		progress = locked
		return nil
	})
	m.metrics.ObserveOperation("reset_progress", err)
	if err != nil {
		return nil, err
	}

	log.Printf("[ProgressStateMachine] 重置: progressID=%d", progressID)
	return progress, nil
}

// Delete 管理员删除记录；删除进行中的记录后，下一次扫码会开新的一轮
func (m *ProgressStateMachine) Delete(ctx context.Context, tenantID, progressID int64) error {
	err := m.store.InTx(ctx, func(uow *repository.UnitOfWork) error {
		locked, err := uow.LockProgress(tenantID, progressID)
		if err != nil {
			return err
		}
		return uow.DeleteProgress(locked.ID)
	})
	m.metrics.ObserveOperation("delete_progress", err)
	if err != nil {
		return err
	}

	log.Printf("[ProgressStateMachine] 删除: progressID=%d", progressID)
	return nil
}

// openInTx 锁住进行中的记录；没有则校验奖励后新开一轮
func (m *ProgressStateMachine) openInTx(uow *repository.UnitOfWork, tenantID, customerID, rewardID int64) (*model.UserRewardProgress, error) {
	progress, err := uow.LockOpenProgress(tenantID, customerID, rewardID)
	if err == nil {
		return progress, nil
	}
	if !errors.Is(err, apperr.ErrProgressNotFound) {
		return nil, err
	}

	reward, err := uow.GetReward(tenantID, rewardID)
	if err != nil {
		return nil, err
	}
	if reward.StampsRequired <= 0 || !reward.IsAvailable(m.clock.Now()) {
		return nil, apperr.RewardUnavailable(reward.ID)
	}

	created, err := uow.OpenProgress(&model.UserRewardProgress{
		TenantID:       tenantID,
		CustomerID:     customerID,
		RewardID:       rewardID,
		StampsRequired: reward.StampsRequired,
	})
	if err != nil {
		return nil, fmt.Errorf("创建集章进度失败: %w", err)
	}
	if created {
		log.Printf("[ProgressStateMachine] 开始新一轮集章: customerID=%d, rewardID=%d", customerID, rewardID)
	}

	// 无论是自己插入的还是并发请求抢先插入的，都重新加锁读取
	return uow.LockOpenProgress(tenantID, customerID, rewardID)
}

// stampInTx 在已加锁的进行中记录上加一个章，返回加章前的计数
func (m *ProgressStateMachine) stampInTx(uow *repository.UnitOfWork, progress *model.UserRewardProgress) (int, error) {
	if progress.Status != model.ProgressInProgress {
		return 0, apperr.ProgressAlreadyClosed(progress.ID)
	}

	now := m.clock.Now()
	before := progress.StampsCollected
	progress.StampsCollected++

	ready := progress.StampsCollected >= progress.StampsRequired
	if ready {
		if !progress.Status.CanTransitionTo(model.ProgressReadyToRedeem) {
			return 0, apperr.InvalidTransition("reward_progress", progress.ID, string(progress.Status), string(model.ProgressReadyToRedeem))
		}
		progress.Status = model.ProgressReadyToRedeem
		progress.CompletedAt = &now
		progress.OpenKey = nil
	}

	if err := uow.SaveProgressCounters(progress); err != nil {
		return 0, fmt.Errorf("更新集章进度失败: %w", err)
	}

	if ready {
		err := m.events.write(uow, model.EventProgressReady, progress.TenantID, progress.CustomerID, now, map[string]interface{}{
			"progress_id":      progress.ID,
			"customer_id":      progress.CustomerID,
			"reward_id":        progress.RewardID,
			"stamps_collected": progress.StampsCollected,
		})
		if err != nil {
			return 0, err
		}
	}
	return before, nil
}

// ---------------------------------------------------------------- 查询

func (m *ProgressStateMachine) GetProgress(ctx context.Context, tenantID, progressID int64) (*model.UserRewardProgress, error) {
	return m.store.Progress.GetByID(ctx, tenantID, progressID)
}

// ListCustomerProgress status 为空时返回全部记录
func (m *ProgressStateMachine) ListCustomerProgress(ctx context.Context, tenantID, customerID int64, status model.ProgressStatus) ([]*model.UserRewardProgress, error) {
	return m.store.Progress.ListByCustomer(ctx, tenantID, customerID, status)
}

func (m *ProgressStateMachine) CustomerStats(ctx context.Context, tenantID, customerID int64) (*model.ProgressStats, error) {
	return m.store.Progress.Stats(ctx, tenantID, customerID)
}

func (m *ProgressStateMachine) ListScanHistory(ctx context.Context, tenantID, customerID int64, page, pageSize int) ([]*model.ScanHistoryRecord, int64, error) {
	return m.store.ScanHistory.ListByCustomer(ctx, tenantID, customerID, page, pageSize)
}

