package service

import (
	"context"
	"fmt"
	"log"

	"loyaltysystem/internal/apperr"
	"loyaltysystem/internal/config"
	"loyaltysystem/internal/infrastructure/metrics"
	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"
	"loyaltysystem/pkg/clock"
	"loyaltysystem/pkg/idgen"
)

// ============================================================================
// RedemptionCoordinator 积分兑换奖励
// ============================================================================
//
// 一个事务内完成：
//   1. 锁奖励行，校验可兑换（启用、有效期内、未达上限）
//   2. 锁账户行，校验余额
//   3. 奖励兑换次数 +1
//   4. 积分出账（原因 "Redeemed: <奖励名>"）
//   5. 写兑换记录
//
// 加锁顺序固定为 奖励 -> 账户。两个请求抢同一份限量奖励时，后到的请求在奖励行上等待，
// 拿到锁后看到的是已经 +1 的兑换次数，返回 RewardUnavailable。
//
// ============================================================================

type RedemptionCoordinator struct {
	store   *repository.LedgerStore
	ledger  *PointsLedger
	clock   clock.Clock
	events  eventWriter
	metrics *metrics.LedgerMetrics
}

func NewRedemptionCoordinator(store *repository.LedgerStore, ledger *PointsLedger, cfg *config.Config, clk clock.Clock) *RedemptionCoordinator {
	return &RedemptionCoordinator{
		store:   store,
		ledger:  ledger,
		clock:   clk,
		events:  eventWriter{topic: cfg.Kafka.Topic.LedgerEvent},
		metrics: metrics.Ledger(),
	}
}

type RedeemRewardRequest struct {
	TenantID  int64 `json:"-"`
	RewardID  int64 `json:"reward_id" binding:"required"`
	AccountID int64 `json:"account_id" binding:"required"`
	StoreID   int64 `json:"-"`
	ActorID   int64 `json:"-"`
}

type RedemptionResult struct {
	Reward            *model.RewardDefinition   `json:"reward"`
	Account           *model.LoyaltyAccount     `json:"account"`
	LedgerTransaction *model.LoyaltyTransaction `json:"ledger_transaction"`
	Redemption        *model.RewardRedemption   `json:"redemption"`
}

func (c *RedemptionCoordinator) Redeem(ctx context.Context, req *RedeemRewardRequest) (*RedemptionResult, error) {
	var result *RedemptionResult
	err := c.store.InTx(ctx, func(uow *repository.UnitOfWork) error {
		// 1. 奖励（按租户查询，其他租户的奖励视为不存在）
		reward, err := uow.LockReward(req.TenantID, req.RewardID)
		if err != nil {
			return err
		}
		now := c.clock.Now()
		if !reward.IsAvailable(now) || reward.PointsCost <= 0 {
			return apperr.RewardUnavailable(reward.ID)
		}

		// 2. 账户
		account, err := c.ledger.lockActiveAccount(uow, req.TenantID, req.AccountID)
		if err != nil {
			return err
		}
		if account.CurrentPoints < reward.PointsCost {
			return apperr.InsufficientPoints(account.ID)
		}

		// 3. 兑换次数
		if err := uow.IncrementRewardRedemptions(reward.ID); err != nil {
			return fmt.Errorf("更新兑换次数失败: %w", err)
		}
		reward.CurrentRedemptions++

		// 4. 出账
		storeID, actorID := req.StoreID, req.ActorID
		trans, err := c.ledger.debit(uow, account, reward.PointsCost, "Redeemed: "+reward.Name, &storeID, &actorID)
		if err != nil {
			return err
		}

		// 5. 兑换记录
		redemption := &model.RewardRedemption{
			RedemptionNo:        idgen.GenerateRedemptionNo(),
			TenantID:            req.TenantID,
			AccountID:           account.ID,
			RewardID:            reward.ID,
			StoreID:             req.StoreID,
			ActorID:             req.ActorID,
			PointsSpent:         reward.PointsCost,
			LedgerTransactionID: trans.ID,
			Status:              model.RedemptionStatusActive,
			CreatedAt:           now,
		}
		if err := uow.CreateRedemption(redemption); err != nil {
			return fmt.Errorf("创建兑换记录失败: %w", err)
		}

		err = c.events.write(uow, model.EventRewardRedeemed, req.TenantID, account.ID, now, map[string]interface{}{
			"redemption_no": redemption.RedemptionNo,
			"reward_id":     reward.ID,
			"account_id":    account.ID,
			"store_id":      req.StoreID,
			"points_spent":  reward.PointsCost,
		})
		if err != nil {
			return err
		}

		result = &RedemptionResult{
			Reward:            reward,
			Account:           account,
			LedgerTransaction: trans,
			Redemption:        redemption,
		}
		return nil
	})
	c.metrics.ObserveOperation("redeem_reward", err)
	if err != nil {
		return nil, err
	}

	c.metrics.ObservePoints("redeem", result.Redemption.PointsSpent)
	log.Printf("[RedemptionCoordinator] 兑换成功: redemptionNo=%s, rewardID=%d, accountID=%d, points=%d",
		result.Redemption.RedemptionNo, req.RewardID, req.AccountID, result.Redemption.PointsSpent)
	return result, nil
}
