package service

import (
	"context"
	"fmt"
	"log"
	"math"

	"loyaltysystem/internal/apperr"
	"loyaltysystem/internal/config"
	"loyaltysystem/internal/infrastructure/metrics"
	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"
	"loyaltysystem/pkg/clock"
	"loyaltysystem/pkg/idgen"
)

// ============================================================================
// PointsLedger 积分账本
// ============================================================================
//
// 入账/出账流程（同一事务）：
//   1. SELECT ... FOR UPDATE 锁住账户行
//   2. 校验账户状态和余额
//   3. 写回 current_points / total_earned / total_redeemed / level
//   4. 追加一条积分流水（balance_before + delta = balance_after）
//   5. 写 outbox 事件
//
// ============================================================================

type PointsLedger struct {
	store   *repository.LedgerStore
	clock   clock.Clock
	events  eventWriter
	metrics *metrics.LedgerMetrics
}

func NewPointsLedger(store *repository.LedgerStore, cfg *config.Config, clk clock.Clock) *PointsLedger {
	return &PointsLedger{
		store:   store,
		clock:   clk,
		events:  eventWriter{topic: cfg.Kafka.Topic.LedgerEvent},
		metrics: metrics.Ledger(),
	}
}

type EarnRequest struct {
	TenantID  int64  `json:"-"`
	AccountID int64  `json:"account_id" binding:"required"`
	Points    int64  `json:"points"`
	Reason    string `json:"reason"`
	StoreID   *int64 `json:"-"`
	ActorID   *int64 `json:"-"`
}

type RedeemPointsRequest struct {
	TenantID  int64  `json:"-"`
	AccountID int64  `json:"account_id" binding:"required"`
	Points    int64  `json:"points"`
	Reason    string `json:"reason"`
	StoreID   *int64 `json:"-"`
	ActorID   *int64 `json:"-"`
}

// Earn 积分入账
func (l *PointsLedger) Earn(ctx context.Context, req *EarnRequest) (*model.LoyaltyAccount, error) {
	if req.Points <= 0 {
		err := apperr.InvalidAmount(req.Points)
		l.metrics.ObserveOperation("earn", err)
		return nil, err
	}

	var account *model.LoyaltyAccount
	err := l.store.InTx(ctx, func(uow *repository.UnitOfWork) error {
		locked, err := l.lockActiveAccount(uow, req.TenantID, req.AccountID)
		if err != nil {
			return err
		}
		if _, err := l.credit(uow, locked, req.Points, req.Reason, req.StoreID, req.ActorID); err != nil {
			return err
		}
		account = locked
		return nil
	})
	l.metrics.ObserveOperation("earn", err)
	if err != nil {
		return nil, err
	}

	l.metrics.ObservePoints("earn", req.Points)
	log.Printf("[PointsLedger] 积分入账: accountID=%d, points=%d, balance=%d", account.ID, req.Points, account.CurrentPoints)
	return account, nil
}

// Redeem 积分出账，余额不足时整体回滚
func (l *PointsLedger) Redeem(ctx context.Context, req *RedeemPointsRequest) (*model.LoyaltyAccount, error) {
	if req.Points <= 0 {
		err := apperr.InvalidAmount(req.Points)
		l.metrics.ObserveOperation("redeem", err)
		return nil, err
	}

	var account *model.LoyaltyAccount
	err := l.store.InTx(ctx, func(uow *repository.UnitOfWork) error {
		locked, err := l.lockActiveAccount(uow, req.TenantID, req.AccountID)
		if err != nil {
			return err
		}
		if _, err := l.debit(uow, locked, req.Points, req.Reason, req.StoreID, req.ActorID); err != nil {
			return err
		}
		account = locked
		return nil
	})
	l.metrics.ObserveOperation("redeem", err)
	if err != nil {
		return nil, err
	}

	l.metrics.ObservePoints("redeem", req.Points)
	log.Printf("[PointsLedger] 积分出账: accountID=%d, points=%d, balance=%d", account.ID, req.Points, account.CurrentPoints)
	return account, nil
}

// lockActiveAccount 锁住账户行，停用账户不允许任何余额变动
func (l *PointsLedger) lockActiveAccount(uow *repository.UnitOfWork, tenantID, accountID int64) (*model.LoyaltyAccount, error) {
	account, err := uow.LockAccount(tenantID, accountID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, apperr.AccountInactive(accountID)
	}
	return account, nil
}

// credit 在已加锁的账户上入账，account 原地更新为最新快照
func (l *PointsLedger) credit(uow *repository.UnitOfWork, account *model.LoyaltyAccount, points int64, reason string, storeID, actorID *int64) (*model.LoyaltyTransaction, error) {
	if points <= 0 || points > math.MaxInt64-account.TotalEarned {
		return nil, apperr.InvalidAmount(points)
	}
	account.TotalEarned += points
	account.Level = model.LevelFor(account.TotalEarned)
	return l.apply(uow, account, points, model.LoyaltyTransactionEarn, reason, storeID, actorID)
}

// debit 在已加锁的账户上出账
func (l *PointsLedger) debit(uow *repository.UnitOfWork, account *model.LoyaltyAccount, points int64, reason string, storeID, actorID *int64) (*model.LoyaltyTransaction, error) {
	if points <= 0 {
		return nil, apperr.InvalidAmount(points)
	}
	if account.CurrentPoints < points {
		return nil, apperr.InsufficientPoints(account.ID)
	}
	account.TotalRedeemed += points
	return l.apply(uow, account, -points, model.LoyaltyTransactionRedeem, reason, storeID, actorID)
}

func (l *PointsLedger) apply(uow *repository.UnitOfWork, account *model.LoyaltyAccount, delta int64, txType model.LoyaltyTransactionType, reason string, storeID, actorID *int64) (*model.LoyaltyTransaction, error) {
	now := l.clock.Now()
	before := account.CurrentPoints
	account.CurrentPoints = before + delta
	account.LastActivityAt = &now

	if !account.BalanceConsistent() {
		return nil, fmt.Errorf("账户余额不一致: accountID=%d, current=%d, earned=%d, redeemed=%d",
			account.ID, account.CurrentPoints, account.TotalEarned, account.TotalRedeemed)
	}
	if err := uow.SaveAccountBalance(account); err != nil {
		return nil, fmt.Errorf("更新账户余额失败: %w", err)
	}

	trans := &model.LoyaltyTransaction{
		TransactionNo: idgen.GenerateLoyaltyTransactionNo(),
		TenantID:      account.TenantID,
		AccountID:     account.ID,
		Type:          txType,
		Delta:         delta,
		BalanceBefore: before,
		BalanceAfter:  account.CurrentPoints,
		Reason:        reason,
		StoreID:       storeID,
		ActorID:       actorID,
		CreatedAt:     now,
	}
	if err := uow.AppendLoyaltyTransaction(trans); err != nil {
		return nil, fmt.Errorf("记录积分流水失败: %w", err)
	}

	eventType := model.EventPointsEarned
	if txType == model.LoyaltyTransactionRedeem {
		eventType = model.EventPointsRedeemed
	}
	err := l.events.write(uow, eventType, account.TenantID, account.ID, now, map[string]interface{}{
		"account_id":     account.ID,
		"customer_id":    account.CustomerID,
		"transaction_no": trans.TransactionNo,
		"delta":          delta,
		"balance_after":  account.CurrentPoints,
		"level":          account.Level,
	})
	if err != nil {
		return nil, err
	}
	return trans, nil
}

// ---------------------------------------------------------------- 账户管理 / 查询

// Enroll 开户，重复调用返回已有账户
func (l *PointsLedger) Enroll(ctx context.Context, tenantID, customerID int64) (*model.LoyaltyAccount, error) {
	account, err := l.store.Accounts.GetOrCreate(ctx, tenantID, customerID)
	l.metrics.ObserveOperation("enroll", err)
	if err != nil {
		return nil, fmt.Errorf("开户失败: %w", err)
	}
	return account, nil
}

// Deactivate 停用账户，之后的入账/出账都会返回 AccountInactive
func (l *PointsLedger) Deactivate(ctx context.Context, tenantID, accountID int64) error {
	err := l.store.Accounts.Deactivate(ctx, tenantID, accountID)
	l.metrics.ObserveOperation("deactivate", err)
	if err != nil {
		return err
	}
	log.Printf("[PointsLedger] 账户已停用: tenantID=%d, accountID=%d", tenantID, accountID)
	return nil
}

func (l *PointsLedger) GetAccount(ctx context.Context, tenantID, accountID int64) (*model.LoyaltyAccount, error) {
	return l.store.Accounts.GetByID(ctx, tenantID, accountID)
}

// ListTransactions 账户积分流水，按时间倒序
func (l *PointsLedger) ListTransactions(ctx context.Context, tenantID, accountID int64, page, pageSize int) ([]*model.LoyaltyTransaction, int64, error) {
	if _, err := l.store.Accounts.GetByID(ctx, tenantID, accountID); err != nil {
		return nil, 0, err
	}
	return l.store.Transactions.ListByAccountID(ctx, tenantID, accountID, page, pageSize)
}

func (l *PointsLedger) ListRedemptions(ctx context.Context, tenantID, accountID int64, page, pageSize int) ([]*model.RewardRedemption, int64, error) {
	if _, err := l.store.Accounts.GetByID(ctx, tenantID, accountID); err != nil {
		return nil, 0, err
	}
	return l.store.Rewards.ListRedemptionsByAccountID(ctx, tenantID, accountID, page, pageSize)
}
