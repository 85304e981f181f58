package repository

import (
	"context"
	"time"

	"loyaltysystem/internal/model"

	"gorm.io/gorm"
)

// UnitOfWork 绑定在一个事务上的仓储操作集合，只在 LedgerStore.InTx 的回调内有效
type UnitOfWork struct {
	ctx   context.Context
	tx    *gorm.DB
	store *LedgerStore
}

// ---------------------------------------------------------------- 账户

func (u *UnitOfWork) LockAccount(tenantID, accountID int64) (*model.LoyaltyAccount, error) {
	return u.store.Accounts.GetByIDForUpdate(u.ctx, u.tx, tenantID, accountID)
}

// GetAccount 不加锁读取账户，用于只需要校验账户状态的操作
func (u *UnitOfWork) GetAccount(tenantID, accountID int64) (*model.LoyaltyAccount, error) {
	return u.store.Accounts.getByID(u.ctx, u.tx, tenantID, accountID)
}

func (u *UnitOfWork) SaveAccountBalance(account *model.LoyaltyAccount) error {
	return u.store.Accounts.UpdateBalance(u.ctx, u.tx, account)
}

func (u *UnitOfWork) AppendLoyaltyTransaction(trans *model.LoyaltyTransaction) error {
	return u.store.Transactions.Create(u.ctx, u.tx, trans)
}

// ---------------------------------------------------------------- 集章卡

func (u *UnitOfWork) LockCard(tenantID, cardID int64) (*model.StampCard, error) {
	return u.store.Cards.GetByIDForUpdate(u.ctx, u.tx, tenantID, cardID)
}

func (u *UnitOfWork) SaveCardProgress(card *model.StampCard) error {
	return u.store.Cards.UpdateProgress(u.ctx, u.tx, card)
}

func (u *UnitOfWork) AppendStampTransaction(trans *model.StampTransaction) error {
	return u.store.Transactions.CreateStamp(u.ctx, u.tx, trans)
}

// ---------------------------------------------------------------- 奖励

func (u *UnitOfWork) LockReward(tenantID, rewardID int64) (*model.RewardDefinition, error) {
	return u.store.Rewards.GetByIDForUpdate(u.ctx, u.tx, tenantID, rewardID)
}

func (u *UnitOfWork) GetReward(tenantID, rewardID int64) (*model.RewardDefinition, error) {
	return u.store.Rewards.getByID(u.ctx, u.tx, tenantID, rewardID)
}

func (u *UnitOfWork) IncrementRewardRedemptions(rewardID int64) error {
	return u.store.Rewards.IncrementRedemptions(u.ctx, u.tx, rewardID)
}

func (u *UnitOfWork) CreateRedemption(redemption *model.RewardRedemption) error {
	return u.store.Rewards.CreateRedemption(u.ctx, u.tx, redemption)
}

// ---------------------------------------------------------------- 交易码

func (u *UnitOfWork) CreateCode(code *model.StampTransactionCode) error {
	return u.store.Codes.Create(u.ctx, u.tx, code)
}

func (u *UnitOfWork) CodeExists(code string) (bool, error) {
	return u.store.Codes.Exists(u.ctx, u.tx, code)
}

func (u *UnitOfWork) GetCode(code string) (*model.StampTransactionCode, error) {
	return u.store.Codes.getByCode(u.ctx, u.tx, code)
}

func (u *UnitOfWork) ConsumeCode(codeID, staffID, storeID int64, now time.Time) (bool, error) {
	return u.store.Codes.Consume(u.ctx, u.tx, codeID, staffID, storeID, now)
}

func (u *UnitOfWork) CancelCode(codeID int64) (bool, error) {
	return u.store.Codes.Cancel(u.ctx, u.tx, codeID)
}

func (u *UnitOfWork) CancelPendingCodes(tenantID, customerID, rewardID int64) (int64, error) {
	return u.store.Codes.CancelPendingForPair(u.ctx, u.tx, tenantID, customerID, rewardID)
}

// ---------------------------------------------------------------- 集章进度

func (u *UnitOfWork) LockOpenProgress(tenantID, customerID, rewardID int64) (*model.UserRewardProgress, error) {
	return u.store.Progress.GetOpenForUpdate(u.ctx, u.tx, tenantID, customerID, rewardID)
}

func (u *UnitOfWork) OpenProgress(progress *model.UserRewardProgress) (bool, error) {
	return u.store.Progress.CreateOpen(u.ctx, u.tx, progress)
}

func (u *UnitOfWork) LockProgress(tenantID, progressID int64) (*model.UserRewardProgress, error) {
	return u.store.Progress.GetByIDForUpdate(u.ctx, u.tx, tenantID, progressID)
}

func (u *UnitOfWork) SaveProgressCounters(progress *model.UserRewardProgress) error {
	return u.store.Progress.UpdateCounters(u.ctx, u.tx, progress)
}

func (u *UnitOfWork) TransitionProgress(progressID int64, from, to model.ProgressStatus, fields map[string]interface{}) (bool, error) {
	return u.store.Progress.TransitionStatus(u.ctx, u.tx, progressID, from, to, fields)
}

func (u *UnitOfWork) DeleteProgress(progressID int64) error {
	return u.store.Progress.Delete(u.ctx, u.tx, progressID)
}

// ---------------------------------------------------------------- 审计 / 事件

func (u *UnitOfWork) AppendScanHistory(record *model.ScanHistoryRecord) error {
	return u.store.ScanHistory.Create(u.ctx, u.tx, record)
}

func (u *UnitOfWork) AppendOutbox(msg *model.OutboxMessage) error {
	return u.store.Outbox.Create(u.ctx, u.tx, msg)
}
