package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"loyaltysystem/internal/apperr"
	"loyaltysystem/internal/config"
	"loyaltysystem/internal/infrastructure/metrics"
	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"
	"loyaltysystem/pkg/clock"
	"loyaltysystem/pkg/idgen"
)

// StampCardEngine 集章卡
//
// 和积分账本一样是"加锁读 - 计算 - 写回 - 追加流水"，区别在于卡有容量上限：
// 计数达到 total_stamps 时自动完成，完成后卡面冻结
type StampCardEngine struct {
	store   *repository.LedgerStore
	clock   clock.Clock
	events  eventWriter
	metrics *metrics.LedgerMetrics
}

func NewStampCardEngine(store *repository.LedgerStore, cfg *config.Config, clk clock.Clock) *StampCardEngine {
	return &StampCardEngine{
		store:   store,
		clock:   clk,
		events:  eventWriter{topic: cfg.Kafka.Topic.LedgerEvent},
		metrics: metrics.Ledger(),
	}
}

type CreateCardRequest struct {
	TenantID          int64      `json:"-"`
	AccountID         int64      `json:"account_id" binding:"required"`
	Title             string     `json:"title" binding:"required"`
	TotalStamps       int        `json:"total_stamps" binding:"required"`
	InitialStamps     int        `json:"initial_stamps"` // 纸质卡迁移时的已有章数
	ExpiresAt         *time.Time `json:"expires_at"`
	RewardDescription string     `json:"reward_description"`
}

type AddStampsRequest struct {
	TenantID int64  `json:"-"`
	CardID   int64  `json:"-"`
	Count    int    `json:"count"`
	Reason   string `json:"reason"`
	StoreID  *int64 `json:"-"`
	ActorID  *int64 `json:"-"`
}

type RemoveStampsRequest struct {
	TenantID int64  `json:"-"`
	CardID   int64  `json:"-"`
	Count    int    `json:"count"`
	Reason   string `json:"reason" binding:"required"`
	StoreID  *int64 `json:"-"`
	ActorID  *int64 `json:"-"`
}

type CompleteCardRequest struct {
	TenantID          int64  `json:"-"`
	CardID            int64  `json:"-"`
	RewardDescription string `json:"reward_description"`
	StoreID           *int64 `json:"-"`
	ActorID           *int64 `json:"-"`
}

func (e *StampCardEngine) CreateCard(ctx context.Context, req *CreateCardRequest) (*model.StampCard, error) {
	if req.TotalStamps <= 0 {
		return nil, apperr.InvalidAmount(int64(req.TotalStamps))
	}
	if req.InitialStamps < 0 || req.InitialStamps > req.TotalStamps {
		return nil, apperr.InvalidAmount(int64(req.InitialStamps))
	}

	account, err := e.store.Accounts.GetByID(ctx, req.TenantID, req.AccountID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, apperr.AccountInactive(account.ID)
	}

	card := &model.StampCard{
		TenantID:          req.TenantID,
		AccountID:         req.AccountID,
		Title:             req.Title,
		TotalStamps:       req.TotalStamps,
		CurrentStamps:     req.InitialStamps,
		ExpiresAt:         req.ExpiresAt,
		RewardDescription: req.RewardDescription,
	}
	if err := e.store.Cards.Create(ctx, nil, card); err != nil {
		return nil, fmt.Errorf("创建集章卡失败: %w", err)
	}

	log.Printf("[StampCardEngine] 创建集章卡: cardID=%d, accountID=%d, total=%d", card.ID, card.AccountID, card.TotalStamps)
	return card, nil
}

// AddStamps 盖章
//
// 超出容量的部分不会写到卡面上（current_stamps 截断到 total_stamps），
// 但流水的 stamps_after 保留原始计数
func (e *StampCardEngine) AddStamps(ctx context.Context, req *AddStampsRequest) (*model.StampCard, error) {
	if req.Count <= 0 {
		err := apperr.InvalidAmount(int64(req.Count))
		e.metrics.ObserveOperation("add_stamps", err)
		return nil, err
	}

	var card *model.StampCard
	var completed bool
	err := e.store.InTx(ctx, func(uow *repository.UnitOfWork) error {
		locked, err := e.lockMutableCard(uow, req.TenantID, req.CardID)
		if err != nil {
			return err
		}

		now := e.clock.Now()
		before := locked.CurrentStamps
		raw := before + req.Count
		if raw < before {
			// 溢出时审计值封顶
			raw = math.MaxInt
		}
		if req.Count >= locked.TotalStamps-before {
			locked.CurrentStamps = locked.TotalStamps
			locked.IsCompleted = true
			locked.CompletedAt = &now
			completed = true
		} else {
			locked.CurrentStamps = raw
		}

		if err := uow.SaveCardProgress(locked); err != nil {
			return fmt.Errorf("更新集章卡失败: %w", err)
		}
		trans, err := e.appendTransaction(uow, locked, model.StampTransactionAdd, req.Count, before, raw, req.Reason, req.StoreID, req.ActorID, now)
		if err != nil {
			return err
		}

		data := map[string]interface{}{
			"card_id":        locked.ID,
			"account_id":     locked.AccountID,
			"transaction_no": trans.TransactionNo,
			"delta":          req.Count,
			"current_stamps": locked.CurrentStamps,
		}
		if err := e.events.write(uow, model.EventStampsAdded, locked.TenantID, locked.ID, now, data); err != nil {
			return err
		}
		if completed {
			if err := e.writeCompleted(uow, locked, now); err != nil {
				return err
			}
		}
		card = locked
		return nil
	})
	e.metrics.ObserveOperation("add_stamps", err)
	if err != nil {
		return nil, err
	}

	e.metrics.ObserveStamps("card", req.Count)
	log.Printf("[StampCardEngine] 盖章: cardID=%d, count=%d, stamps=%d/%d, completed=%v",
		card.ID, req.Count, card.CurrentStamps, card.TotalStamps, card.IsCompleted)
	return card, nil
}

// RemoveStamps 店员撤销误盖的章
func (e *StampCardEngine) RemoveStamps(ctx context.Context, req *RemoveStampsRequest) (*model.StampCard, error) {
	if req.Count <= 0 {
		err := apperr.InvalidAmount(int64(req.Count))
		e.metrics.ObserveOperation("remove_stamps", err)
		return nil, err
	}

	var card *model.StampCard
	err := e.store.InTx(ctx, func(uow *repository.UnitOfWork) error {
		locked, err := e.lockMutableCard(uow, req.TenantID, req.CardID)
		if err != nil {
			return err
		}
		if locked.CurrentStamps < req.Count {
			return apperr.InsufficientStamps(locked.ID)
		}

		now := e.clock.Now()
		before := locked.CurrentStamps
		locked.CurrentStamps = before - req.Count

		if err := uow.SaveCardProgress(locked); err != nil {
			return fmt.Errorf("更新集章卡失败: %w", err)
		}
		trans, err := e.appendTransaction(uow, locked, model.StampTransactionRemove, -req.Count, before, locked.CurrentStamps, req.Reason, req.StoreID, req.ActorID, now)
		if err != nil {
			return err
		}

		card = locked
		return e.events.write(uow, model.EventStampsRemoved, locked.TenantID, locked.ID, now, map[string]interface{}{
			"card_id":        locked.ID,
			"account_id":     locked.AccountID,
			"transaction_no": trans.TransactionNo,
			"delta":          -req.Count,
			"current_stamps": locked.CurrentStamps,
		})
	})
	e.metrics.ObserveOperation("remove_stamps", err)
	if err != nil {
		return nil, err
	}

	log.Printf("[StampCardEngine] 撤销盖章: cardID=%d, count=%d, stamps=%d/%d", card.ID, req.Count, card.CurrentStamps, card.TotalStamps)
	return card, nil
}

// CompleteCard 手动完成集章卡，重复调用返回 CardCompleted
func (e *StampCardEngine) CompleteCard(ctx context.Context, req *CompleteCardRequest) (*model.StampCard, error) {
	var card *model.StampCard
	err := e.store.InTx(ctx, func(uow *repository.UnitOfWork) error {
		locked, err := e.lockMutableCard(uow, req.TenantID, req.CardID)
		if err != nil {
			return err
		}
		if locked.CurrentStamps < locked.TotalStamps {
			return apperr.InsufficientStamps(locked.ID)
		}

		now := e.clock.Now()
		locked.IsCompleted = true
		locked.CompletedAt = &now
		if req.RewardDescription != "" {
			locked.RewardDescription = req.RewardDescription
		}

		if err := uow.SaveCardProgress(locked); err != nil {
			return fmt.Errorf("更新集章卡失败: %w", err)
		}
		reason := "Completed: " + locked.RewardDescription
		if _, err := e.appendTransaction(uow, locked, model.StampTransactionComplete, 0, locked.CurrentStamps, locked.CurrentStamps, reason, req.StoreID, req.ActorID, now); err != nil {
			return err
		}

		card = locked
		return e.writeCompleted(uow, locked, now)
	})
	e.metrics.ObserveOperation("complete_card", err)
	if err != nil {
		return nil, err
	}

	log.Printf("[StampCardEngine] 集章卡完成: cardID=%d, reward=%s", card.ID, card.RewardDescription)
	return card, nil
}

// lockMutableCard 锁卡并校验：账户启用、未完成、未过期
func (e *StampCardEngine) lockMutableCard(uow *repository.UnitOfWork, tenantID, cardID int64) (*model.StampCard, error) {
	card, err := uow.LockCard(tenantID, cardID)
	if err != nil {
		return nil, err
	}
	if card.IsCompleted {
		return nil, apperr.CardCompleted(card.ID)
	}
	if card.IsExpired(e.clock.Now()) {
		return nil, apperr.CardExpired(card.ID)
	}

	account, err := uow.GetAccount(tenantID, card.AccountID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, apperr.AccountInactive(account.ID)
	}
	return card, nil
}

func (e *StampCardEngine) appendTransaction(uow *repository.UnitOfWork, card *model.StampCard, txType model.StampTransactionType, delta, before, after int, reason string, storeID, actorID *int64, now time.Time) (*model.StampTransaction, error) {
	trans := &model.StampTransaction{
		TransactionNo: idgen.GenerateStampTransactionNo(),
		TenantID:      card.TenantID,
		CardID:        card.ID,
		AccountID:     card.AccountID,
		Type:          txType,
		Delta:         delta,
		StampsBefore:  before,
		StampsAfter:   after,
		Reason:        reason,
		StoreID:       storeID,
		ActorID:       actorID,
		CreatedAt:     now,
	}
	if err := uow.AppendStampTransaction(trans); err != nil {
		return nil, fmt.Errorf("记录印章流水失败: %w", err)
	}
	return trans, nil
}

func (e *StampCardEngine) writeCompleted(uow *repository.UnitOfWork, card *model.StampCard, now time.Time) error {
	return e.events.write(uow, model.EventCardCompleted, card.TenantID, card.ID, now, map[string]interface{}{
		"card_id":            card.ID,
		"account_id":         card.AccountID,
		"total_stamps":       card.TotalStamps,
		"reward_description": card.RewardDescription,
	})
}

// ---------------------------------------------------------------- 查询

// CardView 集章卡及展示用进度
type CardView struct {
	*model.StampCard
	ProgressPercent int `json:"progress_percent"`
}

func (e *StampCardEngine) GetCard(ctx context.Context, tenantID, cardID int64) (*CardView, error) {
	card, err := e.store.Cards.GetByID(ctx, tenantID, cardID)
	if err != nil {
		return nil, err
	}
	return &CardView{StampCard: card, ProgressPercent: card.ProgressPercent()}, nil
}

func (e *StampCardEngine) ListCards(ctx context.Context, tenantID, accountID int64) ([]*model.StampCard, error) {
	return e.store.Cards.ListByAccountID(ctx, tenantID, accountID)
}

func (e *StampCardEngine) ListStampTransactions(ctx context.Context, tenantID, cardID int64, page, pageSize int) ([]*model.StampTransaction, int64, error) {
	if _, err := e.store.Cards.GetByID(ctx, tenantID, cardID); err != nil {
		return nil, 0, err
	}
	return e.store.Transactions.ListByCardID(ctx, tenantID, cardID, page, pageSize)
}
