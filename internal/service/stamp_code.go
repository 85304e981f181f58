package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"loyaltysystem/internal/apperr"
	"loyaltysystem/internal/config"
	"loyaltysystem/internal/infrastructure/metrics"
	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"
	"loyaltysystem/pkg/clock"
	"loyaltysystem/pkg/idgen"
)

// ============================================================================
// StampCodeIssuer 一次性盖章交易码
// ============================================================================
//
// 客户端申请交易码（二维码内容）-> 店员扫码消费 -> 给集章进度加一个章
//
// 消费的唯一并发保护是条件更新：
//   UPDATE ... SET status='completed' WHERE id=? AND status='pending' AND expires_at > now
// 同一个码被两台设备同时扫描时，只有一个事务能更新到 1 行，
// 另一个看到 0 行，返回 TransactionCodeExpiredOrConsumed，不会重复加章。
//
// 过期清理使用同样带谓词的批量更新，可以和消费任意交错执行。
//
// ============================================================================

type StampCodeIssuer struct {
	store       *repository.LedgerStore
	progress    *ProgressStateMachine
	clock       clock.Clock
	events      eventWriter
	metrics     *metrics.LedgerMetrics
	ttl         time.Duration
	codeLength  int
	maxAttempts int
	generate    func(length int) (string, error)
}

func NewStampCodeIssuer(store *repository.LedgerStore, progress *ProgressStateMachine, cfg *config.Config, clk clock.Clock) *StampCodeIssuer {
	return &StampCodeIssuer{
		store:       store,
		progress:    progress,
		clock:       clk,
		events:      eventWriter{topic: cfg.Kafka.Topic.LedgerEvent},
		metrics:     metrics.Ledger(),
		ttl:         cfg.Business.CodeTTL(),
		codeLength:  cfg.Business.CodeLength,
		maxAttempts: cfg.Business.CodeMaxAttempts,
		generate:    idgen.GenerateCode,
	}
}

type IssueCodeRequest struct {
	TenantID   int64  `json:"-"`
	CustomerID int64  `json:"-"`
	RewardID   int64  `json:"reward_id" binding:"required"`
	StoreID    *int64 `json:"store_id"`
}

type ConsumeCodeRequest struct {
	TenantID int64  `json:"-"`
	Code     string `json:"code" binding:"required"`
	StaffID  int64  `json:"-"`
	StoreID  int64  `json:"-"`
}

// ScanResult 一次扫码的结果
type ScanResult struct {
	Code     *model.StampTransactionCode `json:"code"`
	Progress *model.UserRewardProgress   `json:"progress"`
	History  *model.ScanHistoryRecord    `json:"history"`
}

// Issue 生成交易码，同一客户同一奖励之前未使用的码全部作废
func (s *StampCodeIssuer) Issue(ctx context.Context, req *IssueCodeRequest) (*model.StampTransactionCode, error) {
	var code *model.StampTransactionCode
	var cancelled int64
	err := s.store.InTx(ctx, func(uow *repository.UnitOfWork) error {
		reward, err := uow.GetReward(req.TenantID, req.RewardID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if reward.StampsRequired <= 0 || !reward.IsAvailable(now) {
			return apperr.RewardUnavailable(reward.ID)
		}

		cancelled, err = uow.CancelPendingCodes(req.TenantID, req.CustomerID, req.RewardID)
		if err != nil {
			return fmt.Errorf("作废旧交易码失败: %w", err)
		}

		value, err := s.uniqueCode(uow)
		if err != nil {
			return err
		}

		code = &model.StampTransactionCode{
			Code:       value,
			TenantID:   req.TenantID,
			CustomerID: req.CustomerID,
			RewardID:   req.RewardID,
			StoreID:    req.StoreID,
			Status:     model.CodeStatusPending,
			ExpiresAt:  now.Add(s.ttl),
		}
		if err := uow.CreateCode(code); err != nil {
			return fmt.Errorf("创建交易码失败: %w", err)
		}
		return nil
	})
	s.metrics.ObserveOperation("issue_code", err)
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveCodes("issued", 1)
	s.metrics.ObserveCodes("cancelled", cancelled)
	log.Printf("[StampCodeIssuer] 生成交易码: codeID=%d, customerID=%d, rewardID=%d, expiresAt=%s",
		code.ID, code.CustomerID, code.RewardID, code.ExpiresAt.Format(time.RFC3339))
	return code, nil
}

// uniqueCode 有上限的重试，碰撞次数用完返回 CodeGenerationExhausted
func (s *StampCodeIssuer) uniqueCode(uow *repository.UnitOfWork) (string, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		value, err := s.generate(s.codeLength)
		if err != nil {
			return "", fmt.Errorf("生成交易码失败: %w", err)
		}
		exists, err := uow.CodeExists(value)
		if err != nil {
			return "", fmt.Errorf("检查交易码失败: %w", err)
		}
		if !exists {
			return value, nil
		}
		log.Printf("[StampCodeIssuer] 交易码碰撞，重试: attempt=%d", attempt)
	}
	return "", apperr.CodeGenerationExhausted(s.maxAttempts)
}

// Consume 店员扫码：消费交易码、给集章进度加章、写扫码记录，在同一个事务里完成
func (s *StampCodeIssuer) Consume(ctx context.Context, req *ConsumeCodeRequest) (*ScanResult, error) {
	var result *ScanResult
	err := s.store.InTx(ctx, func(uow *repository.UnitOfWork) error {
		code, err := uow.GetCode(req.Code)
		if err != nil {
			return err
		}
		if code.TenantID != req.TenantID {
			return apperr.CodeNotFound(req.Code)
		}

		now := s.clock.Now()
		ok, err := uow.ConsumeCode(code.ID, req.StaffID, req.StoreID, now)
		if err != nil {
			return fmt.Errorf("消费交易码失败: %w", err)
		}
		if !ok {
			return apperr.CodeExpiredOrConsumed(req.Code)
		}
		code.Status = model.CodeStatusCompleted
		code.ConsumedBy = &req.StaffID
		code.ConsumedStoreID = &req.StoreID
		code.ConsumedAt = &now

		progress, err := s.progress.openInTx(uow, code.TenantID, code.CustomerID, code.RewardID)
		if err != nil {
			return err
		}
		before, err := s.progress.stampInTx(uow, progress)
		if err != nil {
			return err
		}

		history := &model.ScanHistoryRecord{
			TenantID:     code.TenantID,
			CodeID:       code.ID,
			ProgressID:   progress.ID,
			CustomerID:   code.CustomerID,
			RewardID:     code.RewardID,
			StaffID:      req.StaffID,
			StoreID:      req.StoreID,
			StampsBefore: before,
			StampsAfter:  progress.StampsCollected,
			StatusAfter:  progress.Status,
			CreatedAt:    now,
		}
		if err := uow.AppendScanHistory(history); err != nil {
			return fmt.Errorf("写入扫码记录失败: %w", err)
		}

		err = s.events.write(uow, model.EventStampCodeConsumed, code.TenantID, code.CustomerID, now, map[string]interface{}{
			"code_id":      code.ID,
			"customer_id":  code.CustomerID,
			"reward_id":    code.RewardID,
			"progress_id":  progress.ID,
			"staff_id":     req.StaffID,
			"store_id":     req.StoreID,
			"stamps_after": progress.StampsCollected,
			"status_after": progress.Status,
		})
		if err != nil {
			return err
		}

		result = &ScanResult{Code: code, Progress: progress, History: history}
		return nil
	})
	s.metrics.ObserveOperation("consume_code", err)
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveCodes("consumed", 1)
	s.metrics.ObserveStamps("scan", 1)
	log.Printf("[StampCodeIssuer] 扫码成功: codeID=%d, staffID=%d, storeID=%d, progressID=%d, stamps=%d/%d",
		result.Code.ID, req.StaffID, req.StoreID, result.Progress.ID, result.Progress.StampsCollected, result.Progress.StampsRequired)
	return result, nil
}

// SweepExpired 把过期未使用的交易码置为 expired，可重复、可并发执行
func (s *StampCodeIssuer) SweepExpired(ctx context.Context) (int64, error) {
	count, err := s.store.Codes.ExpirePending(ctx, s.clock.Now())
	s.metrics.ObserveOperation("sweep_codes", err)
	if err != nil {
		return 0, fmt.Errorf("清理过期交易码失败: %w", err)
	}
	s.metrics.ObserveCodes("expired", count)
	return count, nil
}

// Cancel 客户主动作废自己的交易码，只允许 pending 状态
func (s *StampCodeIssuer) Cancel(ctx context.Context, tenantID int64, value string, ownerID int64) error {
	err := s.store.InTx(ctx, func(uow *repository.UnitOfWork) error {
		code, err := uow.GetCode(value)
		if err != nil {
			return err
		}
		if code.TenantID != tenantID {
			return apperr.CodeNotFound(value)
		}
		if code.CustomerID != ownerID {
			return apperr.NotCodeOwner(value)
		}

		ok, err := uow.CancelCode(code.ID)
		if err != nil {
			return fmt.Errorf("作废交易码失败: %w", err)
		}
		if !ok {
			return apperr.CodeExpiredOrConsumed(value)
		}
		return nil
	})
	s.metrics.ObserveOperation("cancel_code", err)
	if err != nil {
		return err
	}

	s.metrics.ObserveCodes("cancelled", 1)
	log.Printf("[StampCodeIssuer] 交易码已作废: customerID=%d", ownerID)
	return nil
}

func (s *StampCodeIssuer) Get(ctx context.Context, tenantID int64, value string) (*model.StampTransactionCode, error) {
	code, err := s.store.Codes.GetByCode(ctx, value)
	if err != nil {
		return nil, err
	}
	if code.TenantID != tenantID {
		return nil, apperr.CodeNotFound(value)
	}
	return code, nil
}
