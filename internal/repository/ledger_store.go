package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"loyaltysystem/internal/apperr"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ============================================================================
// LedgerStore：账本的工作单元
// ============================================================================
//
// 所有修改余额/计数的操作都通过 InTx 执行：
//   1. 开启事务，并设置本事务的行锁等待超时
//   2. 先用 Lock* 方法 SELECT ... FOR UPDATE 锁住要修改的行，再读取当前值
//   3. 计算新值，写回，追加流水，写 outbox 事件
//   4. 回调返回 nil 提交，返回任何错误都整体回滚
//
// 同一行上的操作被行锁串行化；锁等待超时、死锁统一转换为 ConcurrentModification，
// 调用方可以重试。事务内只允许访问数据库，不允许做网络调用。
//
// 多行操作的加锁顺序全局固定：奖励 -> 账户，避免交叉等待形成死锁。
//
// ============================================================================

type LedgerStore struct {
	db          *gorm.DB
	lockTimeout time.Duration
	txTimeout   time.Duration

	Accounts     *AccountRepository
	Transactions *TransactionRepository
	Cards        *StampCardRepository
	Rewards      *RewardRepository
	Progress     *ProgressRepository
	Codes        *StampCodeRepository
	ScanHistory  *ScanHistoryRepository
	Outbox       *OutboxRepository
}

func NewLedgerStore(db *gorm.DB, lockTimeout, txTimeout time.Duration) *LedgerStore {
	return &LedgerStore{
		db:           db,
		lockTimeout:  lockTimeout,
		txTimeout:    txTimeout,
		Accounts:     NewAccountRepository(db),
		Transactions: NewTransactionRepository(db),
		Cards:        NewStampCardRepository(db),
		Rewards:      NewRewardRepository(db),
		Progress:     NewProgressRepository(db),
		Codes:        NewStampCodeRepository(db),
		ScanHistory:  NewScanHistoryRepository(db),
		Outbox:       NewOutboxRepository(db),
	}
}

// InTx 在一个事务里执行 fn，fn 返回错误则整体回滚
func (s *LedgerStore) InTx(ctx context.Context, fn func(uow *UnitOfWork) error) error {
	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.applyLockTimeout(tx); err != nil {
			return fmt.Errorf("设置锁等待超时失败: %w", err)
		}
		return fn(&UnitOfWork{ctx: ctx, tx: tx, store: s})
	})
	return translateError(err)
}

func (s *LedgerStore) applyLockTimeout(tx *gorm.DB) error {
	if s.lockTimeout <= 0 {
		return nil
	}
	switch tx.Dialector.Name() {
	case "mysql":
		secs := int(math.Ceil(s.lockTimeout.Seconds()))
		return tx.Exec(fmt.Sprintf("SET innodb_lock_wait_timeout = %d", secs)).Error
	case "postgres":
		return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockTimeout.Milliseconds())).Error
	default:
		// sqlite 没有行锁，写事务本身是串行的
		return nil
	}
}

// translateError 把驱动层的锁冲突转换为业务错误，业务错误原样返回
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if IsLockConflict(err) {
		return apperr.ConcurrentModification(err)
	}
	return err
}

// IsLockConflict 锁等待超时、死锁、序列化冲突
func IsLockConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		// 1205: Lock wait timeout exceeded; 1213: Deadlock found
		return myErr.Number == 1205 || myErr.Number == 1213
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40P01", "40001": // lock_not_available, deadlock_detected, serialization_failure
			return true
		}
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// paginate 统一的分页参数修正
func paginate(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return (page - 1) * pageSize, pageSize
}
