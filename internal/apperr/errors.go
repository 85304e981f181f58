package apperr

import (
	"errors"
	"fmt"
	"strconv"
)

// Kind 业务错误类型，调用方据此映射到对外的错误码和提示文案
type Kind string

const (
	KindInsufficientPoints      Kind = "INSUFFICIENT_POINTS"
	KindInsufficientStamps      Kind = "INSUFFICIENT_STAMPS"
	KindCardExpired             Kind = "CARD_EXPIRED"
	KindCardCompleted           Kind = "CARD_COMPLETED"
	KindRewardUnavailable       Kind = "REWARD_UNAVAILABLE"
	KindCodeExpiredOrConsumed   Kind = "TRANSACTION_CODE_EXPIRED_OR_CONSUMED"
	KindAccountNotFound         Kind = "ACCOUNT_NOT_FOUND"
	KindAccountInactive         Kind = "ACCOUNT_INACTIVE"
	KindCardNotFound            Kind = "CARD_NOT_FOUND"
	KindRewardNotFound          Kind = "REWARD_NOT_FOUND"
	KindProgressNotFound        Kind = "PROGRESS_NOT_FOUND"
	KindCodeNotFound            Kind = "CODE_NOT_FOUND"
	KindNotCodeOwner            Kind = "NOT_CODE_OWNER"
	KindInvalidTransition       Kind = "INVALID_TRANSITION"
	KindConcurrentModification  Kind = "CONCURRENT_MODIFICATION"
	KindInvalidAmount           Kind = "INVALID_AMOUNT"
	KindCodeGenerationExhausted Kind = "CODE_GENERATION_EXHAUSTED"
)

// Error 携带错误类型和出错实体的业务错误
type Error struct {
	Kind   Kind
	Entity string
	ID     string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Entity != "" {
		msg += ": " + e.Entity
		if e.ID != "" {
			msg += " " + e.ID
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按 Kind 匹配，errors.Is(err, apperr.ErrInsufficientPoints) 不关心具体实体
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// 用于 errors.Is 比较的哨兵值
var (
	ErrInsufficientPoints      = &Error{Kind: KindInsufficientPoints}
	ErrInsufficientStamps      = &Error{Kind: KindInsufficientStamps}
	ErrCardExpired             = &Error{Kind: KindCardExpired}
	ErrCardCompleted           = &Error{Kind: KindCardCompleted}
	ErrRewardUnavailable       = &Error{Kind: KindRewardUnavailable}
	ErrCodeExpiredOrConsumed   = &Error{Kind: KindCodeExpiredOrConsumed}
	ErrAccountNotFound         = &Error{Kind: KindAccountNotFound}
	ErrAccountInactive         = &Error{Kind: KindAccountInactive}
	ErrCardNotFound            = &Error{Kind: KindCardNotFound}
	ErrRewardNotFound          = &Error{Kind: KindRewardNotFound}
	ErrProgressNotFound        = &Error{Kind: KindProgressNotFound}
	ErrCodeNotFound            = &Error{Kind: KindCodeNotFound}
	ErrNotCodeOwner            = &Error{Kind: KindNotCodeOwner}
	ErrInvalidTransition       = &Error{Kind: KindInvalidTransition}
	ErrConcurrentModification  = &Error{Kind: KindConcurrentModification}
	ErrInvalidAmount           = &Error{Kind: KindInvalidAmount}
	ErrCodeGenerationExhausted = &Error{Kind: KindCodeGenerationExhausted}
)

func newErr(kind Kind, entity string, id int64) *Error {
	return &Error{Kind: kind, Entity: entity, ID: strconv.FormatInt(id, 10)}
}

func InsufficientPoints(accountID int64) error {
	return newErr(KindInsufficientPoints, "account", accountID)
}

func InsufficientStamps(cardID int64) error {
	return newErr(KindInsufficientStamps, "stamp_card", cardID)
}

func CardExpired(cardID int64) error {
	return newErr(KindCardExpired, "stamp_card", cardID)
}

func CardCompleted(cardID int64) error {
	return newErr(KindCardCompleted, "stamp_card", cardID)
}

func RewardUnavailable(rewardID int64) error {
	return newErr(KindRewardUnavailable, "reward", rewardID)
}

func AccountNotFound(accountID int64) error {
	return newErr(KindAccountNotFound, "account", accountID)
}

func AccountInactive(accountID int64) error {
	return newErr(KindAccountInactive, "account", accountID)
}

func CardNotFound(cardID int64) error {
	return newErr(KindCardNotFound, "stamp_card", cardID)
}

func RewardNotFound(rewardID int64) error {
	return newErr(KindRewardNotFound, "reward", rewardID)
}

func ProgressNotFound(progressID int64) error {
	return newErr(KindProgressNotFound, "reward_progress", progressID)
}

// OpenProgressNotFound 按 (客户, 奖励) 查找进行中的集章记录失败
func OpenProgressNotFound(customerID, rewardID int64) error {
	return &Error{Kind: KindProgressNotFound, Entity: "reward_progress", ID: fmt.Sprintf("customer=%d reward=%d", customerID, rewardID)}
}

func ProgressAlreadyClosed(progressID int64) error {
	return newErr(KindCodeExpiredOrConsumed, "reward_progress", progressID)
}

func CodeExpiredOrConsumed(code string) error {
	return &Error{Kind: KindCodeExpiredOrConsumed, Entity: "stamp_code", ID: code}
}

func CodeNotFound(code string) error {
	return &Error{Kind: KindCodeNotFound, Entity: "stamp_code", ID: code}
}

func NotCodeOwner(code string) error {
	return &Error{Kind: KindNotCodeOwner, Entity: "stamp_code", ID: code}
}

func InvalidTransition(entity string, id int64, from, to string) error {
	return &Error{Kind: KindInvalidTransition, Entity: entity, ID: strconv.FormatInt(id, 10), Err: fmt.Errorf("%s -> %s", from, to)}
}

func InvalidAmount(amount int64) error {
	return &Error{Kind: KindInvalidAmount, Entity: "amount", ID: strconv.FormatInt(amount, 10)}
}

func CodeGenerationExhausted(attempts int) error {
	return &Error{Kind: KindCodeGenerationExhausted, Err: fmt.Errorf("%d attempts collided", attempts)}
}

// ConcurrentModification 锁等待超时、死锁或隔离级别冲突
func ConcurrentModification(cause error) error {
	return &Error{Kind: KindConcurrentModification, Err: cause}
}

// KindOf 取出错误链上的业务错误类型，非业务错误返回空串
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
