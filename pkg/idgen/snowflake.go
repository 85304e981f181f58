package idgen

import (
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// 雪花算法流水号生成器
// ============================================================================
//
// 积分流水、印章流水、兑换单都需要一个全局唯一、趋势递增的业务单号，
// 多台服务实例通过不同的 workerID 区分。
//
//   0 - 41位时间戳 - 10位机器ID - 12位序列号
//
// ============================================================================

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// Snowflake 雪花算法ID生成器
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

// NewSnowflake 创建指定机器ID的生成器
func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID 必须在 0-%d 之间", maxWorkerID)
	}
	return &Snowflake{workerID: workerID}, nil
}

var (
	defaultMu        sync.Mutex
	defaultGenerator *Snowflake
)

// Init 设置默认生成器的机器ID，进程启动时调用一次
func Init(workerID int64) error {
	g, err := NewSnowflake(workerID)
	if err != nil {
		return err
	}
	defaultMu.Lock()
	defaultGenerator = g
	defaultMu.Unlock()
	return nil
}

// NextID 使用默认生成器生成下一个ID
func NextID() int64 {
	defaultMu.Lock()
	if defaultGenerator == nil {
		defaultGenerator = &Snowflake{workerID: 1}
	}
	g := defaultGenerator
	defaultMu.Unlock()
	return g.Generate()
}

// Generate 生成ID
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	// 时钟回拨时沿用上一次的时间戳，保证单调
	if now < s.timestamp {
		now = s.timestamp
	}

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

func businessNo(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, NextID())
}

// GenerateLoyaltyTransactionNo 积分流水号，例如：LTX123456789012345678
func GenerateLoyaltyTransactionNo() string {
	return businessNo("LTX")
}

// GenerateStampTransactionNo 印章流水号
func GenerateStampTransactionNo() string {
	return businessNo("STX")
}

// GenerateRedemptionNo 奖励兑换单号
func GenerateRedemptionNo() string {
	return businessNo("RDM")
}
