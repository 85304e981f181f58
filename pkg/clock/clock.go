package clock

import (
	"sync"
	"time"
)

// Clock 时间源，所有过期判断都通过它获取当前时间
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// Real 返回系统时钟（统一使用 UTC，避免不同时区的机器比较 expires_at 时出错）
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// Manual 手动推进的时钟，用于任务调度测试和过期场景测试
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(now time.Time) *Manual {
	return &Manual{now: now}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func (m *Manual) Set(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}
