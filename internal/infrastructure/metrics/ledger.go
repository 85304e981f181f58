package metrics

import (
	"sync"

	"loyaltysystem/internal/apperr"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics 账本引擎指标
type LedgerMetrics struct {
	operations  *prometheus.CounterVec
	points      *prometheus.CounterVec
	stamps      *prometheus.CounterVec
	codes       *prometheus.CounterVec
	outboxSends *prometheus.CounterVec
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger 返回进程内唯一的指标集合，首次调用时注册到默认 registry
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "loyalty_operations_total",
				Help: "Ledger operations by name and result.",
			}, []string{"operation", "result"}),
			points: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "loyalty_points_total",
				Help: "Points moved through the ledger by direction.",
			}, []string{"direction"}),
			stamps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "loyalty_stamps_total",
				Help: "Stamps applied by source.",
			}, []string{"source"}),
			codes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "loyalty_stamp_codes_total",
				Help: "Stamp transaction code lifecycle events.",
			}, []string{"event"}),
			outboxSends: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "loyalty_outbox_publish_total",
				Help: "Outbox publish attempts by result.",
			}, []string{"result"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.operations,
			ledgerRegistry.points,
			ledgerRegistry.stamps,
			ledgerRegistry.codes,
			ledgerRegistry.outboxSends,
		)
	})
	return ledgerRegistry
}

// ObserveOperation 记录一次引擎操作的结果，业务错误按错误类型打标签
func (m *LedgerMetrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		if kind := apperr.KindOf(err); kind != "" {
			result = string(kind)
		}
	}
	m.operations.WithLabelValues(operation, result).Inc()
}

func (m *LedgerMetrics) ObservePoints(direction string, points int64) {
	if m == nil || points <= 0 {
		return
	}
	m.points.WithLabelValues(direction).Add(float64(points))
}

func (m *LedgerMetrics) ObserveStamps(source string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.stamps.WithLabelValues(source).Add(float64(count))
}

func (m *LedgerMetrics) ObserveCodes(event string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.codes.WithLabelValues(event).Add(float64(count))
}

func (m *LedgerMetrics) ObserveOutboxPublish(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.outboxSends.WithLabelValues(result).Inc()
}
