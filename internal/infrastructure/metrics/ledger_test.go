package metrics

import (
	"errors"
	"testing"

	"loyaltysystem/internal/apperr"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveOperationLabelsByKind(t *testing.T) {
	m := Ledger()

	m.ObserveOperation("redeem_points", apperr.InsufficientPoints(1))
	m.ObserveOperation("redeem_points", nil)
	m.ObserveOperation("redeem_points", errors.New("db down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("redeem_points", string(apperr.KindInsufficientPoints))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("redeem_points", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("redeem_points", "error")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *LedgerMetrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("earn_points", nil)
		m.ObservePoints("earn", 10)
		m.ObserveCodes("issued", 1)
		m.ObserveOutboxPublish(nil)
	})
}

func TestObservePointsIgnoresNonPositive(t *testing.T) {
	m := Ledger()
	before := testutil.ToFloat64(m.points.WithLabelValues("earn"))

	m.ObservePoints("earn", 0)
	m.ObservePoints("earn", 25)

	assert.Equal(t, before+25, testutil.ToFloat64(m.points.WithLabelValues("earn")))
}
