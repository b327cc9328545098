package metrics

import (
	"testing"

	"dinein_backend/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.VisitTransition(models.VisitStatusClosed)
	m.VisitTransition(models.VisitStatusClosed)
	m.PaymentSettled(models.ProviderClick, models.PaymentStatusAccepted)
	m.PendingExpired(3)
	m.ObserveHTTP("GET", "/ping", "200", 0.01)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.visitTransitions.WithLabelValues("closed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.paymentsSettled.WithLabelValues("CLICK", "accepted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sweptPayments))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/ping", "200")))
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
