package metrics

import (
	"dinein_backend/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dinein"

// Metrics holds the business and HTTP collectors. It implements services.Recorder.
type Metrics struct {
	visitTransitions *prometheus.CounterVec
	paymentsSettled  *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	sweptPayments    prometheus.Counter
}

// New registers collectors on reg. Pass prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		visitTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visit_transitions_total",
			Help:      "Visits entering each lifecycle status.",
		}, []string{"status"}),
		paymentsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_settled_total",
			Help:      "Payment transactions moved to a terminal status.",
		}, []string{"provider", "status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		sweptPayments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_payments_expired_total",
			Help:      "Pending transactions cancelled by the expiry sweep.",
		}),
	}
	reg.MustRegister(m.visitTransitions, m.paymentsSettled, m.httpRequests, m.httpDuration, m.sweptPayments)
	return m
}

func (m *Metrics) VisitTransition(to models.VisitStatus) {
	m.visitTransitions.WithLabelValues(string(to)).Inc()
}

func (m *Metrics) PaymentSettled(provider models.Provider, status models.PaymentStatus) {
	m.paymentsSettled.WithLabelValues(string(provider), string(status)).Inc()
}

func (m *Metrics) PendingExpired(n int) {
	m.sweptPayments.Add(float64(n))
}

func (m *Metrics) ObserveHTTP(method, route, code string, seconds float64) {
	m.httpRequests.WithLabelValues(method, route, code).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(seconds)
}
