package signin

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess  = "success"
	outcomeFailure  = "failure"
	outcomeRejected = "rejected"
)

// Metrics records sign-in attempts. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the sign-in collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doughstock_admin",
			Subsystem: "signin",
			Name:      "attempts_total",
			Help:      "Sign-in submissions by outcome (success, failure, rejected).",
		}, []string{"outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "doughstock_admin",
			Subsystem: "signin",
			Name:      "verify_duration_seconds",
			Help:      "Latency of credential verification calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observe(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) observeRejected() {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcomeRejected).Inc()
}
