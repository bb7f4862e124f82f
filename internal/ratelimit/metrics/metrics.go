package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Allowed  prometheus.Counter
	Rejected prometheus.Counter
	FailOpen prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Allowed: f.NewCounter(prometheus.CounterOpts{
			Name: "trustos_ratelimit_allowed_total",
			Help: "Total number of verification requests admitted by the rate limiter",
		}),
		Rejected: f.NewCounter(prometheus.CounterOpts{
			Name: "trustos_ratelimit_rejected_total",
			Help: "Total number of verification requests rejected by the rate limiter",
		}),
		FailOpen: f.NewCounter(prometheus.CounterOpts{
			Name: "trustos_ratelimit_fail_open_total",
			Help: "Total number of requests admitted because the counter store was unavailable",
		}),
	}
}

func (m *Metrics) IncrementAllowed() {
	if m != nil {
		m.Allowed.Inc()
	}
}

func (m *Metrics) IncrementRejected() {
	if m != nil {
		m.Rejected.Inc()
	}
}

func (m *Metrics) IncrementFailOpen() {
	if m != nil {
		m.FailOpen.Inc()
	}
}
