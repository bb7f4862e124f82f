package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification engine.
type Metrics struct {
	// Cache lookups by outcome: hit, miss, error
	CacheLookups *prometheus.CounterVec

	// Source query latency and failures by source
	SourceLatency  *prometheus.HistogramVec
	SourceFailures *prometheus.CounterVec

	// Verification outcomes by status
	Outcomes *prometheus.CounterVec

	// Full Verify duration for fresh (non-cached) computations
	VerifyLatency prometheus.Histogram

	RateLimited     prometheus.Counter
	DuplicatesFound prometheus.Counter
	JobTransitions  *prometheus.CounterVec
	PersistFailures *prometheus.CounterVec
}

// New registers the engine metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustos_verification_cache_lookups_total",
			Help: "Verification cache lookups by result",
		}, []string{"result"}), // result: "hit", "miss", "error"

		SourceLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trustos_verification_source_duration_seconds",
			Help:    "Duration of source adapter queries",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),

		SourceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustos_verification_source_failures_total",
			Help: "Source adapter failures by source and error category",
		}, []string{"source", "category"}),

		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustos_verification_outcomes_total",
			Help: "Fresh verification outcomes by status",
		}, []string{"status"}),

		VerifyLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustos_verification_verify_duration_seconds",
			Help:    "Duration of fresh verifications including source fan-out",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),

		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "trustos_verification_rate_limited_total",
			Help: "Verifications rejected by the per-subject rate limit",
		}),

		DuplicatesFound: f.NewCounter(prometheus.CounterOpts{
			Name: "trustos_verification_duplicates_total",
			Help: "Job postings rejected as duplicates",
		}),

		JobTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustos_verification_job_transitions_total",
			Help: "Job lifecycle transitions by target state",
		}, []string{"state"}),

		PersistFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trustos_verification_persist_failures_total",
			Help: "Failed best-effort writes after a verification by sink",
		}, []string{"sink"}), // sink: "cache", "stats", "history", "events"
	}
}

func (m *Metrics) IncrementCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}

// ObserveSourceLatency records the duration of one adapter query.
func (m *Metrics) ObserveSourceLatency(source string, d time.Duration) {
	if m != nil {
		m.SourceLatency.WithLabelValues(source).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementSourceFailure(source, category string) {
	if m != nil {
		m.SourceFailures.WithLabelValues(source, category).Inc()
	}
}

func (m *Metrics) IncrementOutcome(status string) {
	if m != nil {
		m.Outcomes.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) ObserveVerifyLatency(d time.Duration) {
	if m != nil {
		m.VerifyLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementRateLimited() {
	if m != nil {
		m.RateLimited.Inc()
	}
}

func (m *Metrics) IncrementDuplicate() {
	if m != nil {
		m.DuplicatesFound.Inc()
	}
}

func (m *Metrics) IncrementJobTransition(state string) {
	if m != nil {
		m.JobTransitions.WithLabelValues(state).Inc()
	}
}

func (m *Metrics) IncrementPersistFailure(sink string) {
	if m != nil {
		m.PersistFailures.WithLabelValues(sink).Inc()
	}
}
