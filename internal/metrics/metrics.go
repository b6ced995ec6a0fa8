// Package metrics holds the Prometheus collectors shared by the gateway and
// the practice service. Collectors are registered on a caller-supplied
// registry; a nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gateway outcomes
const (
	OutcomeOK         = "ok"
	OutcomeConnection = "connection_error"
	OutcomeMalformed  = "malformed"
)

// Metrics groups the service's collectors.
type Metrics struct {
	gatewayCalls       *prometheus.CounterVec
	gatewayAttempts    prometheus.Histogram
	gatewayDuration    *prometheus.HistogramVec
	validationFailures *prometheus.CounterVec
	submissions        *prometheus.CounterVec
	xpAwarded          *prometheus.CounterVec
	writeConflicts     prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg creates
// unregistered collectors, which is what tests use.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatewayCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sensei_gateway_calls_total",
				Help: "Inference gateway calls by outcome",
			},
			[]string{"provider", "outcome"},
		),
		gatewayAttempts: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sensei_gateway_attempts",
				Help:    "Backend attempts needed per gateway call",
				Buckets: []float64{1, 2, 3, 4, 5},
			},
		),
		gatewayDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sensei_gateway_duration_seconds",
				Help:    "Time spent in gateway calls",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
			},
			[]string{"outcome"},
		),
		validationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sensei_validation_failures_total",
				Help: "Backend outputs rejected by the schema validator",
			},
			[]string{"shape"},
		),
		submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sensei_submissions_total",
				Help: "Evaluated submissions by subject and correctness",
			},
			[]string{"subject", "correct"},
		),
		xpAwarded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sensei_xp_awarded_total",
				Help: "Experience points awarded",
			},
			[]string{"subject"},
		),
		writeConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sensei_progress_write_conflicts_total",
				Help: "Optimistic version conflicts on progression writes",
			},
		),
	}
}

func (m *Metrics) GatewayCall(provider, outcome string, attempts int, seconds float64) {
	if m == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(provider, outcome).Inc()
	m.gatewayAttempts.Observe(float64(attempts))
	m.gatewayDuration.WithLabelValues(outcome).Observe(seconds)
}

func (m *Metrics) ValidationFailure(shape string) {
	if m == nil {
		return
	}
	m.validationFailures.WithLabelValues(shape).Inc()
}

func (m *Metrics) Submission(subject string, correct bool, xp int) {
	if m == nil {
		return
	}
	label := "false"
	if correct {
		label = "true"
	}
	m.submissions.WithLabelValues(subject, label).Inc()
	m.xpAwarded.WithLabelValues(subject).Add(float64(xp))
}

func (m *Metrics) WriteConflict() {
	if m == nil {
		return
	}
	m.writeConflicts.Inc()
}
