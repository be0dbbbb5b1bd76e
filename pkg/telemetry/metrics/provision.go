package metrics

import (
	"time"

	"wayfarer-hq/keeper/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ProvisionMetrics tracks binary acquisition.
//
// Metrics:
//   - keeper_provision_attempts_total: strategy attempts by strategy and result
//   - keeper_provision_attempt_duration_seconds: attempt duration by strategy
//   - keeper_provision_outcomes_total: overall outcome per Ensure call
type ProvisionMetrics struct {
	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	outcomesTotal   *prometheus.CounterVec
}

// NewProvisionMetrics creates and registers provisioning metrics.
func NewProvisionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ProvisionMetrics {
	pm := &ProvisionMetrics{
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "provision",
				Name:      "attempts_total",
				Help:      "Acquisition strategy attempts by strategy and result",
			},
			[]string{"strategy", "result"},
		),

		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "provision",
				Name:      "attempt_duration_seconds",
				Help:      "Duration of acquisition strategy attempts in seconds",
				// Downloads of a ~20MB archive on PaaS builders
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"strategy"},
		),

		outcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "provision",
				Name:      "outcomes_total",
				Help:      "Provisioning outcomes (present, acquired, unavailable)",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		pm.attemptsTotal,
		pm.attemptDuration,
		pm.outcomesTotal,
	)

	return pm
}

// RecordAttempt records one strategy attempt.
func (pm *ProvisionMetrics) RecordAttempt(strategy, result string, duration time.Duration) {
	pm.attemptsTotal.WithLabelValues(strategy, result).Inc()
	pm.attemptDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordOutcome records the overall provisioning outcome.
func (pm *ProvisionMetrics) RecordOutcome(outcome string) {
	pm.outcomesTotal.WithLabelValues(outcome).Inc()
}
