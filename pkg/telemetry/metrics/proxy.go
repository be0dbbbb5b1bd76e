package metrics

import (
	"strconv"

	"wayfarer-hq/keeper/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ProxyStates lists the values of the state label on keeper_proxy_state.
var ProxyStates = []string{"not_started", "launching", "running", "exited", "crashed"}

// ProxyMetrics tracks the supervised proxy process.
//
// Metrics:
//   - keeper_proxy_state: 1 for the current state, 0 for the others
//   - keeper_proxy_launches_total: launch attempts by result
//   - keeper_proxy_exits_total: process exits by state and code
//   - keeper_proxy_config_drift_total: runtime config changed on disk
//   - keeper_proxy_heartbeats_total: keep-alive ticks by liveness
type ProxyMetrics struct {
	state      *prometheus.GaugeVec
	launches   *prometheus.CounterVec
	exits      *prometheus.CounterVec
	drift      prometheus.Counter
	heartbeats *prometheus.CounterVec
}

// NewProxyMetrics creates and registers proxy metrics.
func NewProxyMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ProxyMetrics {
	pm := &ProxyMetrics{
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "proxy",
				Name:      "state",
				Help:      "Current proxy process state (1 = current)",
			},
			[]string{"state"},
		),

		launches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "proxy",
				Name:      "launches_total",
				Help:      "Proxy launch attempts by result",
			},
			[]string{"result"},
		),

		exits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "proxy",
				Name:      "exits_total",
				Help:      "Proxy process exits by terminal state and exit code",
			},
			[]string{"state", "code"},
		),

		drift: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "proxy",
				Name:      "config_drift_total",
				Help:      "Times the runtime config on disk diverged from the synthesized config",
			},
		),

		heartbeats: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "proxy",
				Name:      "heartbeats_total",
				Help:      "Keep-alive ticks by proxy liveness",
			},
			[]string{"alive"},
		),
	}

	registry.MustRegister(
		pm.state,
		pm.launches,
		pm.exits,
		pm.drift,
		pm.heartbeats,
	)

	pm.SetState("not_started")

	return pm
}

// SetState marks state as current and clears the others.
func (pm *ProxyMetrics) SetState(state string) {
	for _, s := range ProxyStates {
		v := 0.0
		if s == state {
			v = 1
		}
		pm.state.WithLabelValues(s).Set(v)
	}
}

// RecordLaunch records a launch attempt.
func (pm *ProxyMetrics) RecordLaunch(result string) {
	pm.launches.WithLabelValues(result).Inc()
}

// RecordExit records a process exit.
func (pm *ProxyMetrics) RecordExit(state string, code int) {
	pm.exits.WithLabelValues(state, strconv.Itoa(code)).Inc()
}

// RecordDrift records a config drift event.
func (pm *ProxyMetrics) RecordDrift() {
	pm.drift.Inc()
}

// RecordHeartbeat records a keep-alive tick.
func (pm *ProxyMetrics) RecordHeartbeat(alive bool) {
	pm.heartbeats.WithLabelValues(strconv.FormatBool(alive)).Inc()
}
