package metrics

import (
	"sync"
	"time"

	"wayfarer-hq/keeper/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector is the main orchestrator for all Prometheus metrics in keeper.
// It manages metric registration and provides a unified interface for
// recording metrics across components.
//
// Every Record method is safe to call on a nil *Collector, so components
// built without metrics need no guards.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	// Binary acquisition
	provisionMetrics *ProvisionMetrics

	// Supervised process lifecycle
	proxyMetrics *ProxyMetrics

	// Facade requests
	requestMetrics *RequestMetrics

	// Cardinality tracking for the route label
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified
// configuration and Prometheus registry. If registry is nil a fresh one is
// created; keeper never registers on the global default registry.
//
// Example:
//
//	cfg := &config.MetricsConfig{Enabled: true, Namespace: "keeper"}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(64),
	}

	c.provisionMetrics = NewProvisionMetrics(cfg, registry)
	c.proxyMetrics = NewProxyMetrics(cfg, registry)
	c.requestMetrics = NewRequestMetrics(cfg, registry)

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordProvisionAttempt records one strategy attempt.
//
// Parameters:
//   - strategy: acquisition strategy name ("curl", "wget", "http")
//   - result: "success" or the failing stage ("fetch", "extract", "verify", "permission")
//   - duration: time spent in the attempt
func (c *Collector) RecordProvisionAttempt(strategy, result string, duration time.Duration) {
	if !c.enabled() {
		return
	}

	c.provisionMetrics.RecordAttempt(strategy, result, duration)
}

// RecordProvisionOutcome records the overall provisioning result
// ("present", "acquired", "unavailable").
func (c *Collector) RecordProvisionOutcome(outcome string) {
	if !c.enabled() {
		return
	}

	c.provisionMetrics.RecordOutcome(outcome)
}

// RecordLaunch records a launch attempt ("success", "executable_missing",
// "spawn_failed", "inhibited").
func (c *Collector) RecordLaunch(result string) {
	if !c.enabled() {
		return
	}

	c.proxyMetrics.RecordLaunch(result)
}

// SetProxyState sets the one-hot proxy state gauge.
func (c *Collector) SetProxyState(state string) {
	if !c.enabled() {
		return
	}

	c.proxyMetrics.SetState(state)
}

// RecordProxyExit records the exit of the supervised process.
func (c *Collector) RecordProxyExit(state string, code int) {
	if !c.enabled() {
		return
	}

	c.proxyMetrics.RecordExit(state, code)
}

// RecordConfigDrift records that the runtime config on disk no longer
// matches what keeper wrote.
func (c *Collector) RecordConfigDrift() {
	if !c.enabled() {
		return
	}

	c.proxyMetrics.RecordDrift()
}

// RecordHeartbeat records a keep-alive tick and whether the proxy was alive.
func (c *Collector) RecordHeartbeat(alive bool) {
	if !c.enabled() {
		return
	}

	c.proxyMetrics.RecordHeartbeat(alive)
}

// RecordRequest records a facade request.
//
// Parameters:
//   - route: matched route pattern (e.g., "/status"); unknown routes are folded into "other"
//   - status: HTTP status code
//   - duration: time to serve
func (c *Collector) RecordRequest(route string, status int, duration time.Duration) {
	if !c.enabled() {
		return
	}

	if !c.cardinalityLimiter.Allow(route) {
		route = "other"
	}

	c.requestMetrics.RecordRequest(route, status, duration)
}

// IncInFlight and DecInFlight track requests being served.
func (c *Collector) IncInFlight() {
	if !c.enabled() {
		return
	}
	c.requestMetrics.inFlight.Inc()
}

// DecInFlight decrements the in-flight request gauge.
func (c *Collector) DecInFlight() {
	if !c.enabled() {
		return
	}
	c.requestMetrics.inFlight.Dec()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet is already tracked or still fits under the
// limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
