// Package metrics provides Prometheus metrics collection for keeper.
//
// # Metrics Categories
//
//   - Provision: strategy attempts, attempt duration, overall outcome
//   - Proxy: one-hot state gauge, launches, exits, config drift, heartbeats
//   - HTTP: facade request count, duration and in-flight gauge
//   - Go runtime and process collectors
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordProvisionAttempt("curl", "success", 3*time.Second)
//	collector.SetProxyState("running")
//	mux.Handle("/metrics", collector.Handler())
//
// A nil *Collector is valid and records nothing.
package metrics
