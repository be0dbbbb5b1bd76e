package middleware

import (
	"net/http"
	"time"

	"wayfarer-hq/keeper/pkg/telemetry/metrics"
)

// RouteTunnel labels requests forwarded to the proxy inbound.
const RouteTunnel = "tunnel"

// Metrics records request counts and durations. routes lists the known
// paths; anything else is labelled "other" to bound cardinality.
func Metrics(collector *metrics.Collector, routes ...string) func(http.Handler) http.Handler {
	known := make(map[string]bool, len(routes))
	for _, route := range routes {
		known[route] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			collector.IncInFlight()
			defer collector.DecInFlight()

			next.ServeHTTP(rw, r)

			route := "other"
			switch {
			case IsWebSocketUpgrade(r) && rw.statusCode == http.StatusSwitchingProtocols:
				route = RouteTunnel
			case known[r.URL.Path]:
				route = r.URL.Path
			}
			collector.RecordRequest(route, rw.statusCode, time.Since(start))
		})
	}
}
