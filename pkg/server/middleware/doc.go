// Package middleware provides the HTTP middleware chain of the keeper
// facade: panic recovery, request ids, access logging, request metrics and
// the WebSocket tunnel to the proxy inbound.
//
// The chain is assembled innermost first:
//
//	handler = Tunnel(cfg, logger)(mux)
//	handler = tracing.HTTPMiddleware(tracer)(handler)
//	handler = Metrics(collector, routes...)(handler)
//	handler = Logging(logger)(handler)
//	handler = RequestID(handler)
//	handler = Recovery(logger)(handler)
//
// The status-capturing writer supports hijacking, so tunnelled connections
// pass through logging and metrics and are recorded with status 101.
package middleware
