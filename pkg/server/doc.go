// Package server provides the HTTP facade that keeps the hosting platform
// satisfied while the proxy runs beside it.
//
// # Routes
//
//	/             liveness probe, always "Server is running"
//	/status       supervisor state as preformatted text
//	/config       client descriptor page (QR code, vmess link, manual JSON)
//	/config.json  the same descriptor as JSON
//	/events       recent lifecycle events
//	/health       liveness
//	/ready        readiness (proxy alive, binary present)
//	/version      build information
//	/metrics      Prometheus metrics, when enabled
//
// When a TunnelConfig is set, WebSocket upgrades on the transport path are
// forwarded to the proxy inbound on loopback.
//
// # Middleware
//
// Applied outermost first: Recovery, RequestID, Logging, Metrics, tracing,
// Tunnel. None of it depends on proxy state, so "/" answers 200 whether the
// proxy is running, exited or was never launched.
//
// # Basic Usage
//
//	srv := server.NewServer(&cfg.Server, server.Deps{
//	    Identity: params,
//	    Status:   sup,
//	    Journal:  j,
//	    Logger:   logger,
//	})
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
package server
