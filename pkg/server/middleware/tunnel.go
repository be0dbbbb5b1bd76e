package middleware

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"wayfarer-hq/keeper/pkg/telemetry/logging"
)

// TunnelConfig selects which requests are forwarded to the proxy inbound.
type TunnelConfig struct {
	// Path is the WebSocket transport path.
	Path string

	// Target is the inbound's loopback address, e.g. http://127.0.0.1:8080.
	Target *url.URL
}

// Tunnel forwards WebSocket upgrade requests on the transport path to the
// proxy inbound, so the platform's single public port serves both the
// facade and the proxy. Other requests reach next.
func Tunnel(cfg TunnelConfig, logger *logging.Logger) func(http.Handler) http.Handler {
	logger = logger.Component("tunnel")

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(cfg.Target)
			pr.Out.Host = pr.In.Host
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.WarnContext(r.Context(), "proxy inbound unreachable",
				"target", cfg.Target.String(),
				"error", err,
			)
			http.Error(w, "Proxy unavailable", http.StatusBadGateway)
		},
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != cfg.Path || !IsWebSocketUpgrade(r) {
				next.ServeHTTP(w, r)
				return
			}

			// The server's read and write timeouts would cut long-lived
			// tunnels.
			rc := http.NewResponseController(w)
			_ = rc.SetReadDeadline(time.Time{})
			_ = rc.SetWriteDeadline(time.Time{})

			proxy.ServeHTTP(w, r)
		})
	}
}

// IsWebSocketUpgrade reports whether r asks to switch to WebSocket.
func IsWebSocketUpgrade(r *http.Request) bool {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return false
	}
	for _, value := range r.Header.Values("Connection") {
		for _, token := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
				return true
			}
		}
	}
	return false
}
