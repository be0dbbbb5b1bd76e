package middleware

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"wayfarer-hq/keeper/pkg/config"
	"wayfarer-hq/keeper/pkg/telemetry/logging"
	"wayfarer-hq/keeper/pkg/telemetry/metrics"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger(t *testing.T) (*logging.Logger, *syncBuffer) {
	t.Helper()
	var out syncBuffer
	logger, err := logging.New(logging.Config{Level: "debug", Format: "json", Writer: &out})
	if err != nil {
		t.Fatal(err)
	}
	return logger, &out
}

func ok(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("OK"))
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.GetRequestID(r.Context())
	}))

	t.Run("generates an id", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		got := w.Header().Get(RequestIDHeader)
		if len(got) != 36 || got != seen {
			t.Errorf("header %q, context %q", got, seen)
		}
	})

	t.Run("reuses the client id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "client-123")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if seen != "client-123" || w.Header().Get(RequestIDHeader) != "client-123" {
			t.Errorf("id = %q", seen)
		}
	})
}

func TestLogging(t *testing.T) {
	logger, out := testLogger(t)

	tests := []struct {
		status int
		level  string
	}{
		{status: http.StatusOK, level: "INFO"},
		{status: http.StatusNotFound, level: "WARN"},
		{status: http.StatusInternalServerError, level: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			handler := RequestID(Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/status", nil))

			logs := out.String()
			want := fmt.Sprintf(`"level":"%s","msg":"request completed"`, tt.level)
			if !strings.Contains(logs, want) || !strings.Contains(logs, fmt.Sprintf(`"status":%d`, tt.status)) {
				t.Errorf("logs missing %s:\n%s", want, logs)
			}
			if !strings.Contains(logs, `"request_id":"`) {
				t.Errorf("request id not logged:\n%s", logs)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	logger, out := testLogger(t)
	handler := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/config", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(out.String(), "panic in handler") {
		t.Error("panic not logged")
	}

	w = httptest.NewRecorder()
	Recovery(logger)(http.HandlerFunc(ok)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("passthrough = %d %q", w.Code, w.Body.String())
	}
}

func TestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "test"}, registry)
	handler := Metrics(collector, "/", "/status")(http.HandlerFunc(ok))

	for _, path := range []string{"/", "/status", "/status", "/wp-admin"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	expected := `
# HELP test_http_requests_total Total number of facade requests
# TYPE test_http_requests_total counter
test_http_requests_total{route="/",status="200"} 1
test_http_requests_total{route="/status",status="200"} 2
test_http_requests_total{route="other",status="200"} 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "test_http_requests_total"); err != nil {
		t.Error(err)
	}
}

func TestIsWebSocketUpgrade(t *testing.T) {
	tests := []struct {
		name       string
		upgrade    string
		connection string
		want       bool
	}{
		{name: "browser", upgrade: "websocket", connection: "Upgrade", want: true},
		{name: "keep-alive list", upgrade: "WebSocket", connection: "keep-alive, Upgrade", want: true},
		{name: "plain", want: false},
		{name: "h2c", upgrade: "h2c", connection: "Upgrade", want: false},
		{name: "no connection token", upgrade: "websocket", connection: "keep-alive", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.upgrade != "" {
				r.Header.Set("Upgrade", tt.upgrade)
			}
			if tt.connection != "" {
				r.Header.Set("Connection", tt.connection)
			}
			if got := IsWebSocketUpgrade(r); got != tt.want {
				t.Errorf("IsWebSocketUpgrade() = %v, want %v", got, tt.want)
			}
		})
	}
}

// echoUpgrade plays the proxy inbound: it accepts the upgrade and echoes
// one line back over the raw connection.
func echoUpgrade(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsWebSocketUpgrade(r) || r.URL.Path != "/ws" {
			http.Error(w, "expected upgrade", http.StatusBadRequest)
			return
		}
		conn, brw, err := http.NewResponseController(w).Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		defer conn.Close()

		brw.WriteString("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n")
		brw.Flush()

		line, err := brw.ReadString('\n')
		if err != nil {
			return
		}
		brw.WriteString("echo: " + line)
		brw.Flush()
	}))
}

func TestTunnel(t *testing.T) {
	inbound := echoUpgrade(t)
	defer inbound.Close()
	target, _ := url.Parse(inbound.URL)

	logger, _ := testLogger(t)
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "test"}, registry)

	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Server is running"))
	})
	handler = Tunnel(TunnelConfig{Path: "/ws", Target: target}, logger)(handler)
	handler = Metrics(collector, "/ws")(handler)
	handler = Logging(logger)(handler)

	facade := httptest.NewServer(handler)
	defer facade.Close()

	t.Run("plain request reaches the facade", func(t *testing.T) {
		resp, err := http.Get(facade.URL + "/ws")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if string(body) != "Server is running" {
			t.Errorf("body = %q", body)
		}
	})

	t.Run("upgrade is spliced to the inbound", func(t *testing.T) {
		conn, err := net.Dial("tcp", strings.TrimPrefix(facade.URL, "http://"))
		if err != nil {
			t.Fatal(err)
		}
		defer conn.Close()

		fmt.Fprintf(conn, "GET /ws HTTP/1.1\r\nHost: proxy.example.com\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n")
		br := bufio.NewReader(conn)
		resp, err := http.ReadResponse(br, nil)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusSwitchingProtocols {
			t.Fatalf("status = %d, want 101", resp.StatusCode)
		}

		fmt.Fprintf(conn, "ping\n")
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if line != "echo: ping\n" {
			t.Errorf("echo = %q", line)
		}
	})
}

func TestTunnel_InboundDown(t *testing.T) {
	logger, out := testLogger(t)
	// Nothing listens on this address once the server is closed.
	down := httptest.NewServer(http.NotFoundHandler())
	target, _ := url.Parse(down.URL)
	down.Close()

	handler := Tunnel(TunnelConfig{Path: "/", Target: target}, logger)(http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
	if !strings.Contains(out.String(), "proxy inbound unreachable") {
		t.Error("failure not logged")
	}
}
