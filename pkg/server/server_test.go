package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wayfarer-hq/keeper/pkg/config"
	"wayfarer-hq/keeper/pkg/identity"
	"wayfarer-hq/keeper/pkg/journal"
	"wayfarer-hq/keeper/pkg/supervisor"
	"wayfarer-hq/keeper/pkg/telemetry/health"
	"wayfarer-hq/keeper/pkg/telemetry/logging"
	"wayfarer-hq/keeper/pkg/telemetry/metrics"
)

func testServerConfig() *config.ServerConfig {
	return &config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            0,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		IdleTimeout:     5 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// inhibitedDeps builds a facade whose proxy was never launched.
func inhibitedDeps(t *testing.T) (Deps, *journal.Journal) {
	t.Helper()

	params, err := identity.New(identity.DefaultID, "/ws", 3000, "proxy.example.com")
	if err != nil {
		t.Fatal(err)
	}

	j := journal.New(journal.NewMemoryStorage(16), logging.Discard())
	sup := supervisor.New(supervisor.Config{}, supervisor.WithJournal(j))
	sup.Inhibit(context.Background(), "binary unavailable")

	checker := health.New(time.Second)
	checker.Add("proxy", health.ProcessCheck(sup))

	return Deps{
		Identity:    params,
		Status:      sup,
		Journal:     j,
		Checker:     checker,
		Metrics:     metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "test"}, nil),
		MetricsPath: "/metrics",
		Version:     "test",
	}, j
}

func TestHandler_RootAnswersWhileInhibited(t *testing.T) {
	deps, _ := inhibitedDeps(t)
	h := NewServer(testServerConfig(), deps).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "Server is running" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}
}

func TestHandler_Routes(t *testing.T) {
	deps, _ := inhibitedDeps(t)
	h := NewServer(testServerConfig(), deps).Handler()

	tests := []struct {
		path string
		code int
		want string
	}{
		{"/status", http.StatusOK, "not_started"},
		{"/config", http.StatusOK, "<h1>V2Ray Configuration</h1>"},
		{"/config.json", http.StatusOK, `"uri":"vmess://`},
		{"/events", http.StatusOK, string(journal.KindProxyInhibited)},
		{"/health", http.StatusOK, `"status":"ok"`},
		{"/ready", http.StatusServiceUnavailable, "binary unavailable"},
		{"/version", http.StatusOK, `"version":"test"`},
		{"/metrics", http.StatusOK, "test_http_requests_in_flight"},
		{"/missing", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d", rec.Code, tt.code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body missing %q:\n%s", tt.want, rec.Body.String())
			}
		})
	}
}

func TestHandler_NoJournal(t *testing.T) {
	deps, _ := inhibitedDeps(t)
	deps.Journal = nil
	h := NewServer(testServerConfig(), deps).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	deps, _ := inhibitedDeps(t)
	srv := NewServer(testServerConfig(), deps)

	addr, err := srv.Listen()
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = http.Get("http://" + addr.String() + "/config.json")
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("config.json is not JSON: %v", err)
	}
	if !srv.IsRunning() {
		t.Error("IsRunning() = false while serving")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if srv.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}
}

func TestServer_Stop(t *testing.T) {
	deps, _ := inhibitedDeps(t)
	srv := NewServer(testServerConfig(), deps)

	done := make(chan error, 1)
	go func() { done <- srv.Start(context.Background()) }()

	srv.Stop()
	srv.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestServer_StartTwice(t *testing.T) {
	deps, _ := inhibitedDeps(t)
	srv := NewServer(testServerConfig(), deps)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !srv.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := srv.Start(ctx); err == nil {
		t.Error("second Start() error = nil")
	}

	cancel()
	<-done
}
