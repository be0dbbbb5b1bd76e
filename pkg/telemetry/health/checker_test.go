package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestChecker_AddReplaces(t *testing.T) {
	checker := New(time.Second)
	checker.Add("proxy", func(context.Context) error { return errors.New("down") })
	checker.Add("proxy", func(context.Context) error { return nil })

	report := checker.Ready(context.Background())
	if report.Status != StatusReady || len(report.Checks) != 1 {
		t.Errorf("Ready() = %+v, want one passing check", report)
	}
}

func TestChecker_ReadyWithoutChecks(t *testing.T) {
	report := New(0).Ready(context.Background())
	if report.Status != StatusReady || len(report.Failing) != 0 {
		t.Errorf("Ready() = %+v", report)
	}
}

func TestChecker_Timeout(t *testing.T) {
	checker := New(20 * time.Millisecond)
	checker.Add("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	report := checker.Ready(context.Background())
	res := report.Checks["slow"]
	if res.Status != StatusFailing || res.Message != ErrCheckTimeout.Error() {
		t.Errorf("slow check = %+v, want timeout", res)
	}
	if report.Status != StatusDegraded {
		t.Errorf("status = %q, want degraded", report.Status)
	}
}

func TestChecker_LiveIgnoresChecks(t *testing.T) {
	checker := New(time.Second)
	checker.Add("proxy", func(context.Context) error { return errors.New("crashed") })

	report := checker.Live()
	if report.Status != StatusOK || report.Uptime == "" || report.Checks != nil {
		t.Errorf("Live() = %+v", report)
	}
}

func TestMount(t *testing.T) {
	checker := New(time.Second)
	checker.Add("proxy", func(context.Context) error { return errors.New("not_started") })

	mux := http.NewServeMux()
	Mount(mux, checker, BuildInfo{Version: "1.2.3", Commit: "abc"})

	tests := []struct {
		method string
		path   string
		code   int
		want   string
	}{
		{http.MethodGet, "/health", http.StatusOK, `"status":"ok"`},
		{http.MethodGet, "/ready", http.StatusServiceUnavailable, `"failing":["proxy"]`},
		{http.MethodGet, "/version", http.StatusOK, `"version":"1.2.3"`},
		{http.MethodHead, "/health", http.StatusOK, ""},
		{http.MethodPost, "/ready", http.StatusMethodNotAllowed, "Method not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d", rec.Code, tt.code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body missing %q:\n%s", tt.want, rec.Body.String())
			}
			if tt.method == http.MethodHead && rec.Body.Len() != 0 {
				t.Errorf("HEAD body = %q", rec.Body.String())
			}
		})
	}
}

func TestMount_VersionFillsGoVersion(t *testing.T) {
	mux := http.NewServeMux()
	Mount(mux, New(0), BuildInfo{Version: "dev"})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	var info BuildInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(info.GoVersion, "go") {
		t.Errorf("GoVersion = %q", info.GoVersion)
	}
}
