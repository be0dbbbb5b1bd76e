package provision

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"wayfarer-hq/keeper/pkg/config"
	"wayfarer-hq/keeper/pkg/journal"
	"wayfarer-hq/keeper/pkg/telemetry/metrics"
)

// fakeStrategy records its calls into a shared log and runs fn.
type fakeStrategy struct {
	name string
	log  *[]string
	fn   func(req Request) error
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) FetchAndExtract(_ context.Context, req Request) error {
	*f.log = append(*f.log, f.name)
	if f.fn == nil {
		return nil
	}
	return f.fn(req)
}

func failing(name string, log *[]string) *fakeStrategy {
	return &fakeStrategy{name: name, log: log, fn: func(Request) error {
		return atStage(StageFetch, errors.New(name+": connection refused"))
	}}
}

// producing writes the archive and the target, like a successful unzip.
func producing(name string, log *[]string) *fakeStrategy {
	return &fakeStrategy{name: name, log: log, fn: func(req Request) error {
		if err := os.WriteFile(req.ArchivePath, []byte("zip"), 0o644); err != nil {
			return err
		}
		return os.WriteFile(req.Target, []byte("#!/bin/sh\n"), 0o644)
	}}
}

func testConfig(dir string) Config {
	return Config{
		WorkDir:     dir,
		ArchivePath: filepath.Join(dir, "v2ray.zip"),
		DownloadURL: "https://example.com/v2ray.zip",
		Timeout:     5 * time.Second,
	}
}

func TestEnsure_TargetPresent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "v2ray")
	if err := os.WriteFile(target, []byte("bin"), 0o600); err != nil {
		t.Fatal(err)
	}

	var calls []string
	p := New(testConfig(dir), []Strategy{producing("curl", &calls), producing("http", &calls)})

	if err := p.Ensure(context.Background(), target); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("strategies invoked %v, want none", calls)
	}

	// An existing target is left exactly as found.
	info, _ := os.Stat(target)
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestEnsure_FallsThroughInOrder(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "v2ray")

	var calls []string
	p := New(testConfig(dir), []Strategy{
		failing("curl", &calls),
		producing("wget", &calls),
		producing("http", &calls),
	})

	if err := p.Ensure(context.Background(), target); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if strings.Join(calls, ",") != "curl,wget" {
		t.Errorf("calls = %v, want [curl wget]", calls)
	}

	info, err := os.Stat(target)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("mode = %v, want 0755", info.Mode().Perm())
	}
	if _, err := os.Stat(filepath.Join(dir, "v2ray.zip")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("archive still present: %v", err)
	}
}

func TestEnsure_AllFail(t *testing.T) {
	dir := t.TempDir()

	var calls []string
	p := New(testConfig(dir), []Strategy{failing("curl", &calls), failing("wget", &calls)})

	err := p.Ensure(context.Background(), filepath.Join(dir, "v2ray"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Ensure() error = %v, want ErrUnavailable", err)
	}

	var se *StrategyError
	if !errors.As(err, &se) {
		t.Fatalf("error %v carries no StrategyError", err)
	}
	if se.Strategy != "curl" || se.Stage != StageFetch {
		t.Errorf("first StrategyError = %+v", se)
	}
	if !strings.Contains(err.Error(), "wget: connection refused") {
		t.Errorf("error %q does not mention every strategy", err)
	}
	if len(calls) != 2 {
		t.Errorf("calls = %v", calls)
	}
}

func TestEnsure_NoStrategies(t *testing.T) {
	dir := t.TempDir()
	err := New(testConfig(dir), nil).Ensure(context.Background(), filepath.Join(dir, "v2ray"))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Ensure() error = %v, want ErrUnavailable", err)
	}
}

func TestEnsure_VerifiesTarget(t *testing.T) {
	dir := t.TempDir()

	var calls []string
	// Reports success without producing anything.
	quiet := &fakeStrategy{name: "curl", log: &calls}
	p := New(testConfig(dir), []Strategy{quiet})

	err := p.Ensure(context.Background(), filepath.Join(dir, "v2ray"))
	var se *StrategyError
	if !errors.As(err, &se) {
		t.Fatalf("Ensure() error = %v, want StrategyError", err)
	}
	if se.Stage != StageVerify {
		t.Errorf("Stage = %q, want %q", se.Stage, StageVerify)
	}
}

func TestEnsure_RecordsMetricsAndJournal(t *testing.T) {
	dir := t.TempDir()
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "test"}, registry)
	store := journal.NewMemoryStorage(16)
	j := journal.New(store, nil)

	var calls []string
	p := New(testConfig(dir),
		[]Strategy{failing("curl", &calls), producing("http", &calls)},
		WithMetrics(collector),
		WithJournal(j),
	)

	if err := p.Ensure(context.Background(), filepath.Join(dir, "v2ray")); err != nil {
		t.Fatal(err)
	}

	expected := `
# HELP test_provision_outcomes_total Provisioning outcomes (present, acquired, unavailable)
# TYPE test_provision_outcomes_total counter
test_provision_outcomes_total{outcome="acquired"} 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "test_provision_outcomes_total"); err != nil {
		t.Error(err)
	}
	if n, err := testutil.GatherAndCount(registry, "test_provision_attempts_total"); err != nil || n != 2 {
		t.Errorf("attempt series = %d (%v), want 2", n, err)
	}

	events, _ := j.Recent(context.Background(), 0)
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Kind != journal.KindProvisionAcquired || events[1].Kind != journal.KindProvisionAttempt {
		t.Errorf("kinds = %s, %s", events[0].Kind, events[1].Kind)
	}
	if events[1].Attrs["strategy"] != "curl" || events[1].Attrs["stage"] != StageFetch {
		t.Errorf("attempt attrs = %v", events[1].Attrs)
	}
}

func TestCommandStrategy(t *testing.T) {
	var invocations [][]string
	run := func(_ context.Context, name string, args ...string) ([]byte, error) {
		invocations = append(invocations, append([]string{name}, args...))
		return nil, nil
	}

	req := Request{
		URL:         "https://example.com/v2ray.zip",
		ArchivePath: "/work/v2ray.zip",
		WorkDir:     "/work",
		Timeout:     2 * time.Minute,
	}

	tests := []struct {
		strategy *CommandStrategy
		want     string
	}{
		{strategy: Curl(run), want: "curl -fsSL --max-time 120 -o /work/v2ray.zip https://example.com/v2ray.zip"},
		{strategy: Wget(run), want: "wget -q -T 120 -O /work/v2ray.zip https://example.com/v2ray.zip"},
	}

	for _, tt := range tests {
		t.Run(tt.strategy.Name(), func(t *testing.T) {
			invocations = nil
			if err := tt.strategy.FetchAndExtract(context.Background(), req); err != nil {
				t.Fatal(err)
			}
			if len(invocations) != 2 {
				t.Fatalf("invocations = %v", invocations)
			}
			if got := strings.Join(invocations[0], " "); got != tt.want {
				t.Errorf("download = %q, want %q", got, tt.want)
			}
			if got := strings.Join(invocations[1], " "); got != "unzip -o -q /work/v2ray.zip -d /work" {
				t.Errorf("extract = %q", got)
			}
		})
	}
}

func TestCommandStrategy_FetchFailureSkipsExtract(t *testing.T) {
	var names []string
	run := func(_ context.Context, name string, _ ...string) ([]byte, error) {
		names = append(names, name)
		return []byte("curl: (6) Could not resolve host"), errors.New("exit status 6")
	}

	err := Curl(run).FetchAndExtract(context.Background(), Request{Timeout: time.Second})
	if stageOf(err) != StageFetch {
		t.Errorf("stage = %q, want fetch", stageOf(err))
	}
	if len(names) != 1 {
		t.Errorf("commands run = %v, want only curl", names)
	}
}

func TestStrategiesByName(t *testing.T) {
	chain, err := StrategiesByName([]string{"http", "curl", "wget"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, s := range chain {
		got = append(got, s.Name())
	}
	if strings.Join(got, ",") != "http,curl,wget" {
		t.Errorf("chain = %v", got)
	}

	if _, err := StrategiesByName([]string{"scp"}, nil); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestSeconds(t *testing.T) {
	if got := seconds(200 * time.Millisecond); got != "1" {
		t.Errorf("seconds(200ms) = %q, want 1", got)
	}
	if got := seconds(90 * time.Second); got != "90" {
		t.Errorf("seconds(90s) = %q", got)
	}
}

func TestExecRunner_IncludesOutput(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	_, err := ExecRunner(context.Background(), "/bin/sh", "-c", "echo boom >&2; exit 3")
	if err == nil || !bytes.Contains([]byte(err.Error()), []byte("boom")) {
		t.Errorf("ExecRunner() error = %v, want output included", err)
	}
}
