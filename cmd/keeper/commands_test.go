package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"wayfarer-hq/keeper/pkg/cli"
	"wayfarer-hq/keeper/pkg/config"
	"wayfarer-hq/keeper/pkg/identity"
	"wayfarer-hq/keeper/pkg/journal"
	"wayfarer-hq/keeper/pkg/proxyconf"
	"wayfarer-hq/keeper/pkg/telemetry/logging"
)

const testUUID = "11111111-2222-3333-4444-555555555555"

// clearEnv unsets the variables keeper reads so the host environment cannot
// leak into a test. Call it before the test sets its own.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"PORT", "UUID", "WSPATH", "V2RAY_PORT", "DOMAIN", "KEEPER_DOMAIN",
		"RAILWAY_PUBLIC_DOMAIN", "RENDER_EXTERNAL_HOSTNAME", "RENDER_EXTERNAL_URL",
		"KOYEB_PUBLIC_DOMAIN", "PROJECT_DOMAIN", "KEEPER_JOURNAL_BACKEND",
		"KEEPER_TELEMETRY_LOGGING_LEVEL", "KEEPER_PROXY_FORWARD",
		"KEEPER_SERVER_PORT", "KEEPER_PROXY_INBOUND_PORT",
	} {
		t.Setenv(name, "")
	}
}

// executeCommand runs the root command in an empty directory and returns
// what it printed to stdout. The environment is left as the test set it.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	t.Chdir(t.TempDir())

	// Flags are package globals; reset them between invocations.
	cfgFile, verbose = config.DefaultConfigFile, false
	runFlags.port, runFlags.logLevel, runFlags.dryRun, runFlags.skipProvision = 0, "", false, false
	linkFlags.json, linkFlags.decode = false, ""
	validateFlags.format = "text"
	eventsFlags.db, eventsFlags.limit, eventsFlags.format = "", 50, "text"

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return out.String(), err
}

func TestLinkCommand(t *testing.T) {
	clearEnv(t)
	t.Setenv("UUID", testUUID)
	t.Setenv("WSPATH", "/ws")
	t.Setenv("DOMAIN", "proxy.example.com")

	out, err := executeCommand(t, "link")
	if err != nil {
		t.Fatalf("link error = %v", err)
	}

	d, err := proxyconf.DecodeURI(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("output is not a link: %v\n%s", err, out)
	}
	if d.ID != testUUID || d.Path != "/ws" || d.Address != "proxy.example.com" {
		t.Errorf("descriptor = %+v", d)
	}
}

func TestLinkCommand_JSON(t *testing.T) {
	clearEnv(t)
	t.Setenv("DOMAIN", "proxy.example.com")

	out, err := executeCommand(t, "link", "--json")
	if err != nil {
		t.Fatalf("link --json error = %v", err)
	}

	var got struct {
		Descriptor proxyconf.Descriptor `json:"descriptor"`
		URI        string               `json:"uri"`
		QRCode     string               `json:"qr_code"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if !strings.HasPrefix(got.URI, proxyconf.URIScheme) || got.QRCode == "" {
		t.Errorf("got %+v", got)
	}
}

func TestLinkCommand_Decode(t *testing.T) {
	clearEnv(t)
	out, err := executeCommand(t, "link", "--decode", "vmess://eyJ2IjoiMiIsImFkZCI6ImV4YW1wbGUuY29tIn0=")
	if err != nil {
		t.Fatalf("link --decode error = %v", err)
	}
	if !strings.Contains(out, `"add": "example.com"`) {
		t.Errorf("output = %s", out)
	}

	if _, err := executeCommand(t, "link", "--decode", "https://example.com"); !errors.Is(err, proxyconf.ErrInvalidURI) {
		t.Errorf("decode of a non-vmess link error = %v, want ErrInvalidURI", err)
	}
}

func TestRenderCommand(t *testing.T) {
	clearEnv(t)
	t.Setenv("UUID", testUUID)
	t.Setenv("V2RAY_PORT", "10086")

	out, err := executeCommand(t, "render")
	if err != nil {
		t.Fatalf("render error = %v", err)
	}

	var rc proxyconf.RuntimeConfig
	if err := json.Unmarshal([]byte(out), &rc); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(rc.Inbounds) != 1 || rc.Inbounds[0].Port != 10086 {
		t.Fatalf("inbounds = %+v", rc.Inbounds)
	}
	if rc.Inbounds[0].Listen != "127.0.0.1" {
		t.Errorf("Listen = %q, want loopback while forwarding", rc.Inbounds[0].Listen)
	}
}

func TestValidateCommand(t *testing.T) {
	clearEnv(t)
	t.Setenv("RAILWAY_PUBLIC_DOMAIN", "demo.up.railway.app")

	out, err := executeCommand(t, "validate", "--format", "json")
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}

	var report validateReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if !report.Valid || report.Domain != "demo.up.railway.app" || report.DomainSource != "RAILWAY_PUBLIC_DOMAIN" {
		t.Errorf("report = %+v", report)
	}
	if report.BinaryPresent {
		t.Error("binary reported present in an empty directory")
	}
}

func TestValidateCommand_MalformedIdentity(t *testing.T) {
	clearEnv(t)
	t.Setenv("UUID", "not-a-uuid")

	_, err := executeCommand(t, "validate")
	if err == nil {
		t.Fatal("validate accepted a malformed UUID")
	}
	if code := cli.ExitCode(err); code != cli.ExitConfig {
		t.Errorf("ExitCode() = %d, want %d", code, cli.ExitConfig)
	}
}

func TestRunCommand_DryRun(t *testing.T) {
	clearEnv(t)
	t.Setenv("DOMAIN", "proxy.example.com")

	out, err := executeCommand(t, "run", "--dry-run", "--port", "8081", "--log-level", "error")
	if err != nil {
		t.Fatalf("run --dry-run error = %v", err)
	}
	for _, want := range []string{
		"Configuration loaded (listen port 8081",
		"vmess://",
		"https://proxy.example.com/config",
		"Configuration valid",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunCommand_PortOnDefaultInbound(t *testing.T) {
	clearEnv(t)

	out, err := executeCommand(t, "run", "--dry-run", "--port", "8080")
	if err != nil {
		t.Fatalf("run --dry-run --port 8080 error = %v", err)
	}
	if !strings.Contains(out, "listen port 8080, inbound port 8081") {
		t.Errorf("inbound port not moved off the listen port:\n%s", out)
	}
}

func TestRunCommand_ExplicitPortCollision(t *testing.T) {
	clearEnv(t)
	t.Setenv("V2RAY_PORT", "8080")

	_, err := executeCommand(t, "run", "--dry-run", "--port", "8080")
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("error = %v, want a config error for an explicit inbound on the listen port", err)
	}
}

func TestRenderCommand_PlatformPortOnDefaultInbound(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")

	out, err := executeCommand(t, "render")
	if err != nil {
		t.Fatalf("render error = %v", err)
	}
	var rc proxyconf.RuntimeConfig
	if err := json.Unmarshal([]byte(out), &rc); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(rc.Inbounds) != 1 || rc.Inbounds[0].Port != 8081 {
		t.Errorf("inbounds = %+v, want port 8081", rc.Inbounds)
	}
}

func TestPrintBanner_FallbackWarning(t *testing.T) {
	tests := []struct {
		name     string
		fallback bool
	}{
		{name: "detected domain", fallback: false},
		{name: "placeholder domain", fallback: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Identity.Domain = "proxy.example.com"
			if tt.fallback {
				cfg.Identity.Domain = identity.FallbackDomain
				cfg.Identity.DomainFallback = true
			}
			params, err := cfg.IdentityParameters()
			if err != nil {
				t.Fatal(err)
			}

			var logs, out bytes.Buffer
			logger, err := logging.New(logging.Config{Level: "info", Format: "json", Writer: &logs})
			if err != nil {
				t.Fatal(err)
			}
			if err := printBanner(&out, logger, cfg, params); err != nil {
				t.Fatalf("printBanner() error = %v", err)
			}
			if !strings.Contains(out.String(), "Client link:") {
				t.Errorf("banner missing link:\n%s", out.String())
			}

			var warned bool
			for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
				var rec map[string]any
				if err := json.Unmarshal([]byte(line), &rec); err != nil {
					t.Fatalf("log line is not JSON: %v\n%s", err, line)
				}
				if rec["level"] == "WARN" && rec["fallback"] == true && rec["domain"] == identity.FallbackDomain {
					warned = true
				}
			}
			if warned != tt.fallback {
				t.Errorf("fallback warning logged = %v, want %v:\n%s", warned, tt.fallback, logs.String())
			}
		})
	}
}

func TestEventsCommand(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "journal.db")

	store, err := journal.NewSQLiteStorage(journal.SQLiteConfig{Path: db})
	if err != nil {
		t.Fatal(err)
	}
	j := journal.New(store, nil)
	j.Record(context.Background(), journal.KindProvisionPresent, "provision", "binary present", nil, "path", "./v2ray")
	j.Record(context.Background(), journal.KindProxyLaunched, "supervisor", "proxy launched", nil, "pid", "42")
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := executeCommand(t, "events", "--db", db, "--format", "json")
	if err != nil {
		t.Fatalf("events error = %v", err)
	}
	var events []journal.Event
	if err := json.Unmarshal([]byte(out), &events); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(events) != 2 || events[0].Kind != journal.KindProxyLaunched {
		t.Errorf("events = %+v", events)
	}

	out, err = executeCommand(t, "events", "--db", db)
	if err != nil {
		t.Fatalf("events error = %v", err)
	}
	if !strings.Contains(out, "KIND") || !strings.Contains(out, "pid=42") {
		t.Errorf("table output = %s", out)
	}
}

func TestEventsCommand_MemoryBackend(t *testing.T) {
	clearEnv(t)
	_, err := executeCommand(t, "events")
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("error = %v, want a config error for the memory journal", err)
	}
}

func TestFormatAttrs(t *testing.T) {
	got := formatAttrs(map[string]string{"strategy": "curl", "error": "x", "attempt": "1"})
	if got != "attempt=1 error=x strategy=curl" {
		t.Errorf("formatAttrs() = %q", got)
	}
}
