package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"wayfarer-hq/keeper/pkg/identity"
)

// DefaultConfigFile is read when present and no explicit path is given.
const DefaultConfigFile = "keeper.yaml"

// Load builds the runtime configuration:
//
//  1. defaults
//  2. YAML from path, if any (a missing DefaultConfigFile is not an error)
//  3. environment variable overrides
//  4. public domain resolution and a defaulted inbound port moved off
//     server.port
//  5. validation, which fails fast on a malformed identity
func Load(path string) (*Config, error) {
	optional := path == "" || path == DefaultConfigFile
	if path == "" {
		path = DefaultConfigFile
	}

	cfg, err := readFile(path, optional)
	if err != nil {
		return nil, err
	}

	envErrs := applyEnvOverrides(cfg)
	resolveDomain(cfg, os.Getenv)
	ResolveInboundPort(cfg)

	if len(envErrs) > 0 {
		return nil, ValidationError{Errors: envErrs}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readFile decodes path on top of DefaultConfig. When optional is set a
// missing file yields the defaults.
func readFile(path string, optional bool) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	// Decode over a zero inbound port so an explicit value is told apart
	// from the default.
	cfg.Proxy.InboundPort, cfg.Proxy.InboundAuto = 0, false
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

// envString returns the first non-empty value among names.
func envString(names ...string) (string, string) {
	for _, name := range names {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return name, val
		}
	}
	return "", ""
}

// applyEnvOverrides applies environment variable overrides. Variables use
// KEEPER_SECTION_FIELD; the short names hosting platforms and existing
// deployments use (PORT, UUID, WSPATH, V2RAY_PORT) are accepted as well.
// Unparseable values are returned as field errors rather than ignored.
func applyEnvOverrides(cfg *Config) []FieldError {
	var errs []FieldError

	setInt := func(field string, dst *int, names ...string) {
		name, val := envString(names...)
		if name == "" {
			return
		}
		i, err := strconv.Atoi(val)
		if err != nil {
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("%s=%q is not an integer", name, val)})
			return
		}
		*dst = i
	}
	setDuration := func(field string, dst *time.Duration, names ...string) {
		name, val := envString(names...)
		if name == "" {
			return
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("%s=%q is not a duration", name, val)})
			return
		}
		*dst = d
	}
	setBool := func(field string, dst *bool, names ...string) {
		name, val := envString(names...)
		if name == "" {
			return
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("%s=%q is not a boolean", name, val)})
			return
		}
		*dst = b
	}
	setString := func(dst *string, names ...string) {
		if name, val := envString(names...); name != "" {
			*dst = val
		}
	}

	// Server overrides
	setString(&cfg.Server.Host, "KEEPER_SERVER_HOST")
	setInt("server.port", &cfg.Server.Port, "KEEPER_SERVER_PORT", "PORT")
	setDuration("server.shutdown_timeout", &cfg.Server.ShutdownTimeout, "KEEPER_SERVER_SHUTDOWN_TIMEOUT")

	// Identity overrides
	setString(&cfg.Identity.UUID, "KEEPER_IDENTITY_UUID", "UUID")
	setString(&cfg.Identity.WSPath, "KEEPER_IDENTITY_WS_PATH", "WSPATH")
	setString(&cfg.Identity.DisplayName, "KEEPER_DISPLAY_NAME")

	// Proxy overrides
	setString(&cfg.Proxy.WorkDir, "KEEPER_PROXY_WORK_DIR")
	setString(&cfg.Proxy.BinaryPath, "KEEPER_PROXY_BINARY_PATH")
	setString(&cfg.Proxy.ConfigPath, "KEEPER_PROXY_CONFIG_PATH")
	setString(&cfg.Proxy.DownloadURL, "KEEPER_PROXY_DOWNLOAD_URL")
	setDuration("proxy.fetch_timeout", &cfg.Proxy.FetchTimeout, "KEEPER_PROXY_FETCH_TIMEOUT")
	if name, _ := envString("KEEPER_PROXY_INBOUND_PORT", "V2RAY_PORT"); name != "" {
		setInt("proxy.inbound_port", &cfg.Proxy.InboundPort, name)
		cfg.Proxy.InboundAuto = false
	}
	setBool("proxy.forward", &cfg.Proxy.Forward, "KEEPER_PROXY_FORWARD")
	setString(&cfg.Proxy.LogLevel, "KEEPER_PROXY_LOG_LEVEL")
	if _, val := envString("KEEPER_PROXY_STRATEGIES"); val != "" {
		cfg.Proxy.Strategies = splitList(val)
	}

	// Telemetry overrides
	setString(&cfg.Telemetry.Logging.Level, "KEEPER_TELEMETRY_LOGGING_LEVEL")
	setString(&cfg.Telemetry.Logging.Format, "KEEPER_TELEMETRY_LOGGING_FORMAT")
	setBool("telemetry.logging.redact_ids", &cfg.Telemetry.Logging.RedactIDs, "KEEPER_TELEMETRY_LOGGING_REDACT_IDS")
	setBool("telemetry.metrics.enabled", &cfg.Telemetry.Metrics.Enabled, "KEEPER_TELEMETRY_METRICS_ENABLED")
	setString(&cfg.Telemetry.Metrics.Path, "KEEPER_TELEMETRY_METRICS_PATH")
	setBool("telemetry.tracing.enabled", &cfg.Telemetry.Tracing.Enabled, "KEEPER_TELEMETRY_TRACING_ENABLED")
	setString(&cfg.Telemetry.Tracing.Endpoint, "KEEPER_TELEMETRY_TRACING_ENDPOINT")
	if name, val := envString("KEEPER_TELEMETRY_TRACING_SAMPLE_RATIO"); name != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		} else {
			errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: fmt.Sprintf("%s=%q is not a number", name, val)})
		}
	}
	setBool("telemetry.heartbeat.enabled", &cfg.Telemetry.Heartbeat.Enabled, "KEEPER_TELEMETRY_HEARTBEAT_ENABLED")
	setString(&cfg.Telemetry.Heartbeat.Schedule, "KEEPER_TELEMETRY_HEARTBEAT_SCHEDULE")

	// Journal overrides
	setString(&cfg.Journal.Backend, "KEEPER_JOURNAL_BACKEND")
	setString(&cfg.Journal.SQLite.Path, "KEEPER_JOURNAL_SQLITE_PATH")

	// Watch overrides
	setBool("watch.enabled", &cfg.Watch.Enabled, "KEEPER_WATCH_ENABLED")

	return errs
}

// resolveDomain fills Identity.Domain. Explicit override variables beat the
// config file, which beats the platform variables and the fallback.
func resolveDomain(cfg *Config, lookup func(string) string) {
	res := identity.ResolveDomain(lookup)
	if cfg.Identity.Domain != "" && !isOverride(res.Source) {
		cfg.Identity.DomainSource = "config"
		cfg.Identity.DomainFallback = false
		return
	}
	cfg.Identity.Domain = res.Domain
	cfg.Identity.DomainSource = res.Source
	cfg.Identity.DomainFallback = res.Fallback
}

func isOverride(source string) bool {
	return source == "KEEPER_DOMAIN" || source == "DOMAIN"
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
