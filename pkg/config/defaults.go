package config

import (
	"time"

	"wayfarer-hq/keeper/pkg/identity"
)

// Default values for configuration fields.
const (
	// Server defaults
	DefaultServerHost      = "0.0.0.0"
	DefaultServerPort      = 3000
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second

	// Proxy defaults
	DefaultWorkDir      = "."
	DefaultBinaryPath   = "./v2ray"
	DefaultConfigPath   = "./config/config.json"
	DefaultArchivePath  = "./v2ray.zip"
	DefaultDownloadURL  = "https://github.com/v2fly/v2ray-core/releases/latest/download/v2ray-linux-64.zip"
	DefaultFetchTimeout = 2 * time.Minute
	DefaultInboundPort  = 8080
	DefaultForward      = true
	DefaultProxyLog     = "warning"
	DefaultStopTimeout  = 5 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "keeper"
	DefaultTracingEnabled     = false
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingInsecure    = true
	DefaultTracingServiceName = "keeper"
	DefaultTracingSampleRatio = 1.0
	DefaultHeartbeatEnabled   = true
	DefaultHeartbeatSchedule  = "@every 5m"

	// Journal defaults
	DefaultJournalBackend     = "memory"
	DefaultJournalCapacity    = 256
	DefaultJournalSQLitePath  = "data/journal.db"
	DefaultJournalBusyTimeout = 5 * time.Second

	// Watch defaults
	DefaultWatchEnabled  = true
	DefaultWatchDebounce = 200 * time.Millisecond
)

// DefaultStrategies is the default acquisition chain.
var DefaultStrategies = []string{"curl", "wget", "http"}

// DefaultArgs are the default launch arguments.
var DefaultArgs = []string{"run", "-c", "{config}"}

// DefaultConfig returns a Config populated with every default, including the
// boolean switches that default to true. YAML is decoded on top of it so
// omitted keys keep their defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Proxy.Forward = DefaultForward
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	cfg.Telemetry.Tracing.Enabled = DefaultTracingEnabled
	cfg.Telemetry.Tracing.Insecure = DefaultTracingInsecure
	cfg.Telemetry.Heartbeat.Enabled = DefaultHeartbeatEnabled
	cfg.Watch.Enabled = DefaultWatchEnabled
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets defaults for any fields that have zero values.
// It is idempotent.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Identity defaults
	if cfg.Identity.UUID == "" {
		cfg.Identity.UUID = identity.DefaultID
	}
	if cfg.Identity.WSPath == "" {
		cfg.Identity.WSPath = identity.DefaultPath
	}

	// Proxy defaults
	if cfg.Proxy.WorkDir == "" {
		cfg.Proxy.WorkDir = DefaultWorkDir
	}
	if cfg.Proxy.BinaryPath == "" {
		cfg.Proxy.BinaryPath = DefaultBinaryPath
	}
	if cfg.Proxy.ConfigPath == "" {
		cfg.Proxy.ConfigPath = DefaultConfigPath
	}
	if cfg.Proxy.ArchivePath == "" {
		cfg.Proxy.ArchivePath = DefaultArchivePath
	}
	if cfg.Proxy.DownloadURL == "" {
		cfg.Proxy.DownloadURL = DefaultDownloadURL
	}
	if cfg.Proxy.FetchTimeout == 0 {
		cfg.Proxy.FetchTimeout = DefaultFetchTimeout
	}
	if len(cfg.Proxy.Strategies) == 0 {
		cfg.Proxy.Strategies = append([]string(nil), DefaultStrategies...)
	}
	if cfg.Proxy.InboundPort == 0 {
		cfg.Proxy.InboundAuto = true
	}
	ResolveInboundPort(cfg)
	if cfg.Proxy.LogLevel == "" {
		cfg.Proxy.LogLevel = DefaultProxyLog
	}
	if len(cfg.Proxy.Args) == 0 {
		cfg.Proxy.Args = append([]string(nil), DefaultArgs...)
	}
	if cfg.Proxy.StopTimeout == 0 {
		cfg.Proxy.StopTimeout = DefaultStopTimeout
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Heartbeat.Schedule == "" {
		cfg.Telemetry.Heartbeat.Schedule = DefaultHeartbeatSchedule
	}

	// Journal defaults
	if cfg.Journal.Backend == "" {
		cfg.Journal.Backend = DefaultJournalBackend
	}
	if cfg.Journal.Capacity == 0 {
		cfg.Journal.Capacity = DefaultJournalCapacity
	}
	if cfg.Journal.SQLite.Path == "" {
		cfg.Journal.SQLite.Path = DefaultJournalSQLitePath
	}
	if cfg.Journal.SQLite.BusyTimeout == 0 {
		cfg.Journal.SQLite.BusyTimeout = DefaultJournalBusyTimeout
	}

	// Watch defaults
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = DefaultWatchDebounce
	}
}

// ResolveInboundPort picks the inbound port when it was not set explicitly:
// DefaultInboundPort, or the neighbour of server.port when the two would
// collide. Explicit values are left alone for Validate to check. It must run
// again whenever server.port changes.
func ResolveInboundPort(cfg *Config) {
	if !cfg.Proxy.InboundAuto {
		return
	}
	port := DefaultInboundPort
	if port == cfg.Server.Port {
		port = cfg.Server.Port + 1
		if port > 65535 {
			port = cfg.Server.Port - 1
		}
	}
	cfg.Proxy.InboundPort = port
}
