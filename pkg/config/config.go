package config

import (
	"time"

	"wayfarer-hq/keeper/pkg/identity"
)

// Config is the root configuration structure for keeper.
type Config struct {
	// Server configures the HTTP facade.
	Server ServerConfig `yaml:"server"`

	// Identity holds the client identity shared by the runtime config and
	// the advertised descriptor.
	Identity IdentityConfig `yaml:"identity"`

	// Proxy configures provisioning and supervision of the proxy binary.
	Proxy ProxyConfig `yaml:"proxy"`

	// Telemetry configures logging, metrics, tracing and the heartbeat.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Journal configures the lifecycle event journal.
	Journal JournalConfig `yaml:"journal"`

	// Watch configures the runtime config drift watcher.
	Watch WatchConfig `yaml:"watch"`
}

// ServerConfig contains configuration for the HTTP facade.
type ServerConfig struct {
	// Host is the bind address. Default: "0.0.0.0"
	Host string `yaml:"host"`

	// Port is the listen port. Hosting platforms assign it through PORT.
	// Default: 3000
	Port int `yaml:"port"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response. It does
	// not apply to forwarded WebSocket connections.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// IdentityConfig contains the deployment identity.
type IdentityConfig struct {
	// UUID is the client identifier. Env: UUID
	UUID string `yaml:"uuid"`

	// WSPath is the WebSocket transport path. Env: WSPATH
	WSPath string `yaml:"ws_path"`

	// Domain is the public hostname. When empty it is resolved from the
	// platform's environment variables at load time.
	Domain string `yaml:"domain"`

	// DisplayName is the descriptor remark ("ps"). Default: keeper-<domain>
	DisplayName string `yaml:"display_name"`

	// DomainSource records where Domain came from after loading.
	DomainSource string `yaml:"-"`

	// DomainFallback is true when Domain is the placeholder fallback.
	DomainFallback bool `yaml:"-"`
}

// ProxyConfig contains configuration for the supervised proxy binary.
type ProxyConfig struct {
	// WorkDir confines every file keeper writes. Default: "."
	WorkDir string `yaml:"work_dir"`

	// BinaryPath is where the executable is expected. Default: "./v2ray"
	BinaryPath string `yaml:"binary_path"`

	// ConfigPath is where the runtime config is written.
	// Default: "./config/config.json"
	ConfigPath string `yaml:"config_path"`

	// ArchivePath is the temporary download location. Default: "./v2ray.zip"
	ArchivePath string `yaml:"archive_path"`

	// DownloadURL is the release archive to fetch.
	DownloadURL string `yaml:"download_url"`

	// FetchTimeout bounds a single download attempt. Default: 2m
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// Strategies is the ordered acquisition chain.
	// Default: ["curl", "wget", "http"]
	Strategies []string `yaml:"strategies"`

	// InboundPort is the port the proxy inbound binds. Env: V2RAY_PORT
	// Default: 8080, or the port next to server.port when that is 8080.
	InboundPort int `yaml:"inbound_port"`

	// InboundAuto is set while InboundPort is a default rather than a value
	// from the file, the environment or a flag.
	InboundAuto bool `yaml:"-"`

	// Forward splices WebSocket upgrades on the transport path from the
	// facade to the inbound, and binds the inbound to loopback.
	// Default: true
	Forward bool `yaml:"forward"`

	// LogLevel is the proxy's own log level. Default: "warning"
	LogLevel string `yaml:"log_level"`

	// Args are the launch arguments. "{config}" is replaced with ConfigPath.
	// Default: ["run", "-c", "{config}"]
	Args []string `yaml:"args"`

	// StopTimeout is how long to wait after SIGTERM before killing the
	// process on shutdown. Default: 5s
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Default: "info"
	Level string `yaml:"level"`

	// Format is one of json, text, console. Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	AddSource bool `yaml:"add_source"`

	// RedactIDs masks client ids and vmess links in log attributes.
	RedactIDs bool `yaml:"redact_ids"`
}

// MetricsConfig contains Prometheus configuration.
type MetricsConfig struct {
	// Enabled exposes the metrics endpoint. Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the metrics endpoint path. Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric name. Default: "keeper"
	Namespace string `yaml:"namespace"`
}

// TracingConfig contains OpenTelemetry configuration.
type TracingConfig struct {
	// Enabled turns on span export. Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address. Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector. Default: true
	Insecure bool `yaml:"insecure"`

	// ServiceName is the resource service name. Default: "keeper"
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of traces sampled. Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`
}

// HeartbeatConfig configures the keep-alive log line some hosts need to
// avoid idle eviction.
type HeartbeatConfig struct {
	// Enabled turns the heartbeat on. Default: true
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression. Default: "@every 5m"
	Schedule string `yaml:"schedule"`
}

// JournalConfig configures lifecycle event recording.
type JournalConfig struct {
	// Backend is "memory" or "sqlite". Default: "memory"
	Backend string `yaml:"backend"`

	// Capacity bounds the memory backend. Default: 256
	Capacity int `yaml:"capacity"`

	// SQLite configures the sqlite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig configures the SQLite journal.
type SQLiteConfig struct {
	// Path is the database file. Default: "data/journal.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long to wait on a locked database. Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// WatchConfig configures the runtime config drift watcher.
type WatchConfig struct {
	// Enabled turns the watcher on. Default: true
	Enabled bool `yaml:"enabled"`

	// Debounce coalesces bursts of file events. Default: 200ms
	Debounce time.Duration `yaml:"debounce"`
}

// IdentityParameters builds the immutable identity from the configuration.
func (c *Config) IdentityParameters() (identity.Parameters, error) {
	return identity.New(c.Identity.UUID, c.Identity.WSPath, c.Server.Port, c.Identity.Domain)
}
