package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.port").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// HasField reports whether any error concerns field.
func (e ValidationError) HasField(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Validate validates the entire configuration and returns a ValidationError
// collecting every failed rule, or nil.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateIdentity(&cfg.Identity)...)
	errs = append(errs, validateProxy(&cfg.Proxy, cfg.Server.Port)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateJournal(&cfg.Journal)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validatePort(field string, port int) []FieldError {
	if port < 1 || port > 65535 {
		return []FieldError{{Field: field, Message: fmt.Sprintf("port %d out of range 1-65535", port)}}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	errs = append(errs, validatePort("server.port", cfg.Port)...)
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "must not be negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "must not be negative"})
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "must be positive"})
	}

	return errs
}

func validateIdentity(cfg *IdentityConfig) []FieldError {
	var errs []FieldError

	if _, err := uuid.Parse(cfg.UUID); err != nil || len(cfg.UUID) != 36 {
		errs = append(errs, FieldError{Field: "identity.uuid", Message: fmt.Sprintf("%q is not a canonical UUID", cfg.UUID)})
	}
	if !strings.HasPrefix(cfg.WSPath, "/") {
		errs = append(errs, FieldError{Field: "identity.ws_path", Message: fmt.Sprintf("%q must begin with /", cfg.WSPath)})
	}
	if strings.ContainsAny(cfg.Domain, "/ ") {
		errs = append(errs, FieldError{Field: "identity.domain", Message: fmt.Sprintf("%q must be a bare hostname", cfg.Domain)})
	}

	return errs
}

func validateProxy(cfg *ProxyConfig, serverPort int) []FieldError {
	var errs []FieldError

	errs = append(errs, validatePort("proxy.inbound_port", cfg.InboundPort)...)
	if cfg.InboundPort == serverPort {
		errs = append(errs, FieldError{
			Field:   "proxy.inbound_port",
			Message: fmt.Sprintf("inbound port %d collides with server.port; set one of them to another port", cfg.InboundPort),
		})
	}

	u, err := url.Parse(cfg.DownloadURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, FieldError{Field: "proxy.download_url", Message: fmt.Sprintf("%q is not an http(s) URL", cfg.DownloadURL)})
	}
	if cfg.FetchTimeout <= 0 {
		errs = append(errs, FieldError{Field: "proxy.fetch_timeout", Message: "must be positive"})
	}

	known := map[string]bool{"curl": true, "wget": true, "http": true}
	for _, s := range cfg.Strategies {
		if !known[s] {
			errs = append(errs, FieldError{Field: "proxy.strategies", Message: fmt.Sprintf("unknown strategy %q", s)})
		}
	}

	switch cfg.LogLevel {
	case "debug", "info", "warning", "error", "none":
	default:
		errs = append(errs, FieldError{Field: "proxy.log_level", Message: fmt.Sprintf("unknown proxy log level %q", cfg.LogLevel)})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{Field: "telemetry.logging.level", Message: fmt.Sprintf("unknown log level %q", cfg.Logging.Level)})
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{Field: "telemetry.logging.format", Message: fmt.Sprintf("unknown log format %q", cfg.Logging.Format)})
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "must begin with /"})
	}

	if cfg.Heartbeat.Enabled {
		if _, err := cron.ParseStandard(cfg.Heartbeat.Schedule); err != nil {
			errs = append(errs, FieldError{Field: "telemetry.heartbeat.schedule", Message: err.Error()})
		}
	}

	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "must be between 0 and 1"})
	}

	return errs
}

func validateJournal(cfg *JournalConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
		if cfg.Capacity < 1 {
			errs = append(errs, FieldError{Field: "journal.capacity", Message: "must be positive"})
		}
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "journal.sqlite.path", Message: "required for sqlite backend"})
		}
	default:
		errs = append(errs, FieldError{Field: "journal.backend", Message: fmt.Sprintf("unknown backend %q", cfg.Backend)})
	}

	return errs
}
