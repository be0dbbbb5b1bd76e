// Package telemetry groups keeper's observability packages.
//
// # Components
//
//   - logging: structured logging on log/slog with optional id redaction
//   - metrics: Prometheus collector on a private registry
//   - tracing: OpenTelemetry spans exported over OTLP gRPC
//   - health: liveness, readiness and version endpoints
//
// Each is constructed in cmd/keeper from config.TelemetryConfig and passed
// to the components that use it. None of them keeps package-level state
// other than the OpenTelemetry globals set when tracing is enabled.
package telemetry
