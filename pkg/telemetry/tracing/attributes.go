package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Custom attribute keys use the "keeper.*" namespace.
const (
	// Provisioning
	AttrStrategy     = "keeper.provision.strategy"
	AttrStage        = "keeper.provision.stage"
	AttrBinaryPath   = "keeper.provision.binary_path"
	AttrDownloadURL  = "keeper.provision.url"
	AttrProvisionOut = "keeper.provision.outcome"

	// Supervision
	AttrExecutable = "keeper.proxy.executable"
	AttrConfigPath = "keeper.proxy.config_path"
	AttrPID        = "keeper.proxy.pid"
	AttrState      = "keeper.proxy.state"
	AttrReason     = "keeper.proxy.reason"

	// Facade
	AttrRequestID = "keeper.request_id"
	AttrRoute     = "keeper.route"
)

// SetStrategyAttributes records which strategy ran and, on failure, the stage
// that failed.
func SetStrategyAttributes(span trace.Span, strategy, stage string) {
	attrs := []attribute.KeyValue{attribute.String(AttrStrategy, strategy)}
	if stage != "" {
		attrs = append(attrs, attribute.String(AttrStage, stage))
	}
	span.SetAttributes(attrs...)
}

// SetLaunchAttributes records the launched executable and its pid.
func SetLaunchAttributes(span trace.Span, executable, configPath string, pid int) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrExecutable, executable),
		attribute.String(AttrConfigPath, configPath),
	}
	if pid > 0 {
		attrs = append(attrs, attribute.Int(AttrPID, pid))
	}
	span.SetAttributes(attrs...)
}

// SetRequestAttributes records facade request identity.
func SetRequestAttributes(span trace.Span, requestID, route string) {
	if requestID != "" {
		span.SetAttributes(attribute.String(AttrRequestID, requestID))
	}
	if route != "" {
		span.SetAttributes(attribute.String(AttrRoute, route))
	}
}
