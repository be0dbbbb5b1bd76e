// Package tracing provides OpenTelemetry tracing for keeper.
//
// Spans cover the startup path (provision.ensure, one provision.strategy span
// per attempt, config.write, proxy.launch) and each facade request. Spans are
// exported over OTLP gRPC when telemetry.tracing.enabled is set; otherwise a
// noop tracer is used and the calls cost next to nothing.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    // tracing is optional: log and fall back to tracing.Noop()
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "provision.ensure")
//	defer span.End()
//
// # Sampling
//
// sample_ratio 1 samples everything, 0 samples nothing, anything in between
// samples by trace id. Samplers are parent-based so an incoming traceparent
// header decides for the request span.
package tracing
