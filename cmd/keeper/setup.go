package main

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"

	"wayfarer-hq/keeper/pkg/cli"
	"wayfarer-hq/keeper/pkg/config"
	"wayfarer-hq/keeper/pkg/identity"
	"wayfarer-hq/keeper/pkg/journal"
	"wayfarer-hq/keeper/pkg/proxyconf"
	"wayfarer-hq/keeper/pkg/server/middleware"
	"wayfarer-hq/keeper/pkg/telemetry/logging"
	"wayfarer-hq/keeper/pkg/telemetry/metrics"
	"wayfarer-hq/keeper/pkg/telemetry/tracing"
)

// loadConfig loads cfgFile and the environment. Failures are ConfigErrors
// so the process exits before binding anything.
func loadConfig() (*config.Config, identity.Parameters, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, identity.Parameters{}, cli.WrapConfigError(err)
	}
	params, err := cfg.IdentityParameters()
	if err != nil {
		return nil, identity.Parameters{}, cli.WrapConfigError(err)
	}
	return cfg, params, nil
}

// newLogger builds the process logger and installs it as the slog default.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level := cfg.Telemetry.Logging.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{
		Level:     level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
		RedactIDs: cfg.Telemetry.Logging.RedactIDs,
	})
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger.Slog())
	return logger, nil
}

// telemetry bundles the optional observability components.
type telemetry struct {
	metrics *metrics.Collector
	tracer  *tracing.Tracer
	journal *journal.Journal
}

func newTelemetry(cfg *config.Config, logger *logging.Logger) (*telemetry, error) {
	t := &telemetry{}

	if cfg.Telemetry.Metrics.Enabled {
		t.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		logger.Warn("tracing unavailable, continuing without spans", "error", err)
		tracer = tracing.Noop()
	}
	t.tracer = tracer

	store, err := journal.Open(cfg.Journal)
	if err != nil {
		return nil, cli.NewConfigError("journal", err.Error())
	}
	t.journal = journal.New(store, logger)

	return t, nil
}

func (t *telemetry) Close(ctx context.Context) {
	t.journal.Close()
	t.tracer.Shutdown(ctx)
}

// runtimeConfig is what run writes for the proxy. With forwarding on, the
// inbound binds loopback and the facade tunnels WebSocket upgrades to it.
func runtimeConfig(cfg *config.Config, params identity.Parameters) proxyconf.RuntimeConfig {
	opts := []proxyconf.RuntimeOption{proxyconf.WithLogLevel(cfg.Proxy.LogLevel)}
	if cfg.Proxy.Forward {
		opts = append(opts, proxyconf.WithListen("127.0.0.1"))
	}
	return proxyconf.BuildRuntimeConfig(params, cfg.Proxy.InboundPort, opts...)
}

func tunnelConfig(cfg *config.Config, params identity.Parameters) *middleware.TunnelConfig {
	if !cfg.Proxy.Forward {
		return nil
	}
	return &middleware.TunnelConfig{
		Path:   params.Path(),
		Target: &url.URL{Scheme: "http", Host: "127.0.0.1:" + strconv.Itoa(cfg.Proxy.InboundPort)},
	}
}

// clientLink builds the descriptor and vmess link for params.
func clientLink(cfg *config.Config, params identity.Parameters) (proxyconf.Descriptor, string, error) {
	d := proxyconf.BuildDescriptor(params, params.PublicDomain(), proxyconf.WithDisplayName(cfg.Identity.DisplayName))
	uri, err := proxyconf.EncodeURI(d)
	return d, uri, err
}
