package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"wayfarer-hq/keeper/pkg/cli"
	"wayfarer-hq/keeper/pkg/config"
	"wayfarer-hq/keeper/pkg/heartbeat"
	"wayfarer-hq/keeper/pkg/identity"
	"wayfarer-hq/keeper/pkg/journal"
	"wayfarer-hq/keeper/pkg/provision"
	"wayfarer-hq/keeper/pkg/proxyconf"
	"wayfarer-hq/keeper/pkg/server"
	"wayfarer-hq/keeper/pkg/supervisor"
	"wayfarer-hq/keeper/pkg/telemetry/health"
	"wayfarer-hq/keeper/pkg/telemetry/logging"
	"wayfarer-hq/keeper/pkg/watch"
)

var runFlags struct {
	port          int
	logLevel      string
	dryRun        bool
	skipProvision bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Provision, configure and supervise the proxy",
	Long: `Start keeper with the specified configuration.

run makes sure the proxy binary is present (downloading it when missing),
writes the proxy's runtime config, launches the proxy and serves the HTTP
facade until SIGINT or SIGTERM. A failed download or launch is logged and
the facade keeps serving; a malformed identity exits before listening.

Examples:
  # Start with defaults and the environment
  keeper run

  # Start with a config file
  keeper run --config /etc/keeper/keeper.yaml

  # Override the listen port
  keeper run --port 8081

  # Validate config and print the link without starting anything
  keeper run --dry-run`,
	RunE: runKeeper,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVarP(&runFlags.port, "port", "p", 0, "override listen port")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting anything")
	runCmd.Flags().BoolVar(&runFlags.skipProvision, "skip-provision", false, "do not download the proxy binary")
}

func runKeeper(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cli.WrapConfigError(err)
	}

	// Apply flag overrides
	if runFlags.port != 0 {
		cfg.Server.Port = runFlags.port
		config.ResolveInboundPort(cfg)
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return cli.WrapConfigError(err)
	}
	params, err := cfg.IdentityParameters()
	if err != nil {
		return cli.WrapConfigError(err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	steps := cli.NewSteps(out)
	fmt.Fprintf(out, "keeper v%s\n", Version)
	steps.Done("Configuration loaded (listen port %d, inbound port %d)", cfg.Server.Port, cfg.Proxy.InboundPort)

	if runFlags.dryRun {
		if err := printBanner(out, logger, cfg, params); err != nil {
			return cli.NewCommandError("run", err)
		}
		steps.Done("Configuration valid")
		return nil
	}

	tel, err := newTelemetry(cfg, logger)
	if err != nil {
		return err
	}
	defer tel.Close(context.Background())

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	tel.journal.Record(ctx, journal.KindServiceStarted, "keeper", "keeper starting", nil,
		"version", Version,
		"port", strconv.Itoa(cfg.Server.Port),
	)

	sup := supervisor.New(supervisor.ConfigFrom(&cfg.Proxy),
		supervisor.WithLogger(logger),
		supervisor.WithMetrics(tel.metrics),
		supervisor.WithJournal(tel.journal),
		supervisor.WithTracer(tel.tracer),
	)

	// 1. Provision the binary. Failure inhibits the launch, nothing more.
	inhibited := false
	if reason := ensureBinary(ctx, cfg, logger, tel); reason != "" {
		steps.Warn("Proxy binary unavailable: %s", reason)
		sup.Inhibit(ctx, reason)
		inhibited = true
	} else {
		steps.Done("Proxy binary present at %s", cfg.Proxy.BinaryPath)
	}

	// 2. Write the runtime config.
	written, err := proxyconf.WriteRuntimeConfig(cfg.Proxy.ConfigPath, runtimeConfig(cfg, params))
	if err != nil {
		logger.Error("failed to write runtime config", "path", cfg.Proxy.ConfigPath, "error", err)
		tel.journal.Record(ctx, journal.KindConfigWritten, "proxyconf", "runtime config not written", err)
		steps.Fail("Runtime config not written: %v", err)
		if !inhibited {
			sup.Inhibit(ctx, "runtime config not written")
			inhibited = true
		}
	} else {
		logger.Info("runtime config written", "path", cfg.Proxy.ConfigPath, "inbound_port", cfg.Proxy.InboundPort)
		tel.journal.Record(ctx, journal.KindConfigWritten, "proxyconf", "runtime config written", nil,
			"path", cfg.Proxy.ConfigPath,
		)
		steps.Done("Runtime config written to %s", cfg.Proxy.ConfigPath)
	}

	// 3. Launch. Errors are recorded by the supervisor and shown on /status.
	if !inhibited {
		if proc, err := sup.Launch(ctx, cfg.Proxy.BinaryPath, cfg.Proxy.ConfigPath); err != nil {
			steps.Warn("Proxy not started: %s", sup.Describe())
		} else {
			steps.Done("Proxy started (pid %d)", proc.PID)
		}
	}

	// 4. Background watchers.
	if cfg.Watch.Enabled && written != nil {
		w, err := watch.New(cfg.Proxy.ConfigPath, written, cfg.Watch.Debounce,
			watch.WithLogger(logger),
			watch.WithMetrics(tel.metrics),
			watch.WithJournal(tel.journal),
		)
		if err != nil {
			logger.Warn("config drift watcher unavailable", "error", err)
		} else {
			go func() {
				if err := w.Run(ctx); err != nil {
					logger.Warn("config drift watcher stopped", "error", err)
				}
			}()
			defer w.Stop()
		}
	}

	if cfg.Telemetry.Heartbeat.Enabled {
		hb := heartbeat.NewScheduler(cfg.Telemetry.Heartbeat.Schedule, sup, logger, tel.metrics)
		if err := hb.Start(ctx); err != nil {
			logger.Warn("failed to start keep-alive", "error", err)
		} else {
			defer hb.Stop()
			if next := hb.NextRun(); next != nil {
				logger.Debug("keep-alive scheduled", "next_run", next)
			}
		}
	}

	// 5. Facade.
	checker := health.New(0)
	checker.Add("proxy", health.ProcessCheck(sup))
	checker.Add("binary", health.ExecutableCheck(cfg.Proxy.BinaryPath))
	checker.Add("config", health.FileCheck(cfg.Proxy.ConfigPath))

	srv := server.NewServer(&cfg.Server, server.Deps{
		Identity:    params,
		DisplayName: cfg.Identity.DisplayName,
		Status:      sup,
		Journal:     tel.journal,
		Checker:     checker,
		Metrics:     tel.metrics,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Tracer:      tel.tracer,
		Logger:      logger,
		Tunnel:      tunnelConfig(cfg, params),
		Version:     Version,
		Commit:      GitCommit,
		BuildTime:   BuildDate,
	})

	addr, err := srv.Listen()
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	steps.Done("Server listening on %s", addr)
	if err := printBanner(out, logger, cfg, params); err != nil {
		logger.Error("failed to build client link", "error", err)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	serveErr := srv.Start(ctx)

	// 6. Shutdown: the proxy goes down with the facade.
	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Proxy.StopTimeout)
	defer cancel()
	if err := sup.Stop(stopCtx); err != nil {
		logger.Error("failed to stop proxy", "error", err)
	}
	tel.journal.Record(context.Background(), journal.KindServiceStopped, "keeper", "keeper stopped", serveErr)

	if serveErr != nil {
		return cli.NewCommandError("run", serveErr)
	}
	steps.Done("Server stopped")
	return nil
}

// ensureBinary runs the provisioner and returns the inhibit reason, or ""
// when the binary is usable.
func ensureBinary(ctx context.Context, cfg *config.Config, logger *logging.Logger, tel *telemetry) string {
	if runFlags.skipProvision {
		if _, err := os.Stat(cfg.Proxy.BinaryPath); err != nil {
			logger.Warn("provisioning skipped and binary missing", "path", cfg.Proxy.BinaryPath)
			return "binary unavailable (provisioning skipped)"
		}
		return ""
	}

	strategies, err := provision.StrategiesByName(cfg.Proxy.Strategies, provision.ExecRunner)
	if err != nil {
		logger.Error("invalid acquisition strategies", "error", err)
		return "binary unavailable"
	}

	p := provision.New(provision.ConfigFrom(&cfg.Proxy), strategies,
		provision.WithLogger(logger),
		provision.WithMetrics(tel.metrics),
		provision.WithJournal(tel.journal),
		provision.WithTracer(tel.tracer),
	)
	if err := p.Ensure(ctx, cfg.Proxy.BinaryPath); err != nil {
		return "binary unavailable"
	}
	return ""
}

// printBanner prints the client link, manual JSON and config page URL. The
// same values go to the log so they survive in platform log viewers.
func printBanner(out io.Writer, logger *logging.Logger, cfg *config.Config, params identity.Parameters) error {
	d, uri, err := clientLink(cfg, params)
	if err != nil {
		return err
	}
	manual, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	pageURL := "https://" + params.PublicDomain() + "/config"

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Client link:")
	fmt.Fprintln(out, uri)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Manual configuration:")
	fmt.Fprintln(out, string(manual))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Configuration page: %s\n", pageURL)

	logger.Info("client configuration ready", "link", uri, "config_page", pageURL, "path", params.Path())
	if cfg.Identity.DomainFallback {
		logger.Warn("public domain not detected, clients will see the placeholder host",
			"domain", identity.FallbackDomain,
			"fallback", true,
		)
	}
	return nil
}
