package main

import (
	"context"

	"github.com/spf13/cobra"

	"wayfarer-hq/keeper/pkg/cli"
	"wayfarer-hq/keeper/pkg/provision"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Download and unpack the proxy binary if it is missing",
	Long: `Run only the binary provisioner.

If the binary already exists nothing is fetched. Otherwise each configured
strategy (curl, wget, in-process http) is tried in order until one leaves an
executable binary in place.

Examples:
  # Provision with the default chain
  keeper provision

  # Only use the in-process downloader
  KEEPER_PROXY_STRATEGIES=http keeper provision`,
	RunE: runProvision,
}

func init() {
	rootCmd.AddCommand(provisionCmd)
}

func runProvision(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	tel, err := newTelemetry(cfg, logger)
	if err != nil {
		return err
	}
	defer tel.Close(context.Background())

	strategies, err := provision.StrategiesByName(cfg.Proxy.Strategies, provision.ExecRunner)
	if err != nil {
		return cli.NewConfigError("proxy.strategies", err.Error())
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	p := provision.New(provision.ConfigFrom(&cfg.Proxy), strategies,
		provision.WithLogger(logger),
		provision.WithJournal(tel.journal),
		provision.WithTracer(tel.tracer),
	)

	steps := cli.NewSteps(cmd.OutOrStdout())
	if err := p.Ensure(ctx, cfg.Proxy.BinaryPath); err != nil {
		steps.Fail("Proxy binary unavailable")
		return cli.NewCommandError("provision", err)
	}
	steps.Done("Proxy binary present at %s", cfg.Proxy.BinaryPath)
	return nil
}
