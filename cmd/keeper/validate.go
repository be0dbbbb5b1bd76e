package main

import (
	"os"

	"github.com/spf13/cobra"

	"wayfarer-hq/keeper/pkg/cli"
)

var validateFlags struct {
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Load the configuration file and environment and report every problem.

The exit status is 2 when the configuration is unusable. A missing proxy
binary is reported but does not fail validation, since run downloads it.

Examples:
  keeper validate
  keeper validate --config keeper.yaml --format json`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

// validateReport is the JSON form of a successful validation.
type validateReport struct {
	Valid          bool     `json:"valid"`
	Port           int      `json:"port"`
	InboundPort    int      `json:"inbound_port"`
	Path           string   `json:"path"`
	Domain         string   `json:"domain"`
	DomainSource   string   `json:"domain_source,omitempty"`
	DomainFallback bool     `json:"domain_fallback"`
	BinaryPresent  bool     `json:"binary_present"`
	Strategies     []string `json:"strategies"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(validateFlags.format)
	if err != nil {
		return err
	}

	cfg, params, err := loadConfig()
	if err != nil {
		return err
	}

	_, statErr := os.Stat(cfg.Proxy.BinaryPath)
	report := validateReport{
		Valid:          true,
		Port:           params.Port(),
		InboundPort:    cfg.Proxy.InboundPort,
		Path:           params.Path(),
		Domain:         params.PublicDomain(),
		DomainSource:   cfg.Identity.DomainSource,
		DomainFallback: cfg.Identity.DomainFallback,
		BinaryPresent:  statErr == nil,
		Strategies:     cfg.Proxy.Strategies,
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(out, report)
	}

	steps := cli.NewSteps(out)
	steps.Done("Configuration valid")
	steps.Done("Listen port %d, inbound port %d, path %s", report.Port, report.InboundPort, report.Path)
	if report.DomainFallback {
		steps.Warn("Public domain not detected, using %s", report.Domain)
	} else {
		steps.Done("Public domain %s (from %s)", report.Domain, report.DomainSource)
	}
	if report.BinaryPresent {
		steps.Done("Proxy binary present at %s", cfg.Proxy.BinaryPath)
	} else {
		steps.Warn("Proxy binary missing at %s; run will fetch it", cfg.Proxy.BinaryPath)
	}
	return nil
}
