package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wayfarer-hq/keeper/pkg/cli"
	"wayfarer-hq/keeper/pkg/config"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "keeper",
	Short: "keeper - supervise a v2ray proxy behind an HTTP facade",
	Long: `keeper runs a v2ray proxy on hosting platforms that expect a single web
process. It:
  - downloads and unpacks the proxy binary when it is missing
  - writes the proxy's runtime config from UUID, WSPATH and PORT
  - launches and watches the proxy process
  - serves status, health and client configuration pages over HTTP`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultConfigFile, "config file path (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
