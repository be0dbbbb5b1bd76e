package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wayfarer-hq/keeper/pkg/cli"
	"wayfarer-hq/keeper/pkg/proxyconf"
)

var linkFlags struct {
	json   bool
	decode string
}

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Print the client connection link",
	Long: `Print the vmess:// link clients import, built from the same identity
run would use.

Examples:
  # Print the link
  keeper link

  # Print descriptor and link as JSON
  keeper link --json

  # Show what an existing link contains
  keeper link --decode vmess://eyJ2Ijoi...`,
	Args: cobra.NoArgs,
	RunE: runLink,
}

func init() {
	rootCmd.AddCommand(linkCmd)

	linkCmd.Flags().BoolVar(&linkFlags.json, "json", false, "print descriptor and link as JSON")
	linkCmd.Flags().StringVar(&linkFlags.decode, "decode", "", "decode a vmess:// link instead of building one")
}

func runLink(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if linkFlags.decode != "" {
		d, err := proxyconf.DecodeURI(linkFlags.decode)
		if err != nil {
			return cli.NewCommandError("link", err)
		}
		return cli.NewFormatter(cli.FormatJSON).FormatTo(out, d)
	}

	cfg, params, err := loadConfig()
	if err != nil {
		return err
	}
	d, uri, err := clientLink(cfg, params)
	if err != nil {
		return cli.NewCommandError("link", err)
	}

	if linkFlags.json {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(out, map[string]any{
			"descriptor": d,
			"uri":        uri,
			"qr_code":    proxyconf.QRCodeURL(uri),
		})
	}

	fmt.Fprintln(out, uri)
	if cfg.Identity.DomainFallback {
		cmd.PrintErrln("warning: public domain not detected; set DOMAIN to the host clients should use")
	}
	return nil
}
