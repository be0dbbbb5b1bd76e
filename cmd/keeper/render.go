package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wayfarer-hq/keeper/pkg/cli"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the proxy runtime config",
	Long: `Print the runtime config JSON that run would write for the proxy,
without writing it.`,
	Args: cobra.NoArgs,
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, params, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := runtimeConfig(cfg, params).Marshal()
	if err != nil {
		return cli.NewCommandError("render", err)
	}
	out := cmd.OutOrStdout()
	out.Write(data)
	fmt.Fprintln(out)
	return nil
}
