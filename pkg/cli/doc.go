/*
Package cli provides command-line helpers for the keeper command.

Output Formatting:

Commands that print structured results accept --format text|json:

	format, err := cli.ParseFormat(flagValue)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, result)

Startup Checklist:

	steps := cli.NewSteps(os.Stdout)
	steps.Done("Binary present at %s", path)
	steps.Warn("Proxy not started: %s", reason)

Errors:

Commands return ConfigError for unusable configuration and CommandError for
runtime failures; ExitCode maps them to the process exit status.

Signal Handling:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
*/
package cli
