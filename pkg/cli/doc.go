/*
Package cli provides helpers shared by the warden subcommands.

Output Formatting:

Administrative commands print their results as aligned tables by default,
or as JSON, YAML or CSV when --output says so. Results that implement
Tabular render as rows in table and CSV form:

	formatter := cli.NewFormatter(cli.FormatYAML)
	if err := formatter.FormatTo(os.Stdout, policies); err != nil {
		return err
	}

Errors and Exit Codes:

ConfigError marks an unusable configuration and maps to exit code 2 through
ExitCode; every other error maps to 1.

Signal Handling:

SignalContext cancels on the first SIGINT or SIGTERM and exits on the second:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
*/
package cli
