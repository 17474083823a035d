package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"joinguard-hq/warden/pkg/cli"
	"joinguard-hq/warden/pkg/config"
	"joinguard-hq/warden/pkg/telemetry/logging"
)

var runFlags struct {
	logLevel string
	dryRun   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot",
	Long: `Start the bot with the specified configuration.

The bot long-polls the Bot API, enforces every group's join requirement and
serves health and metrics on the configured HTTP address. Enforcement
tunables and the log level are reloaded when the config file changes.

Examples:
  # Start with default config
  warden run

  # Start with a custom config and debug logging
  warden run --config /etc/warden/config.yaml --log-level debug

  # Validate config without connecting to anything
  warden run --dry-run`,
	RunE: runBot,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the bot")
}

func runBot(cmd *cobra.Command, args []string) error {
	path := configPath()
	if err := config.Initialize(path); err != nil {
		return cli.NewConfigError("", err.Error())
	}
	cfg := config.GetConfig()

	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	logger.SetDefault()

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	slog.Info("starting warden",
		"version", Version,
		"config", path,
		"storage", cfg.Storage.Driver,
		"state", cfg.State.Backend,
		"audit_sink", cfg.Audit.Sink,
	)

	a, err := newApp(ctx, cfg, logger, path)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	slog.Info("warden stopped")
	return nil
}
