package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"joinguard-hq/warden/pkg/cli"
	"joinguard-hq/warden/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Check and display configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration file, apply defaults and WARDEN_* overrides, and
report every problem found.

Examples:
  warden config validate --config /etc/warden/config.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		if _, err := config.LoadConfigWithEnvOverrides(path); err != nil {
			return cli.NewConfigError("", err.Error())
		}
		if path == "" {
			path = "environment"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration valid (%s)\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults and environment overrides.
Secrets are masked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadUnvalidated(configPath())
		if err != nil {
			return cli.NewConfigError("", err.Error())
		}
		format, err := cli.ParseFormat(output)
		if err != nil {
			return err
		}
		if format == cli.FormatTable || format == cli.FormatCSV {
			format = cli.FormatYAML
		}
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), masked(cfg))
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd, configShowCmd)
}

// masked returns a copy of cfg with credentials replaced.
func masked(cfg *config.Config) *config.Config {
	out := *cfg
	out.Telegram.Token = mask(out.Telegram.Token)
	out.State.Redis.Password = mask(out.State.Redis.Password)
	out.Storage.Mongo.URI = mask(out.Storage.Mongo.URI)
	return &out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
