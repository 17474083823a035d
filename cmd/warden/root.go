package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"joinguard-hq/warden/pkg/cli"
	"joinguard-hq/warden/pkg/config"
)

var (
	cfgFile string
	envFile string
	output  string
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Warden - join-to-participate enforcement for Telegram groups",
	Long: `Warden keeps Telegram groups for channel members only.

Group admins pick one or more channels with /fsub. Members who post without
having joined every channel are muted and shown join buttons; pressing
"I've joined" lifts the mute once membership is confirmed.

Configuration is read from a YAML file, with WARDEN_* environment variables
taking precedence. A .env file is loaded first when present.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return cli.NewConfigError("env-file", err.Error())
		}
		return nil
	},
}

// Execute runs the root command and exits with the mapped status code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format: table, json, yaml, csv")
}

// configPath returns the config file to read. A missing default file is
// allowed so the service can run on environment variables alone.
func configPath() string {
	if rootCmd.PersistentFlags().Changed("config") {
		return cfgFile
	}
	if _, err := os.Stat(cfgFile); errors.Is(err, fs.ErrNotExist) {
		return ""
	}
	return cfgFile
}

// loadOfflineConfig loads the configuration for commands that only touch
// local storage, so the bot token may be absent.
func loadOfflineConfig() (*config.Config, error) {
	cfg, err := config.LoadUnvalidated(configPath())
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	if err := config.ValidateForOffline(cfg); err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	return cfg, nil
}

func formatter() (cli.Formatter, error) {
	format, err := cli.ParseFormat(output)
	if err != nil {
		return nil, err
	}
	return cli.NewFormatter(format), nil
}
