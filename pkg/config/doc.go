// Package config provides configuration management for warden.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides and optional .env files.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("warden.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("warden.yaml")
//
// An empty path skips the file and builds the configuration from defaults and
// the environment only, which suits container deployments.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention WARDEN_SECTION_FIELD.
// For example:
//
//   - WARDEN_TELEGRAM_TOKEN overrides telegram.token
//   - WARDEN_STORAGE_DRIVER overrides storage.driver
//   - WARDEN_ENFORCEMENT_DEFAULT_MUTE_DURATION overrides enforcement.default_mute_duration
//
// The legacy variable names BOT_TOKEN and MONGO_URI are honoured when the
// WARDEN_ equivalents are unset. LoadDotEnv reads a .env file into the
// process environment without overwriting variables that are already set.
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. ${secret:name} references in credential fields, from secrets.dir
//     then WARDEN_SECRET_* variables
//  5. Validation (fails fast if invalid)
//
// # Hot Reload
//
// Watcher observes the configuration file with fsnotify and invokes a callback
// with the re-validated configuration after a debounce interval. Only the
// enforcement tunables are applied to a running process.
//
// # Thread Safety
//
// The singleton accessors (Initialize, GetConfig, SetConfig, ReloadConfig) are
// safe for concurrent use. Config values themselves should be treated as
// read-only once published.
package config
