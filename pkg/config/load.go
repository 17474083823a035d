package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WARDEN_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// An empty path starts from an empty document.
func LoadConfig(path string) (*Config, error) {
	cfg, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)

	if err := resolveSecrets(context.Background(), cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables always take precedence
// over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadUnvalidated(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadUnvalidated parses the file, applies defaults and environment overrides
// but leaves validation to the caller.
func LoadUnvalidated(path string) (*Config, error) {
	cfg, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	ApplyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := resolveSecrets(context.Background(), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment. Missing files are ignored; variables already set are kept.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load env file %q: %w", p, err)
		}
	}
	return nil
}

func parseFile(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Telegram overrides
	envString("TELEGRAM_TOKEN", &cfg.Telegram.Token)
	if cfg.Telegram.Token == "" {
		cfg.Telegram.Token = os.Getenv("BOT_TOKEN")
	}
	envString("TELEGRAM_API_ENDPOINT", &cfg.Telegram.APIEndpoint)
	envBool("TELEGRAM_DEBUG", &cfg.Telegram.Debug)
	envDuration("TELEGRAM_POLL_TIMEOUT", &cfg.Telegram.PollTimeout)
	envInt("TELEGRAM_MAX_RETRIES", &cfg.Telegram.MaxRetries)
	if val := os.Getenv(EnvPrefix + "TELEGRAM_OPERATOR_IDS"); val != "" {
		if ids, err := parseIDList(val); err == nil {
			cfg.Telegram.OperatorIDs = ids
		}
	}

	// Storage overrides
	envString("STORAGE_DRIVER", &cfg.Storage.Driver)
	envString("STORAGE_SQLITE_PATH", &cfg.Storage.SQLite.Path)
	envString("STORAGE_MONGO_URI", &cfg.Storage.Mongo.URI)
	if cfg.Storage.Mongo.URI == "" {
		cfg.Storage.Mongo.URI = os.Getenv("MONGO_URI")
	}
	envString("STORAGE_MONGO_DATABASE", &cfg.Storage.Mongo.Database)
	envBool("STORAGE_CACHE_DISABLED", &cfg.Storage.Cache.Disabled)
	envDuration("STORAGE_CACHE_TTL", &cfg.Storage.Cache.TTL)

	// State overrides
	envString("STATE_BACKEND", &cfg.State.Backend)
	if val := os.Getenv(EnvPrefix + "STATE_REDIS_ADDRS"); val != "" {
		cfg.State.Redis.Addrs = splitList(val)
	}
	envString("STATE_REDIS_USERNAME", &cfg.State.Redis.Username)
	envString("STATE_REDIS_PASSWORD", &cfg.State.Redis.Password)
	envInt("STATE_REDIS_DB", &cfg.State.Redis.DB)
	envString("STATE_REDIS_PREFIX", &cfg.State.Redis.Prefix)

	// Enforcement overrides
	envDuration("ENFORCEMENT_DEFAULT_MUTE_DURATION", &cfg.Enforcement.DefaultMuteDuration)
	envDuration("ENFORCEMENT_MIN_MUTE_DURATION", &cfg.Enforcement.MinMuteDuration)
	envDuration("ENFORCEMENT_WARNING_COOLDOWN", &cfg.Enforcement.WarningCooldown)
	envBool("ENFORCEMENT_DELETE_OFFENDING_MESSAGE", &cfg.Enforcement.DeleteOffendingMessage)
	envString("ENFORCEMENT_SWEEP_SCHEDULE", &cfg.Enforcement.SweepSchedule)

	// Broadcast overrides
	envDuration("BROADCAST_SESSION_TIMEOUT", &cfg.Broadcast.SessionTimeout)
	if val := os.Getenv(EnvPrefix + "BROADCAST_RATE_PER_SECOND"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Broadcast.RatePerSecond = f
		}
	}

	// Dispatch overrides
	envInt("DISPATCH_WORKERS", &cfg.Dispatch.Workers)
	envDuration("DISPATCH_UPDATE_TIMEOUT", &cfg.Dispatch.UpdateTimeout)

	// Audit overrides
	envString("AUDIT_SINK", &cfg.Audit.Sink)
	envString("AUDIT_SQLITE_PATH", &cfg.Audit.SQLite.Path)
	envString("AUDIT_NATS_URL", &cfg.Audit.NATS.URL)

	// Secrets overrides
	envString("SECRETS_DIR", &cfg.Secrets.Dir)

	// Server overrides
	envBool("SERVER_DISABLED", &cfg.Server.Disabled)
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_DISABLED", &cfg.Telemetry.Metrics.Disabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
}

func envString(key string, dst *string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		*dst = val
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIDList(val string) ([]int64, error) {
	var ids []int64
	for _, part := range splitList(val) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
