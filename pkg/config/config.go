package config

import "time"

// Config is the root configuration structure for warden.
type Config struct {
	// Telegram contains bot credentials and polling settings.
	Telegram TelegramConfig `yaml:"telegram"`

	// Storage selects and configures the policy store.
	Storage StorageConfig `yaml:"storage"`

	// State configures where mute state and warning cool-downs live.
	State StateConfig `yaml:"state"`

	// Enforcement contains the restriction tunables.
	Enforcement EnforcementConfig `yaml:"enforcement"`

	// Broadcast contains operator broadcast settings.
	Broadcast BroadcastConfig `yaml:"broadcast"`

	// Dispatch configures the update worker pool.
	Dispatch DispatchConfig `yaml:"dispatch"`

	// Audit configures the enforcement audit trail.
	Audit AuditConfig `yaml:"audit"`

	// Server configures the HTTP endpoint for health and metrics.
	Server ServerConfig `yaml:"server"`

	// Telemetry contains logging, metrics and health settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Secrets configures resolution of ${secret:name} references.
	Secrets SecretsConfig `yaml:"secrets"`
}

// TelegramConfig contains Bot API settings.
type TelegramConfig struct {
	// Token is the bot token issued by BotFather. Required.
	Token string `yaml:"token"`

	// APIEndpoint overrides the Bot API endpoint format string, for use with
	// a local Bot API server. Empty means the public endpoint.
	APIEndpoint string `yaml:"api_endpoint"`

	// Debug enables request logging inside the Bot API client.
	// Default: false
	Debug bool `yaml:"debug"`

	// PollTimeout is the long-poll timeout for getUpdates.
	// Default: 30s
	PollTimeout time.Duration `yaml:"poll_timeout"`

	// MaxRetries is how many times a rate-limited call is retried.
	// Default: 2
	MaxRetries int `yaml:"max_retries"`

	// OperatorIDs are the user ids allowed to run /broadcast and /stats.
	OperatorIDs []int64 `yaml:"operator_ids"`
}

// StorageConfig selects the policy store backend.
type StorageConfig struct {
	// Driver is one of "memory", "sqlite", "mongo".
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// SQLite configures the sqlite driver.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Mongo configures the mongo driver.
	Mongo MongoConfig `yaml:"mongo"`

	// Cache configures the read-through policy cache.
	Cache CacheConfig `yaml:"cache"`
}

// SQLiteConfig configures a SQLite database file.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/warden.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long a writer waits for a lock.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// CheckpointInterval is how often the WAL is checkpointed.
	// Default: 5m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// MongoConfig configures the MongoDB policy store.
type MongoConfig struct {
	// URI is the connection string. Required for the mongo driver.
	URI string `yaml:"uri"`

	// Database is the database name.
	// Default: "warden"
	Database string `yaml:"database"`

	// PolicyCollection holds one document per group.
	// Default: "fsub_settings"
	PolicyCollection string `yaml:"policy_collection"`

	// UserCollection holds users who started the bot.
	// Default: "users"
	UserCollection string `yaml:"user_collection"`

	// ConnectTimeout bounds the initial connection and ping.
	// Default: 10s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// CacheConfig configures the policy read cache.
type CacheConfig struct {
	// Disabled turns the cache off.
	// Default: false
	Disabled bool `yaml:"disabled"`

	// TTL is how long a found policy is cached.
	// Default: 1m
	TTL time.Duration `yaml:"ttl"`

	// NegativeTTL is how long an absent policy is cached.
	// Default: 30s
	NegativeTTL time.Duration `yaml:"negative_ttl"`

	// MaxSize is the maximum number of cached groups.
	// Default: 10000
	MaxSize int `yaml:"max_size"`
}

// StateConfig selects the mute state and cool-down backend.
type StateConfig struct {
	// Backend is "memory" or "redis".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// Redis configures the redis backend.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures a Redis connection.
type RedisConfig struct {
	// Addrs lists host:port pairs. More than one address selects cluster mode.
	// Default: ["127.0.0.1:6379"]
	Addrs []string `yaml:"addrs"`

	// Username for ACL authentication.
	Username string `yaml:"username"`

	// Password for authentication.
	Password string `yaml:"password"`

	// DB is the logical database number.
	// Default: 0
	DB int `yaml:"db"`

	// Prefix is prepended to every key.
	// Default: "warden:"
	Prefix string `yaml:"prefix"`

	// Retention bounds how long mute state survives past its expiry.
	// Default: 24h
	Retention time.Duration `yaml:"retention"`
}

// EnforcementConfig contains the restriction tunables.
type EnforcementConfig struct {
	// DefaultMuteDuration applies when a policy has no duration of its own.
	// Default: 5m
	DefaultMuteDuration time.Duration `yaml:"default_mute_duration"`

	// MinMuteDuration is the lower clamp for any mute.
	// Default: 60s
	MinMuteDuration time.Duration `yaml:"min_mute_duration"`

	// WarningCooldown is the per-group cool-down for operational warnings.
	// Default: 1h
	WarningCooldown time.Duration `yaml:"warning_cooldown"`

	// DeleteOffendingMessage removes the message that triggered a mute.
	// Default: false
	DeleteOffendingMessage bool `yaml:"delete_offending_message"`

	// ProbeTimeout bounds the membership checks for one message.
	// Default: 10s
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// SweepSchedule is the cron schedule for releasing lapsed mutes.
	// Default: "@every 1m"
	SweepSchedule string `yaml:"sweep_schedule"`
}

// BroadcastConfig contains operator broadcast settings.
type BroadcastConfig struct {
	// SessionTimeout is how long an unconfirmed broadcast selection lives.
	// Default: 10m
	SessionTimeout time.Duration `yaml:"session_timeout"`

	// RatePerSecond is the send pace.
	// Default: 20
	RatePerSecond float64 `yaml:"rate_per_second"`

	// ProgressEvery is how many recipients pass between progress updates.
	// Default: 10
	ProgressEvery int `yaml:"progress_every"`

	// FailedDisplayLimit caps the failed ids shown in the report.
	// Default: 15
	FailedDisplayLimit int `yaml:"failed_display_limit"`
}

// DispatchConfig configures the update worker pool.
type DispatchConfig struct {
	// Workers is the number of ordered lanes.
	// Default: 8
	Workers int `yaml:"workers"`

	// QueueSize is the buffered depth of each lane.
	// Default: 64
	QueueSize int `yaml:"queue_size"`

	// UpdateTimeout bounds the handling of a single update.
	// Default: 30s
	UpdateTimeout time.Duration `yaml:"update_timeout"`
}

// AuditConfig configures the enforcement audit trail.
type AuditConfig struct {
	// Sink is "log", "sqlite" or "nats".
	// Default: "log"
	Sink string `yaml:"sink"`

	// BufferSize is the async recorder queue depth.
	// Default: 256
	BufferSize int `yaml:"buffer_size"`

	// SQLite configures the sqlite sink.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// NATS configures the nats sink.
	NATS NATSConfig `yaml:"nats"`

	// Retention is how long sqlite audit events are kept.
	// Default: 2160h (90 days)
	Retention time.Duration `yaml:"retention"`

	// PruneSchedule is the cron schedule for pruning old sqlite events.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// NATSConfig configures the NATS audit publisher.
type NATSConfig struct {
	// URL is the server URL.
	// Default: "nats://127.0.0.1:4222"
	URL string `yaml:"url"`

	// SubjectPrefix is prepended to the event type.
	// Default: "warden.audit"
	SubjectPrefix string `yaml:"subject_prefix"`

	// Name identifies this connection to the server.
	// Default: "warden"
	Name string `yaml:"name"`
}

// SecretsConfig configures where ${secret:name} references are looked up.
// The directory is consulted first, then the environment.
type SecretsConfig struct {
	// Dir holds one file per secret, e.g. "/run/secrets".
	// Default: "" (environment only)
	Dir string `yaml:"dir"`

	// EnvPrefix is prepended to the upper-cased secret name.
	// Default: "WARDEN_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`
}

// ServerConfig configures the HTTP endpoint.
type ServerConfig struct {
	// Disabled turns the HTTP endpoint off.
	// Default: false
	Disabled bool `yaml:"disabled"`

	// ListenAddress is host:port for the endpoint.
	// Default: "127.0.0.1:8081"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout bounds reading a request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing a response.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig contains observability settings.
type TelemetryConfig struct {
	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures Prometheus metrics.
	Metrics MetricsConfig `yaml:"metrics"`

	// Health configures readiness checks.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line in log records.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// DisableRedaction turns off secret masking.
	// Default: false
	DisableRedaction bool `yaml:"disable_redaction"`

	// RedactPatterns adds custom masking patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern is a custom log redaction rule.
type RedactPattern struct {
	// Name identifies the pattern.
	Name string `yaml:"name"`

	// Pattern is a regular expression.
	Pattern string `yaml:"pattern"`

	// Replacement is the regexp replacement template.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Disabled turns metrics collection off.
	// Default: false
	Disabled bool `yaml:"disabled"`

	// Path is the HTTP path for the exposition endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric name.
	// Default: "warden"
	Namespace string `yaml:"namespace"`
}

// HealthConfig configures readiness checks.
type HealthConfig struct {
	// CheckTimeout bounds each readiness check.
	// Default: 5s
	CheckTimeout time.Duration `yaml:"check_timeout"`
}

// IsOperator reports whether userID is a configured operator.
func (c TelegramConfig) IsOperator(userID int64) bool {
	for _, id := range c.OperatorIDs {
		if id == userID {
			return true
		}
	}
	return false
}
