package config

import "time"

// Default values for configuration fields.
const (
	// Telegram defaults
	DefaultPollTimeout = 30 * time.Second
	DefaultMaxRetries  = 2

	// Storage defaults
	DefaultStorageDriver         = "sqlite"
	DefaultSQLitePath            = "data/warden.db"
	DefaultSQLiteBusyTimeout     = 5 * time.Second
	DefaultSQLiteCheckpoint      = 5 * time.Minute
	DefaultMongoDatabase         = "warden"
	DefaultMongoPolicyCollection = "fsub_settings"
	DefaultMongoUserCollection   = "users"
	DefaultMongoConnectTimeout   = 10 * time.Second
	DefaultCacheTTL              = time.Minute
	DefaultCacheNegativeTTL      = 30 * time.Second
	DefaultCacheMaxSize          = 10000

	// State defaults
	DefaultStateBackend   = "memory"
	DefaultRedisAddr      = "127.0.0.1:6379"
	DefaultRedisPrefix    = "warden:"
	DefaultRedisRetention = 24 * time.Hour

	// Enforcement defaults
	DefaultMuteDuration    = 5 * time.Minute
	DefaultMinMuteDuration = 60 * time.Second
	DefaultWarningCooldown = time.Hour
	DefaultProbeTimeout    = 10 * time.Second
	DefaultSweepSchedule   = "@every 1m"

	// Broadcast defaults
	DefaultSessionTimeout     = 10 * time.Minute
	DefaultBroadcastRate      = 20.0
	DefaultProgressEvery      = 10
	DefaultFailedDisplayLimit = 15

	// Dispatch defaults
	DefaultDispatchWorkers   = 8
	DefaultDispatchQueueSize = 64
	DefaultUpdateTimeout     = 30 * time.Second

	// Audit defaults
	DefaultAuditSink          = "log"
	DefaultAuditBufferSize    = 256
	DefaultAuditSQLitePath    = "data/audit.db"
	DefaultNATSURL            = "nats://127.0.0.1:4222"
	DefaultNATSSubjectPrefix  = "warden.audit"
	DefaultNATSConnectionName = "warden"
	DefaultAuditRetention     = 90 * 24 * time.Hour
	DefaultAuditPruneSchedule = "0 3 * * *"

	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8081"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 15 * time.Second

	// Telemetry defaults
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "warden"
	DefaultHealthCheckTimeout = 5 * time.Second

	// Secrets defaults
	DefaultSecretEnvPrefix = "WARDEN_SECRET_"
)

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	applyTelegramDefaults(&cfg.Telegram)
	applyStorageDefaults(&cfg.Storage)
	applyStateDefaults(&cfg.State)
	applyEnforcementDefaults(&cfg.Enforcement)
	applyBroadcastDefaults(&cfg.Broadcast)
	applyDispatchDefaults(&cfg.Dispatch)
	applyAuditDefaults(&cfg.Audit)
	applyServerDefaults(&cfg.Server)
	applyTelemetryDefaults(&cfg.Telemetry)

	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretEnvPrefix
	}
}

func applyTelegramDefaults(tg *TelegramConfig) {
	if tg.PollTimeout == 0 {
		tg.PollTimeout = DefaultPollTimeout
	}
	if tg.MaxRetries == 0 {
		tg.MaxRetries = DefaultMaxRetries
	}
}

func applyStorageDefaults(s *StorageConfig) {
	if s.Driver == "" {
		s.Driver = DefaultStorageDriver
	}
	if s.SQLite.Path == "" {
		s.SQLite.Path = DefaultSQLitePath
	}
	if s.SQLite.BusyTimeout == 0 {
		s.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if s.SQLite.CheckpointInterval == 0 {
		s.SQLite.CheckpointInterval = DefaultSQLiteCheckpoint
	}
	if s.Mongo.Database == "" {
		s.Mongo.Database = DefaultMongoDatabase
	}
	if s.Mongo.PolicyCollection == "" {
		s.Mongo.PolicyCollection = DefaultMongoPolicyCollection
	}
	if s.Mongo.UserCollection == "" {
		s.Mongo.UserCollection = DefaultMongoUserCollection
	}
	if s.Mongo.ConnectTimeout == 0 {
		s.Mongo.ConnectTimeout = DefaultMongoConnectTimeout
	}
	if s.Cache.TTL == 0 {
		s.Cache.TTL = DefaultCacheTTL
	}
	if s.Cache.NegativeTTL == 0 {
		s.Cache.NegativeTTL = DefaultCacheNegativeTTL
	}
	if s.Cache.MaxSize == 0 {
		s.Cache.MaxSize = DefaultCacheMaxSize
	}
}

func applyStateDefaults(s *StateConfig) {
	if s.Backend == "" {
		s.Backend = DefaultStateBackend
	}
	if len(s.Redis.Addrs) == 0 {
		s.Redis.Addrs = []string{DefaultRedisAddr}
	}
	if s.Redis.Prefix == "" {
		s.Redis.Prefix = DefaultRedisPrefix
	}
	if s.Redis.Retention == 0 {
		s.Redis.Retention = DefaultRedisRetention
	}
}

func applyEnforcementDefaults(e *EnforcementConfig) {
	if e.DefaultMuteDuration == 0 {
		e.DefaultMuteDuration = DefaultMuteDuration
	}
	if e.MinMuteDuration == 0 {
		e.MinMuteDuration = DefaultMinMuteDuration
	}
	if e.WarningCooldown == 0 {
		e.WarningCooldown = DefaultWarningCooldown
	}
	if e.ProbeTimeout == 0 {
		e.ProbeTimeout = DefaultProbeTimeout
	}
	if e.SweepSchedule == "" {
		e.SweepSchedule = DefaultSweepSchedule
	}
}

func applyBroadcastDefaults(b *BroadcastConfig) {
	if b.SessionTimeout == 0 {
		b.SessionTimeout = DefaultSessionTimeout
	}
	if b.RatePerSecond == 0 {
		b.RatePerSecond = DefaultBroadcastRate
	}
	if b.ProgressEvery == 0 {
		b.ProgressEvery = DefaultProgressEvery
	}
	if b.FailedDisplayLimit == 0 {
		b.FailedDisplayLimit = DefaultFailedDisplayLimit
	}
}

func applyDispatchDefaults(d *DispatchConfig) {
	if d.Workers == 0 {
		d.Workers = DefaultDispatchWorkers
	}
	if d.QueueSize == 0 {
		d.QueueSize = DefaultDispatchQueueSize
	}
	if d.UpdateTimeout == 0 {
		d.UpdateTimeout = DefaultUpdateTimeout
	}
}

func applyAuditDefaults(a *AuditConfig) {
	if a.Sink == "" {
		a.Sink = DefaultAuditSink
	}
	if a.BufferSize == 0 {
		a.BufferSize = DefaultAuditBufferSize
	}
	if a.SQLite.Path == "" {
		a.SQLite.Path = DefaultAuditSQLitePath
	}
	if a.SQLite.BusyTimeout == 0 {
		a.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if a.NATS.URL == "" {
		a.NATS.URL = DefaultNATSURL
	}
	if a.NATS.SubjectPrefix == "" {
		a.NATS.SubjectPrefix = DefaultNATSSubjectPrefix
	}
	if a.NATS.Name == "" {
		a.NATS.Name = DefaultNATSConnectionName
	}
	if a.Retention == 0 {
		a.Retention = DefaultAuditRetention
	}
	if a.PruneSchedule == "" {
		a.PruneSchedule = DefaultAuditPruneSchedule
	}
}

func applyServerDefaults(s *ServerConfig) {
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLogLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLogFormat
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if t.Health.CheckTimeout == 0 {
		t.Health.CheckTimeout = DefaultHealthCheckTimeout
	}
}
