package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "storage.driver").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate checks the whole configuration and returns a ValidationError
// listing every problem, or nil.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateTelegram(&cfg.Telegram)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateState(&cfg.State)...)
	errs = append(errs, validateEnforcement(&cfg.Enforcement)...)
	errs = append(errs, validateBroadcast(&cfg.Broadcast)...)
	errs = append(errs, validateDispatch(&cfg.Dispatch)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// ValidateForOffline validates everything except the bot token, for commands
// that only touch the policy store.
func ValidateForOffline(cfg *Config) error {
	err := Validate(cfg)
	if err == nil {
		return nil
	}
	ve, ok := err.(ValidationError)
	if !ok {
		return err
	}
	var kept []FieldError
	for _, fe := range ve.Errors {
		if fe.Field != "telegram.token" {
			kept = append(kept, fe)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return ValidationError{Errors: kept}
}

func validateTelegram(tg *TelegramConfig) []FieldError {
	var errs []FieldError

	if strings.TrimSpace(tg.Token) == "" {
		errs = append(errs, FieldError{Field: "telegram.token", Message: "bot token is required"})
	} else if !strings.Contains(tg.Token, ":") {
		errs = append(errs, FieldError{Field: "telegram.token", Message: "bot token must have the form <id>:<secret>"})
	}
	if tg.APIEndpoint != "" && !strings.Contains(tg.APIEndpoint, "%s") {
		errs = append(errs, FieldError{Field: "telegram.api_endpoint", Message: "endpoint must contain two %s verbs for token and method"})
	}
	if tg.PollTimeout < 0 {
		errs = append(errs, FieldError{Field: "telegram.poll_timeout", Message: "must not be negative"})
	}
	if tg.MaxRetries < 0 {
		errs = append(errs, FieldError{Field: "telegram.max_retries", Message: "must not be negative"})
	}
	for i, id := range tg.OperatorIDs {
		if id <= 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telegram.operator_ids[%d]", i),
				Message: "operator ids must be positive user ids",
			})
		}
	}

	return errs
}

func validateStorage(s *StorageConfig) []FieldError {
	var errs []FieldError

	switch s.Driver {
	case "memory":
	case "sqlite":
		if s.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "storage.sqlite.path", Message: "path is required for the sqlite driver"})
		}
	case "mongo":
		if s.Mongo.URI == "" {
			errs = append(errs, FieldError{Field: "storage.mongo.uri", Message: "uri is required for the mongo driver"})
		} else if u, err := url.Parse(s.Mongo.URI); err != nil || (u.Scheme != "mongodb" && u.Scheme != "mongodb+srv") {
			errs = append(errs, FieldError{Field: "storage.mongo.uri", Message: "uri must use the mongodb:// or mongodb+srv:// scheme"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.driver",
			Message: fmt.Sprintf("unknown driver %q (want memory, sqlite or mongo)", s.Driver),
		})
	}

	if s.Cache.TTL < 0 || s.Cache.NegativeTTL < 0 {
		errs = append(errs, FieldError{Field: "storage.cache", Message: "ttl values must not be negative"})
	}
	if s.Cache.MaxSize < 0 {
		errs = append(errs, FieldError{Field: "storage.cache.max_size", Message: "must not be negative"})
	}

	return errs
}

func validateState(s *StateConfig) []FieldError {
	var errs []FieldError

	switch s.Backend {
	case "memory":
	case "redis":
		for i, addr := range s.Redis.Addrs {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("state.redis.addrs[%d]", i),
					Message: fmt.Sprintf("invalid address %q: %v", addr, err),
				})
			}
		}
		if s.Redis.DB < 0 {
			errs = append(errs, FieldError{Field: "state.redis.db", Message: "must not be negative"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "state.backend",
			Message: fmt.Sprintf("unknown backend %q (want memory or redis)", s.Backend),
		})
	}

	return errs
}

func validateEnforcement(e *EnforcementConfig) []FieldError {
	var errs []FieldError

	if e.MinMuteDuration < 30*time.Second {
		errs = append(errs, FieldError{
			Field:   "enforcement.min_mute_duration",
			Message: "must be at least 30s; shorter restrictions are treated as permanent by the platform",
		})
	}
	if e.DefaultMuteDuration < e.MinMuteDuration {
		errs = append(errs, FieldError{
			Field:   "enforcement.default_mute_duration",
			Message: fmt.Sprintf("must be at least min_mute_duration (%s)", e.MinMuteDuration),
		})
	}
	if e.DefaultMuteDuration > 366*24*time.Hour {
		errs = append(errs, FieldError{
			Field:   "enforcement.default_mute_duration",
			Message: "must not exceed 366 days; longer restrictions are treated as permanent by the platform",
		})
	}
	if e.WarningCooldown <= 0 {
		errs = append(errs, FieldError{Field: "enforcement.warning_cooldown", Message: "must be positive"})
	}
	if e.ProbeTimeout <= 0 {
		errs = append(errs, FieldError{Field: "enforcement.probe_timeout", Message: "must be positive"})
	}
	if _, err := cron.ParseStandard(e.SweepSchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "enforcement.sweep_schedule",
			Message: fmt.Sprintf("invalid cron schedule: %v", err),
		})
	}

	return errs
}

func validateBroadcast(b *BroadcastConfig) []FieldError {
	var errs []FieldError

	if b.SessionTimeout <= 0 {
		errs = append(errs, FieldError{Field: "broadcast.session_timeout", Message: "must be positive"})
	}
	if b.RatePerSecond <= 0 || b.RatePerSecond > 30 {
		errs = append(errs, FieldError{Field: "broadcast.rate_per_second", Message: "must be in (0, 30]"})
	}
	if b.ProgressEvery <= 0 {
		errs = append(errs, FieldError{Field: "broadcast.progress_every", Message: "must be positive"})
	}
	if b.FailedDisplayLimit <= 0 {
		errs = append(errs, FieldError{Field: "broadcast.failed_display_limit", Message: "must be positive"})
	}

	return errs
}

func validateDispatch(d *DispatchConfig) []FieldError {
	var errs []FieldError

	if d.Workers <= 0 {
		errs = append(errs, FieldError{Field: "dispatch.workers", Message: "must be positive"})
	}
	if d.QueueSize < 0 {
		errs = append(errs, FieldError{Field: "dispatch.queue_size", Message: "must not be negative"})
	}
	if d.UpdateTimeout <= 0 {
		errs = append(errs, FieldError{Field: "dispatch.update_timeout", Message: "must be positive"})
	}

	return errs
}

func validateAudit(a *AuditConfig) []FieldError {
	var errs []FieldError

	switch a.Sink {
	case "log", "none":
	case "sqlite":
		if a.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "audit.sqlite.path", Message: "path is required for the sqlite sink"})
		}
		if a.Retention < 0 {
			errs = append(errs, FieldError{Field: "audit.retention", Message: "must not be negative"})
		}
		if _, err := cron.ParseStandard(a.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "audit.prune_schedule",
				Message: fmt.Sprintf("invalid cron schedule: %v", err),
			})
		}
	case "nats":
		if u, err := url.Parse(a.NATS.URL); err != nil || u.Host == "" {
			errs = append(errs, FieldError{Field: "audit.nats.url", Message: fmt.Sprintf("invalid url %q", a.NATS.URL)})
		}
		if strings.ContainsAny(a.NATS.SubjectPrefix, " *>") {
			errs = append(errs, FieldError{Field: "audit.nats.subject_prefix", Message: "must not contain spaces or wildcards"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "audit.sink",
			Message: fmt.Sprintf("unknown sink %q (want log, none, sqlite or nats)", a.Sink),
		})
	}
	if a.BufferSize < 0 {
		errs = append(errs, FieldError{Field: "audit.buffer_size", Message: "must not be negative"})
	}

	return errs
}

func validateServer(s *ServerConfig) []FieldError {
	var errs []FieldError

	if s.Disabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(s.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid address %q: %v", s.ListenAddress, err),
		})
	}
	if s.ReadTimeout < 0 || s.WriteTimeout < 0 || s.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "server", Message: "timeouts must not be negative"})
	}

	return errs
}

func validateTelemetry(t *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(t.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("unknown level %q", t.Logging.Level),
		})
	}
	switch strings.ToLower(t.Logging.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("unknown format %q", t.Logging.Format),
		})
	}
	for i, p := range t.Logging.RedactPatterns {
		if p.Pattern == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d].pattern", i),
				Message: "pattern is required",
			})
		} else if _, err := regexp.Compile(p.Pattern); err != nil {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d].pattern", i),
				Message: fmt.Sprintf("invalid regular expression: %v", err),
			})
		}
	}
	if !strings.HasPrefix(t.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "must start with /"})
	}

	return errs
}
