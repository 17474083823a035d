package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Telegram.Token = "123456:test-token"
	ApplyDefaults(cfg)
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"storage driver", cfg.Storage.Driver, DefaultStorageDriver},
		{"mongo collection", cfg.Storage.Mongo.PolicyCollection, "fsub_settings"},
		{"state backend", cfg.State.Backend, "memory"},
		{"mute duration", cfg.Enforcement.DefaultMuteDuration, 5 * time.Minute},
		{"min mute", cfg.Enforcement.MinMuteDuration, 60 * time.Second},
		{"cooldown", cfg.Enforcement.WarningCooldown, time.Hour},
		{"session timeout", cfg.Broadcast.SessionTimeout, 10 * time.Minute},
		{"progress every", cfg.Broadcast.ProgressEvery, 10},
		{"failed display", cfg.Broadcast.FailedDisplayLimit, 15},
		{"workers", cfg.Dispatch.Workers, DefaultDispatchWorkers},
		{"audit sink", cfg.Audit.Sink, "log"},
		{"listen", cfg.Server.ListenAddress, DefaultListenAddress},
		{"log level", cfg.Telemetry.Logging.Level, "info"},
		{"metrics path", cfg.Telemetry.Metrics.Path, "/metrics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Enforcement.DefaultMuteDuration = 10 * time.Minute
	cfg.Storage.Driver = "mongo"
	ApplyDefaults(cfg)

	if cfg.Enforcement.DefaultMuteDuration != 10*time.Minute {
		t.Errorf("mute duration overwritten: %v", cfg.Enforcement.DefaultMuteDuration)
	}
	if cfg.Storage.Driver != "mongo" {
		t.Errorf("driver overwritten: %q", cfg.Storage.Driver)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing token", func(c *Config) { c.Telegram.Token = "" }, "telegram.token"},
		{"malformed token", func(c *Config) { c.Telegram.Token = "abc" }, "telegram.token"},
		{"bad operator", func(c *Config) { c.Telegram.OperatorIDs = []int64{5, -1} }, "telegram.operator_ids[1]"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.driver"},
		{"mongo without uri", func(c *Config) { c.Storage.Driver = "mongo" }, "storage.mongo.uri"},
		{"mongo bad scheme", func(c *Config) {
			c.Storage.Driver = "mongo"
			c.Storage.Mongo.URI = "http://db"
		}, "storage.mongo.uri"},
		{"unknown state backend", func(c *Config) { c.State.Backend = "etcd" }, "state.backend"},
		{"bad redis addr", func(c *Config) {
			c.State.Backend = "redis"
			c.State.Redis.Addrs = []string{"nohost"}
		}, "state.redis.addrs[0]"},
		{"mute below min", func(c *Config) { c.Enforcement.DefaultMuteDuration = 10 * time.Second }, "enforcement.default_mute_duration"},
		{"min mute too short", func(c *Config) { c.Enforcement.MinMuteDuration = 5 * time.Second }, "enforcement.min_mute_duration"},
		{"bad sweep schedule", func(c *Config) { c.Enforcement.SweepSchedule = "every minute" }, "enforcement.sweep_schedule"},
		{"rate too high", func(c *Config) { c.Broadcast.RatePerSecond = 100 }, "broadcast.rate_per_second"},
		{"unknown sink", func(c *Config) { c.Audit.Sink = "kafka" }, "audit.sink"},
		{"nats wildcard", func(c *Config) {
			c.Audit.Sink = "nats"
			c.Audit.NATS.SubjectPrefix = "warden.>"
		}, "audit.nats.subject_prefix"},
		{"bad listen", func(c *Config) { c.Server.ListenAddress = "8081" }, "server.listen_address"},
		{"disabled server ignores listen", func(c *Config) {
			c.Server.Disabled = true
			c.Server.ListenAddress = "8081"
		}, ""},
		{"bad log level", func(c *Config) { c.Telemetry.Logging.Level = "trace" }, "telemetry.logging.level"},
		{"bad redact regex", func(c *Config) {
			c.Telemetry.Logging.RedactPatterns = []RedactPattern{{Name: "x", Pattern: "(["}}
		}, "telemetry.logging.redact_patterns[0].pattern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, fe := range ve.Errors {
				if fe.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.wantField, err)
			}
		})
	}
}

func TestValidateForOffline(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.Token = ""
	if err := ValidateForOffline(cfg); err != nil {
		t.Errorf("offline validation should ignore token: %v", err)
	}

	cfg.Storage.Driver = "nope"
	err := ValidateForOffline(cfg)
	if err == nil || !strings.Contains(err.Error(), "storage.driver") {
		t.Errorf("expected storage.driver error, got %v", err)
	}
}

func TestValidationError_Message(t *testing.T) {
	one := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if one.Error() != "configuration validation failed: a: bad" {
		t.Errorf("single error message = %q", one.Error())
	}

	two := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}, {Field: "b", Message: "worse"}}}
	if !strings.Contains(two.Error(), "2 errors") {
		t.Errorf("multi error message = %q", two.Error())
	}
}

func TestTelegramConfig_IsOperator(t *testing.T) {
	tg := TelegramConfig{OperatorIDs: []int64{10, 20}}
	if !tg.IsOperator(20) {
		t.Error("expected 20 to be an operator")
	}
	if tg.IsOperator(30) {
		t.Error("30 is not an operator")
	}
}
