package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
telegram:
  token: "111111:file-token"
  operator_ids: [42]
storage:
  driver: memory
enforcement:
  default_mute_duration: 10m
  delete_offending_message: true
broadcast:
  rate_per_second: 5
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "warden.yaml", sampleYAML)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Telegram.Token != "111111:file-token" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if !cfg.Telegram.IsOperator(42) {
		t.Error("operator ids not loaded")
	}
	if cfg.Enforcement.DefaultMuteDuration != 10*time.Minute {
		t.Errorf("mute duration = %v", cfg.Enforcement.DefaultMuteDuration)
	}
	if !cfg.Enforcement.DeleteOffendingMessage {
		t.Error("delete_offending_message not loaded")
	}
	if cfg.Enforcement.WarningCooldown != time.Hour {
		t.Errorf("default cooldown not applied: %v", cfg.Enforcement.WarningCooldown)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := writeFile(t, dir, "bad.yaml", "telegram: [unclosed")
	if _, err := LoadConfig(bad); err == nil {
		t.Error("expected parse error")
	}

	invalid := writeFile(t, dir, "invalid.yaml", "storage:\n  driver: memory\n")
	if _, err := LoadConfig(invalid); err == nil {
		t.Error("expected validation error for missing token")
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeFile(t, t.TempDir(), "warden.yaml", sampleYAML)

	t.Setenv("WARDEN_TELEGRAM_TOKEN", "222222:env-token")
	t.Setenv("WARDEN_TELEGRAM_OPERATOR_IDS", "7, 8")
	t.Setenv("WARDEN_ENFORCEMENT_WARNING_COOLDOWN", "30m")
	t.Setenv("WARDEN_STATE_BACKEND", "redis")
	t.Setenv("WARDEN_STATE_REDIS_ADDRS", "r1:6379,r2:6379")
	t.Setenv("WARDEN_DISPATCH_WORKERS", "not-a-number")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides failed: %v", err)
	}

	if cfg.Telegram.Token != "222222:env-token" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.OperatorIDs) != 2 || cfg.Telegram.OperatorIDs[1] != 8 {
		t.Errorf("operator ids = %v", cfg.Telegram.OperatorIDs)
	}
	if cfg.Enforcement.WarningCooldown != 30*time.Minute {
		t.Errorf("cooldown = %v", cfg.Enforcement.WarningCooldown)
	}
	if len(cfg.State.Redis.Addrs) != 2 {
		t.Errorf("redis addrs = %v", cfg.State.Redis.Addrs)
	}
	if cfg.Dispatch.Workers != DefaultDispatchWorkers {
		t.Errorf("unparsable override should be ignored, workers = %d", cfg.Dispatch.Workers)
	}
}

func TestLoadConfigWithEnvOverrides_NoFile(t *testing.T) {
	t.Setenv("WARDEN_TELEGRAM_TOKEN", "")
	t.Setenv("BOT_TOKEN", "333333:legacy")
	t.Setenv("WARDEN_STORAGE_DRIVER", "mongo")
	t.Setenv("WARDEN_STORAGE_MONGO_URI", "")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("load without file failed: %v", err)
	}
	if cfg.Telegram.Token != "333333:legacy" {
		t.Errorf("legacy BOT_TOKEN not honoured: %q", cfg.Telegram.Token)
	}
	if cfg.Storage.Mongo.URI != "mongodb://localhost:27017" {
		t.Errorf("legacy MONGO_URI not honoured: %q", cfg.Storage.Mongo.URI)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, ".env", "WARDEN_TEST_DOTENV_A=from-file\nWARDEN_TEST_DOTENV_B=from-file\n")

	t.Setenv("WARDEN_TEST_DOTENV_B", "preset")
	t.Cleanup(func() { os.Unsetenv("WARDEN_TEST_DOTENV_A") })

	if err := LoadDotEnv(envPath, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}

	if got := os.Getenv("WARDEN_TEST_DOTENV_A"); got != "from-file" {
		t.Errorf("A = %q", got)
	}
	if got := os.Getenv("WARDEN_TEST_DOTENV_B"); got != "preset" {
		t.Errorf("existing variable overwritten: %q", got)
	}
}

func TestSingleton(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	if GetConfig() != nil {
		t.Fatal("expected nil before Initialize")
	}

	path := writeFile(t, t.TempDir(), "warden.yaml", sampleYAML)
	if err := Initialize(path); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	first := MustGetConfig()

	if err := Initialize("/does/not/exist.yaml"); err != nil {
		t.Errorf("second Initialize should be a no-op, got %v", err)
	}
	if GetConfig() != first {
		t.Error("second Initialize replaced the config")
	}

	if _, err := ReloadConfig("/does/not/exist.yaml"); err == nil {
		t.Error("expected reload error")
	}
	if GetConfig() != first {
		t.Error("failed reload replaced the config")
	}
}

func TestMustGetConfig_Panics(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustGetConfig()
}

func TestLoadUnvalidated_SecretReferences(t *testing.T) {
	dir := t.TempDir()
	secretsDir := filepath.Join(dir, "secrets")
	if err := os.Mkdir(secretsDir, 0o700); err != nil {
		t.Fatal(err)
	}
	writeFile(t, secretsDir, "bot-token", "444444:from-file\n")
	t.Setenv("WARDEN_TELEGRAM_TOKEN", "")
	t.Setenv("WARDEN_SECRET_REDIS_PASSWORD", "from-env")

	path := writeFile(t, dir, "warden.yaml", `
telegram:
  token: ${secret:bot-token}
state:
  redis:
    password: ${secret:redis-password}
secrets:
  dir: `+secretsDir+`
`)

	cfg, err := LoadUnvalidated(path)
	if err != nil {
		t.Fatalf("LoadUnvalidated: %v", err)
	}
	if cfg.Telegram.Token != "444444:from-file" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if cfg.State.Redis.Password != "from-env" {
		t.Errorf("redis password = %q", cfg.State.Redis.Password)
	}
}

func TestLoadUnvalidated_MissingSecret(t *testing.T) {
	t.Setenv("WARDEN_TELEGRAM_TOKEN", "")
	path := writeFile(t, t.TempDir(), "warden.yaml", "telegram:\n  token: ${secret:absent-token}\n")

	if _, err := LoadUnvalidated(path); err == nil {
		t.Fatal("expected error for unresolvable secret")
	}
}
