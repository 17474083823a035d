package config

import (
	"context"
	"fmt"

	"joinguard-hq/warden/pkg/secrets"
)

// resolveSecrets expands ${secret:name} references in credential fields.
func resolveSecrets(ctx context.Context, cfg *Config) error {
	fields := []*string{
		&cfg.Telegram.Token,
		&cfg.State.Redis.Password,
		&cfg.Storage.Mongo.URI,
		&cfg.Audit.NATS.URL,
	}

	var pending bool
	for _, f := range fields {
		if secrets.IsReference(*f) {
			pending = true
			break
		}
	}
	if !pending {
		return nil
	}

	var providers []secrets.Provider
	if cfg.Secrets.Dir != "" {
		fp, err := secrets.NewFileProvider(cfg.Secrets.Dir)
		if err != nil {
			return fmt.Errorf("secrets.dir: %w", err)
		}
		providers = append(providers, fp)
	}
	providers = append(providers, secrets.NewEnvProvider(cfg.Secrets.EnvPrefix))

	if err := secrets.NewResolver(providers...).ExpandAll(ctx, fields...); err != nil {
		return fmt.Errorf("failed to resolve secrets: %w", err)
	}
	return nil
}
