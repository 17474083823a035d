package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider reads secrets from environment variables.
//
// A name is upper-cased, hyphens and dots become underscores and the prefix
// is prepended: "bot-token" with prefix "WARDEN_SECRET_" reads
// WARDEN_SECRET_BOT_TOKEN.
type EnvProvider struct {
	Prefix string
}

// NewEnvProvider creates an EnvProvider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix}
}

func (p *EnvProvider) GetSecret(ctx context.Context, name string) (string, error) {
	key := p.envVar(name)
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s not set", ErrNotFound, key)
	}
	return value, nil
}

func (p *EnvProvider) Provider() string { return "env" }

func (p *EnvProvider) envVar(name string) string {
	return p.Prefix + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}
