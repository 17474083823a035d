package secrets

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNotFound is returned when no provider has the secret.
var ErrNotFound = errors.New("secret not found")

var refPattern = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Provider retrieves secrets from one backend.
type Provider interface {
	// GetSecret returns the value or an error wrapping ErrNotFound.
	GetSecret(ctx context.Context, name string) (string, error)

	// Provider names the backend for error messages.
	Provider() string
}

// Resolver tries providers in order.
type Resolver struct {
	providers []Provider
}

// NewResolver builds a Resolver. Nil providers are skipped.
func NewResolver(providers ...Provider) *Resolver {
	r := &Resolver{}
	for _, p := range providers {
		if p != nil {
			r.providers = append(r.providers, p)
		}
	}
	return r
}

// GetSecret returns the first value any provider has for name.
func (r *Resolver) GetSecret(ctx context.Context, name string) (string, error) {
	var errs []error
	for _, p := range r.providers {
		value, err := p.GetSecret(ctx, name)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", p.Provider(), err))
		}
	}
	if len(errs) > 0 {
		return "", fmt.Errorf("secret %q: %w", name, errors.Join(errs...))
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Expand replaces every ${secret:name} in s. It fails on the first
// reference that cannot be resolved.
func (r *Resolver) Expand(ctx context.Context, s string) (string, error) {
	if !strings.Contains(s, "${secret:") {
		return s, nil
	}

	var firstErr error
	out := refPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		name := strings.TrimSpace(refPattern.FindStringSubmatch(match)[1])
		value, err := r.GetSecret(ctx, name)
		if err != nil {
			firstErr = err
			return match
		}
		return value
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// ExpandAll expands each field in place.
func (r *Resolver) ExpandAll(ctx context.Context, fields ...*string) error {
	for _, f := range fields {
		v, err := r.Expand(ctx, *f)
		if err != nil {
			return err
		}
		*f = v
	}
	return nil
}

// IsReference reports whether s contains a secret reference.
func IsReference(s string) bool {
	return refPattern.MatchString(s)
}
