package store

import (
	"context"
	"errors"
	"time"

	"joinguard-hq/warden/pkg/cache"
)

// CacheConfig configures CachedBackend.
type CacheConfig struct {
	// TTL is how long a policy read is served from memory.
	// Default: 1 minute
	TTL time.Duration

	// NegativeTTL is how long "no policy" is remembered. Most groups a bot
	// sits in may have no policy, so misses are worth caching too.
	// Default: 30 seconds
	NegativeTTL time.Duration

	// MaxSize bounds the number of cached groups.
	// Default: 10,000
	MaxSize int

	// Observer receives hit and miss counts under the name "policy".
	Observer cache.Observer
}

type cachedPolicy struct {
	policy *GroupPolicy // nil records a miss
}

// CachedBackend serves GetPolicy from a TTL cache and invalidates on writes
// made through it. Writes made by another process become visible once the
// entry expires.
type CachedBackend struct {
	Backend
	cache       *cache.Cache[int64, cachedPolicy]
	negativeTTL time.Duration
}

// NewCachedBackend wraps backend with a read-through policy cache.
func NewCachedBackend(backend Backend, cfg CacheConfig) *CachedBackend {
	if cfg.TTL == 0 {
		cfg.TTL = time.Minute
	}
	if cfg.NegativeTTL == 0 {
		cfg.NegativeTTL = 30 * time.Second
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 10000
	}
	policies := cache.New[int64, cachedPolicy](cache.Config{
		TTL:      cfg.TTL,
		MaxSize:  cfg.MaxSize,
		Name:     "policy",
		Observer: cfg.Observer,
	})
	return &CachedBackend{
		Backend:     backend,
		cache:       policies,
		negativeTTL: cfg.NegativeTTL,
	}
}

// GetPolicy returns the cached policy, loading it on a miss.
func (c *CachedBackend) GetPolicy(ctx context.Context, groupID int64) (*GroupPolicy, error) {
	if hit, ok := c.cache.Get(groupID); ok {
		if hit.policy == nil {
			return nil, ErrNotFound
		}
		return hit.policy.Clone(), nil
	}

	p, err := c.Backend.GetPolicy(ctx, groupID)
	switch {
	case errors.Is(err, ErrNotFound):
		c.cache.SetWithTTL(groupID, cachedPolicy{}, c.negativeTTL)
		return nil, err
	case err != nil:
		return nil, err
	}

	c.cache.Set(groupID, cachedPolicy{policy: p.Clone()})
	return p, nil
}

// SetPolicy writes through and invalidates the group's entry.
func (c *CachedBackend) SetPolicy(ctx context.Context, policy *GroupPolicy) error {
	err := c.Backend.SetPolicy(ctx, policy)
	if policy != nil {
		c.cache.Delete(policy.GroupID)
	}
	return err
}

// DeletePolicy deletes through and invalidates the group's entry.
func (c *CachedBackend) DeletePolicy(ctx context.Context, groupID int64) (bool, error) {
	ok, err := c.Backend.DeletePolicy(ctx, groupID)
	c.cache.Delete(groupID)
	return ok, err
}

// Invalidate drops every cached policy.
func (c *CachedBackend) Invalidate() {
	c.cache.Clear()
}
