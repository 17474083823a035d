package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Cooldown gates repeats of the same warning per group.
type Cooldown interface {
	// ShouldEmit reports whether a warning of class may be emitted for
	// groupID, and if so records the emission.
	ShouldEmit(ctx context.Context, groupID int64, class string) (bool, error)

	// SetWindow changes the cooldown window for subsequent emissions.
	SetWindow(window time.Duration)

	// Close releases resources.
	Close() error
}

// Config configures a cooldown.
type Config struct {
	// Window is the minimum time between two emissions of the same class for
	// the same group.
	// Default: 1 hour
	Window time.Duration

	// CleanupInterval is how often MemoryCooldown drops stale entries.
	// Default: 10 minutes
	CleanupInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.Window <= 0 {
		c.Window = time.Hour
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 10 * time.Minute
	}
}

type entryKey struct {
	groupID int64
	class   string
}

// MemoryCooldown keeps last-emission times in memory.
type MemoryCooldown struct {
	window atomic.Int64 // nanoseconds
	mu     sync.Mutex
	last   map[entryKey]time.Time
	now    func() time.Time
	done   chan struct{}
	once   sync.Once
}

// NewMemoryCooldown creates a MemoryCooldown and starts its cleanup loop.
func NewMemoryCooldown(cfg Config) *MemoryCooldown {
	cfg.applyDefaults()

	c := &MemoryCooldown{
		last: make(map[entryKey]time.Time),
		now:  time.Now,
		done: make(chan struct{}),
	}
	c.window.Store(int64(cfg.Window))

	go c.cleanupLoop(cfg.CleanupInterval)
	return c
}

func (c *MemoryCooldown) ShouldEmit(ctx context.Context, groupID int64, class string) (bool, error) {
	window := time.Duration(c.window.Load())
	k := entryKey{groupID, class}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if last, ok := c.last[k]; ok && now.Sub(last) < window {
		return false, nil
	}
	c.last[k] = now
	return true, nil
}

func (c *MemoryCooldown) SetWindow(window time.Duration) {
	if window > 0 {
		c.window.Store(int64(window))
	}
}

// Len returns the number of tracked entries.
func (c *MemoryCooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}

// cleanupLoop drops entries older than the window.
func (c *MemoryCooldown) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.done:
			return
		}
	}
}

func (c *MemoryCooldown) cleanup() {
	window := time.Duration(c.window.Load())

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, last := range c.last {
		if now.Sub(last) >= window {
			delete(c.last, k)
		}
	}
}

// Close stops the cleanup loop.
func (c *MemoryCooldown) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}
