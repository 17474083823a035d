package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCooldown shares cooldown windows through Redis. Each emission is a
// key set with NX and a TTL equal to the window; the key's existence is the
// cooldown.
type RedisCooldown struct {
	client redis.UniversalClient
	prefix string
	window atomic.Int64
}

// NewRedisCooldown creates a RedisCooldown on an existing client. Close does
// not close the client.
func NewRedisCooldown(client redis.UniversalClient, prefix string, cfg Config) *RedisCooldown {
	cfg.applyDefaults()
	if prefix == "" {
		prefix = "warden:"
	}
	c := &RedisCooldown{client: client, prefix: prefix}
	c.window.Store(int64(cfg.Window))
	return c
}

func (c *RedisCooldown) key(groupID int64, class string) string {
	return c.prefix + "cooldown:" + strconv.FormatInt(groupID, 10) + ":" + class
}

func (c *RedisCooldown) ShouldEmit(ctx context.Context, groupID int64, class string) (bool, error) {
	window := time.Duration(c.window.Load())
	ok, err := c.client.SetNX(ctx, c.key(groupID, class), time.Now().UnixMilli(), window).Result()
	if err != nil {
		return false, fmt.Errorf("redis cooldown: %w", err)
	}
	return ok, nil
}

func (c *RedisCooldown) SetWindow(window time.Duration) {
	if window > 0 {
		c.window.Store(int64(window))
	}
}

// Close is a no-op; the client is owned by the caller.
func (c *RedisCooldown) Close() error {
	return nil
}
