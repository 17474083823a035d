package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryCooldown_Window(t *testing.T) {
	c := NewMemoryCooldown(Config{Window: time.Hour})
	defer c.Close()

	now := time.Unix(10000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	tests := []struct {
		name    string
		advance time.Duration
		group   int64
		class   string
		want    bool
	}{
		{name: "first emission", group: 1, class: "bot_not_admin", want: true},
		{name: "repeat suppressed", advance: time.Minute, group: 1, class: "bot_not_admin", want: false},
		{name: "other class allowed", group: 1, class: "restrict_failed", want: true},
		{name: "other group allowed", group: 2, class: "bot_not_admin", want: true},
		{name: "just inside window", advance: 58 * time.Minute, group: 1, class: "bot_not_admin", want: false},
		{name: "window elapsed", advance: time.Minute, group: 1, class: "bot_not_admin", want: true},
		{name: "restamped", advance: time.Second, group: 1, class: "bot_not_admin", want: false},
	}

	for _, tt := range tests {
		now = now.Add(tt.advance)
		got, err := c.ShouldEmit(ctx, tt.group, tt.class)
		if err != nil {
			t.Fatalf("%s: ShouldEmit failed: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: ShouldEmit() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMemoryCooldown_Concurrent(t *testing.T) {
	c := NewMemoryCooldown(Config{Window: time.Hour})
	defer c.Close()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		emitted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := c.ShouldEmit(context.Background(), 7, "restrict_failed")
			if ok {
				mu.Lock()
				emitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if emitted != 1 {
		t.Errorf("expected exactly one emission, got %d", emitted)
	}
}

func TestMemoryCooldown_Cleanup(t *testing.T) {
	c := NewMemoryCooldown(Config{Window: time.Minute})
	defer c.Close()

	now := time.Unix(10000, 0)
	c.now = func() time.Time { return now }

	c.ShouldEmit(context.Background(), 1, "a")
	c.ShouldEmit(context.Background(), 2, "a")
	now = now.Add(2 * time.Minute)
	c.ShouldEmit(context.Background(), 3, "a")

	c.cleanup()
	if c.Len() != 1 {
		t.Errorf("Len() after cleanup = %d, want 1", c.Len())
	}
}

func TestMemoryCooldown_SetWindow(t *testing.T) {
	c := NewMemoryCooldown(Config{Window: time.Hour})
	defer c.Close()

	now := time.Unix(10000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.ShouldEmit(ctx, 1, "a")
	c.SetWindow(time.Minute)
	now = now.Add(2 * time.Minute)

	if ok, _ := c.ShouldEmit(ctx, 1, "a"); !ok {
		t.Error("shortened window should allow emission")
	}

	c.SetWindow(0)
	now = now.Add(2 * time.Minute)
	if ok, _ := c.ShouldEmit(ctx, 1, "a"); !ok {
		t.Error("zero window should be ignored and keep the one-minute window")
	}
}

func TestRedisCooldown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewRedisCooldown(client, "warden_test:", Config{Window: 500 * time.Millisecond})
	ctx := context.Background()

	if ok, err := c.ShouldEmit(ctx, 1, "a"); err != nil || !ok {
		t.Fatalf("first ShouldEmit = %v, %v", ok, err)
	}
	if ok, _ := c.ShouldEmit(ctx, 1, "a"); ok {
		t.Error("repeat should be suppressed")
	}
	if ok, _ := c.ShouldEmit(ctx, 2, "a"); !ok {
		t.Error("another group should have its own window")
	}

	mr.FastForward(600 * time.Millisecond)
	if ok, _ := c.ShouldEmit(ctx, 1, "a"); !ok {
		t.Error("emission should be allowed after the window")
	}
}
