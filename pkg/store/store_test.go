package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"joinguard-hq/warden/pkg/channel"
	"joinguard-hq/warden/pkg/config"
)

func newPolicy(groupID int64, refs ...string) *GroupPolicy {
	p := &GroupPolicy{GroupID: groupID, ChannelIDs: map[string]int64{}}
	for _, r := range refs {
		ref := channel.MustParse(r)
		p.Channels = append(p.Channels, ref)
		if _, ok := ref.ID(); !ok {
			p.ChannelIDs[ref.Key()] = -1000 - groupID
		}
	}
	return p
}

// runBackendSuite exercises the Backend contract against any implementation.
func runBackendSuite(t *testing.T, open func(t *testing.T) Backend) {
	t.Run("GetMissing", func(t *testing.T) {
		b := open(t)
		_, err := b.GetPolicy(context.Background(), 404)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SetAndGet", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()

		p := newPolicy(100, "@news", "-1009")
		p.MuteDuration = 10 * time.Minute
		p.UpdatedBy = 7
		if err := b.SetPolicy(ctx, p); err != nil {
			t.Fatalf("SetPolicy failed: %v", err)
		}
		if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
			t.Error("SetPolicy should stamp timestamps")
		}

		got, err := b.GetPolicy(ctx, 100)
		if err != nil {
			t.Fatalf("GetPolicy failed: %v", err)
		}
		if len(got.Channels) != 2 {
			t.Fatalf("expected 2 channels, got %v", got.Channels)
		}
		if !got.Channels[0].Equal(channel.Handle("news")) || !got.Channels[1].Equal(channel.ID(-1009)) {
			t.Errorf("channel order not preserved: %v", channel.Strings(got.Channels))
		}
		if id, ok := got.ResolvedID(got.Channels[0]); !ok || id != -1100 {
			t.Errorf("ResolvedID(@news) = %d, %v", id, ok)
		}
		if got.MuteDuration != 10*time.Minute {
			t.Errorf("MuteDuration = %v", got.MuteDuration)
		}
		if got.UpdatedBy != 7 {
			t.Errorf("UpdatedBy = %d", got.UpdatedBy)
		}
	})

	t.Run("UpsertIsIdempotent", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()

		if err := b.SetPolicy(ctx, newPolicy(100, "@news")); err != nil {
			t.Fatalf("first SetPolicy failed: %v", err)
		}
		if err := b.SetPolicy(ctx, newPolicy(100, "@other_news")); err != nil {
			t.Fatalf("second SetPolicy failed: %v", err)
		}
		if err := b.SetPolicy(ctx, newPolicy(100, "@other_news")); err != nil {
			t.Fatalf("third SetPolicy failed: %v", err)
		}

		got, err := b.GetPolicy(ctx, 100)
		if err != nil {
			t.Fatalf("GetPolicy failed: %v", err)
		}
		if len(got.Channels) != 1 || got.Channels[0].String() != "@other_news" {
			t.Errorf("expected replaced channels, got %v", channel.Strings(got.Channels))
		}

		groups, err := b.ListGroups(ctx)
		if err != nil {
			t.Fatalf("ListGroups failed: %v", err)
		}
		if len(groups) != 1 {
			t.Errorf("expected one group after repeated upserts, got %v", groups)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()

		if err := b.SetPolicy(ctx, newPolicy(100, "@news")); err != nil {
			t.Fatalf("SetPolicy failed: %v", err)
		}

		existed, err := b.DeletePolicy(ctx, 100)
		if err != nil || !existed {
			t.Fatalf("DeletePolicy = %v, %v; want true, nil", existed, err)
		}
		existed, err = b.DeletePolicy(ctx, 100)
		if err != nil || existed {
			t.Fatalf("second DeletePolicy = %v, %v; want false, nil", existed, err)
		}
		if _, err := b.GetPolicy(ctx, 100); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("ListGroupsSorted", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()

		for _, id := range []int64{300, -100, 200} {
			if err := b.SetPolicy(ctx, newPolicy(id, "@news")); err != nil {
				t.Fatalf("SetPolicy(%d) failed: %v", id, err)
			}
		}
		groups, err := b.ListGroups(ctx)
		if err != nil {
			t.Fatalf("ListGroups failed: %v", err)
		}
		want := []int64{-100, 200, 300}
		if len(groups) != len(want) {
			t.Fatalf("ListGroups = %v, want %v", groups, want)
		}
		for i := range want {
			if groups[i] != want[i] {
				t.Errorf("ListGroups[%d] = %d, want %d", i, groups[i], want[i])
			}
		}
	})

	t.Run("Validation", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()

		tests := []struct {
			name   string
			policy *GroupPolicy
		}{
			{name: "nil", policy: nil},
			{name: "zero group", policy: &GroupPolicy{Channels: []channel.Ref{channel.Handle("news")}}},
			{name: "no channels", policy: &GroupPolicy{GroupID: 1}},
			{name: "invalid channel", policy: &GroupPolicy{GroupID: 1, Channels: []channel.Ref{{}}}},
			{name: "negative duration", policy: &GroupPolicy{GroupID: 1, Channels: []channel.Ref{channel.Handle("news")}, MuteDuration: -time.Second}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if err := b.SetPolicy(ctx, tt.policy); err == nil {
					t.Error("expected validation error")
				}
			})
		}
	})

	t.Run("Users", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()

		for _, id := range []int64{5, 3, 5} {
			if err := b.RegisterUser(ctx, id); err != nil {
				t.Fatalf("RegisterUser(%d) failed: %v", id, err)
			}
		}
		users, err := b.ListUsers(ctx)
		if err != nil {
			t.Fatalf("ListUsers failed: %v", err)
		}
		if len(users) != 2 || users[0] != 3 || users[1] != 5 {
			t.Errorf("ListUsers = %v, want [3 5]", users)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		b := open(t)
		if err := b.Ping(context.Background()); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestMemoryBackend(t *testing.T) {
	runBackendSuite(t, func(t *testing.T) Backend {
		b := NewMemoryBackend()
		t.Cleanup(func() { b.Close() })
		return b
	})
}

func TestSQLiteBackend(t *testing.T) {
	runBackendSuite(t, func(t *testing.T) Backend {
		b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "warden.db"))
		if err != nil {
			t.Fatalf("NewSQLiteBackend failed: %v", err)
		}
		t.Cleanup(func() { b.Close() })
		return b
	})
}

func TestCachedBackend(t *testing.T) {
	runBackendSuite(t, func(t *testing.T) Backend {
		return NewCachedBackend(NewMemoryBackend(), CacheConfig{TTL: time.Minute})
	})
}

func TestMongoBackend(t *testing.T) {
	uri := os.Getenv("WARDEN_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("WARDEN_TEST_MONGO_URI not set")
	}

	runBackendSuite(t, func(t *testing.T) Backend {
		db := fmt.Sprintf("warden_test_%d", time.Now().UnixNano())
		b, err := NewMongoBackend(context.Background(), MongoConfig{URI: uri, Database: db})
		if err != nil {
			t.Fatalf("NewMongoBackend failed: %v", err)
		}
		t.Cleanup(func() {
			_ = b.client.Database(db).Drop(context.Background())
			b.Close()
		})
		return b
	})
}

func TestSQLiteBackend_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.db")
	ctx := context.Background()

	b, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("NewSQLiteBackend failed: %v", err)
	}
	if err := b.SetPolicy(ctx, newPolicy(100, "@news")); err != nil {
		t.Fatalf("SetPolicy failed: %v", err)
	}
	first, _ := b.GetPolicy(ctx, 100)
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	b, err = NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer b.Close()

	got, err := b.GetPolicy(ctx, 100)
	if err != nil {
		t.Fatalf("GetPolicy after reopen failed: %v", err)
	}
	if got.Channels[0].String() != "@news" {
		t.Errorf("channels not persisted: %v", got.Channels)
	}

	// An update keeps the original creation time.
	if err := b.SetPolicy(ctx, newPolicy(100, "@news_two")); err != nil {
		t.Fatalf("SetPolicy failed: %v", err)
	}
	updated, _ := b.GetPolicy(ctx, 100)
	if !updated.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on update: %v -> %v", first.CreatedAt, updated.CreatedAt)
	}
}

// countingBackend counts GetPolicy calls that reach the inner backend.
type countingBackend struct {
	Backend
	mu   sync.Mutex
	gets int
}

func (c *countingBackend) GetPolicy(ctx context.Context, groupID int64) (*GroupPolicy, error) {
	c.mu.Lock()
	c.gets++
	c.mu.Unlock()
	return c.Backend.GetPolicy(ctx, groupID)
}

func TestCachedBackend_ServesFromCache(t *testing.T) {
	inner := &countingBackend{Backend: NewMemoryBackend()}
	cached := NewCachedBackend(inner, CacheConfig{TTL: time.Minute})
	ctx := context.Background()

	if err := cached.SetPolicy(ctx, newPolicy(100, "@news")); err != nil {
		t.Fatalf("SetPolicy failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := cached.GetPolicy(ctx, 100); err != nil {
			t.Fatalf("GetPolicy failed: %v", err)
		}
	}
	if inner.gets != 1 {
		t.Errorf("expected 1 backend read, got %d", inner.gets)
	}

	// Misses are cached as well.
	for i := 0; i < 3; i++ {
		if _, err := cached.GetPolicy(ctx, 200); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if inner.gets != 2 {
		t.Errorf("expected negative result to be cached, got %d reads", inner.gets)
	}

	// Writes invalidate.
	if _, err := cached.DeletePolicy(ctx, 100); err != nil {
		t.Fatalf("DeletePolicy failed: %v", err)
	}
	if _, err := cached.GetPolicy(ctx, 100); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCachedBackend_ReturnsCopies(t *testing.T) {
	cached := NewCachedBackend(NewMemoryBackend(), CacheConfig{TTL: time.Minute})
	ctx := context.Background()

	if err := cached.SetPolicy(ctx, newPolicy(100, "@news")); err != nil {
		t.Fatalf("SetPolicy failed: %v", err)
	}
	p, _ := cached.GetPolicy(ctx, 100)
	p.Channels[0] = channel.Handle("mutated")

	again, _ := cached.GetPolicy(ctx, 100)
	if again.Channels[0].String() != "@news" {
		t.Errorf("cached policy was mutated through a returned copy: %v", again.Channels)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	b, err := Open(ctx, Config{Driver: DriverMemory, Cache: CacheConfig{TTL: time.Second}})
	if err != nil {
		t.Fatalf("Open(memory) failed: %v", err)
	}
	if _, ok := b.(*CachedBackend); !ok {
		t.Errorf("expected cached backend, got %T", b)
	}

	path := filepath.Join(t.TempDir(), "nested", "warden.db")
	b, err = Open(ctx, Config{Driver: DriverSQLite, SQLite: SQLiteBackendConfig{DBPath: path}})
	if err != nil {
		t.Fatalf("Open(sqlite) failed: %v", err)
	}
	defer b.Close()
	if _, ok := b.(*SQLiteBackend); !ok {
		t.Errorf("expected sqlite backend, got %T", b)
	}

	if _, err := Open(ctx, Config{Driver: "cassandra"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := config.StorageConfig{
		Driver: DriverSQLite,
		SQLite: config.SQLiteConfig{Path: "data/x.db", BusyTimeout: 2 * time.Second},
		Cache:  config.CacheConfig{TTL: time.Minute, MaxSize: 10},
	}

	got := ConfigFrom(cfg)
	if got.SQLite.DBPath != "data/x.db" || got.SQLite.BusyTimeout != 2*time.Second {
		t.Errorf("sqlite config = %+v", got.SQLite)
	}
	if got.Cache.TTL != time.Minute || got.Cache.MaxSize != 10 {
		t.Errorf("cache config = %+v", got.Cache)
	}

	cfg.Cache.Disabled = true
	if got := ConfigFrom(cfg); got.Cache.TTL != 0 {
		t.Errorf("disabled cache kept TTL %v", got.Cache.TTL)
	}
}
