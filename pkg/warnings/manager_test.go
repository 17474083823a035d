package warnings

import (
	"context"
	"testing"
	"time"

	"joinguard-hq/warden/pkg/platform/platformtest"
)

func TestManager_PurgeDeletesIndependently(t *testing.T) {
	fake := platformtest.New()
	m := NewManager(NewMemoryStore(), fake)
	ctx := context.Background()
	key := Key{GroupID: -100, UserID: 42}

	for _, id := range []int{1, 2, 3} {
		if err := m.Record(ctx, key, id); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	// Message 1 was already removed by someone else.
	fake.DeleteMessage(ctx, key.GroupID, 1)

	res, err := m.Purge(ctx, key)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if res.Deleted != 3 || res.Failed != 0 {
		t.Errorf("Purge() = %+v, want 3 deleted", res)
	}

	ids, _ := m.Clear(ctx, key)
	if len(ids) != 0 {
		t.Errorf("ids left after purge: %v", ids)
	}
}

func TestManager_PurgeFailureStillClears(t *testing.T) {
	fake := platformtest.New()
	fake.FailOn(platformtest.MethodDeleteMessage, -100, platformtest.NotEnoughRights(platformtest.MethodDeleteMessage))
	m := NewManager(NewMemoryStore(), fake)
	ctx := context.Background()
	key := Key{GroupID: -100, UserID: 42}

	m.Record(ctx, key, 1)
	m.Record(ctx, key, 2)

	res, err := m.Purge(ctx, key)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if res.Failed != 2 {
		t.Errorf("expected 2 failures, got %+v", res)
	}
	if n := fake.CallCount(platformtest.MethodDeleteMessage); n != 2 {
		t.Errorf("each id should be attempted, got %d calls", n)
	}

	ids, _ := m.Clear(ctx, key)
	if len(ids) != 0 {
		t.Errorf("failed deletions must not stay recorded: %v", ids)
	}
}

func TestManager_Release(t *testing.T) {
	fake := platformtest.New()
	s := NewMemoryStore()
	m := NewManager(s, fake)
	ctx := context.Background()
	key := Key{GroupID: -100, UserID: 42}

	s.SetUntil(ctx, key, time.Now().Add(time.Minute))
	m.Record(ctx, key, 9)

	res, err := m.Release(ctx, key)
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if res.Deleted != 1 {
		t.Errorf("Release() = %+v", res)
	}
	if _, ok, _ := s.Get(ctx, key); ok {
		t.Error("mute should be removed")
	}
	if len(fake.Deletions) != 1 || fake.Deletions[0] != (platformtest.Deletion{ChatID: -100, MessageID: 9}) {
		t.Errorf("Deletions = %+v", fake.Deletions)
	}
}
