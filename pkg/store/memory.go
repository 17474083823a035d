package store

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryBackend implements Backend with in-process maps. All data is lost when
// the process exits.
type MemoryBackend struct {
	mu       sync.RWMutex
	policies map[int64]*GroupPolicy
	users    map[int64]time.Time
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		policies: make(map[int64]*GroupPolicy),
		users:    make(map[int64]time.Time),
	}
}

func (m *MemoryBackend) GetPolicy(ctx context.Context, groupID int64) (*GroupPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.policies[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryBackend) SetPolicy(ctx context.Context, policy *GroupPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := policy.Clone()
	if prev, ok := m.policies[policy.GroupID]; ok {
		stored.CreatedAt = prev.CreatedAt
	}
	touch(stored, time.Now())
	m.policies[policy.GroupID] = stored

	policy.CreatedAt = stored.CreatedAt
	policy.UpdatedAt = stored.UpdatedAt
	return nil
}

func (m *MemoryBackend) DeletePolicy(ctx context.Context, groupID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.policies[groupID]
	delete(m.policies, groupID)
	return ok, nil
}

func (m *MemoryBackend) ListGroups(ctx context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.policies))
	for id := range m.policies {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *MemoryBackend) RegisterUser(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		m.users[userID] = time.Now()
	}
	return nil
}

func (m *MemoryBackend) ListUsers(ctx context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *MemoryBackend) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryBackend) Close() error {
	return nil
}
