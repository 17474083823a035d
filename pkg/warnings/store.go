package warnings

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

// Key identifies one user in one group.
type Key struct {
	GroupID int64
	UserID  int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.GroupID, k.UserID)
}

// State is a user's mute in a group.
type State struct {
	// Until is when the restriction lapses. Zero if only prompts are tracked.
	Until time.Time

	// MessageIDs are outstanding prompts, in the order they were posted.
	MessageIDs []int
}

// Store persists mute state.
type Store interface {
	// SetUntil creates the mute or moves its expiry.
	SetUntil(ctx context.Context, key Key, until time.Time) error

	// Record appends a prompt id.
	Record(ctx context.Context, key Key, messageID int) error

	// Clear returns the prompt ids in recording order and forgets them. The
	// mute itself stays.
	Clear(ctx context.Context, key Key) ([]int, error)

	// Get returns the mute, if any.
	Get(ctx context.Context, key Key) (State, bool, error)

	// Remove deletes the mute and returns its outstanding prompt ids.
	Remove(ctx context.Context, key Key) ([]int, error)

	// Due returns up to limit mutes whose expiry is at or before now,
	// earliest first.
	Due(ctx context.Context, now time.Time, limit int) ([]Key, error)

	// Count returns the number of active mutes.
	Count(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// MemoryStore keeps mute state in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	states map[Key]*State
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[Key]*State)}
}

func (s *MemoryStore) entry(key Key) *State {
	st, ok := s.states[key]
	if !ok {
		st = &State{}
		s.states[key] = st
	}
	return st
}

func (s *MemoryStore) SetUntil(ctx context.Context, key Key, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(key).Until = until
	return nil
}

func (s *MemoryStore) Record(ctx context.Context, key Key, messageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.entry(key)
	st.MessageIDs = append(st.MessageIDs, messageID)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, key Key) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[key]
	if !ok {
		return nil, nil
	}
	ids := st.MessageIDs
	st.MessageIDs = nil
	if st.Until.IsZero() {
		delete(s.states, key)
	}
	return ids, nil
}

func (s *MemoryStore) Get(ctx context.Context, key Key) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[key]
	if !ok {
		return State{}, false, nil
	}
	return State{Until: st.Until, MessageIDs: slices.Clone(st.MessageIDs)}, true, nil
}

func (s *MemoryStore) Remove(ctx context.Context, key Key) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[key]
	if !ok {
		return nil, nil
	}
	delete(s.states, key)
	return st.MessageIDs, nil
}

func (s *MemoryStore) Due(ctx context.Context, now time.Time, limit int) ([]Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type due struct {
		key   Key
		until time.Time
	}
	var found []due
	for k, st := range s.states {
		if !st.Until.IsZero() && !st.Until.After(now) {
			found = append(found, due{k, st.Until})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].until.Before(found[j].until) })

	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	keys := make([]Key, len(found))
	for i, d := range found {
		keys[i] = d.key
	}
	return keys, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, st := range s.states {
		if !st.Until.IsZero() {
			n++
		}
	}
	return n, nil
}

// Close drops all state.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[Key]*State)
	return nil
}
