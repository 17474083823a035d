package warnings

import (
	"context"
	"errors"
	"log/slog"

	"joinguard-hq/warden/pkg/platform"
)

// Deleter deletes chat messages.
type Deleter interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// PurgeResult counts prompt deletions.
type PurgeResult struct {
	// Deleted includes prompts that were already gone.
	Deleted int
	Failed  int
}

// Manager ties prompt bookkeeping to message deletion.
type Manager struct {
	store   Store
	deleter Deleter
	logger  *slog.Logger
}

// NewManager creates a Manager.
func NewManager(store Store, deleter Deleter) *Manager {
	return &Manager{
		store:   store,
		deleter: deleter,
		logger:  slog.Default().With("component", "warnings.manager"),
	}
}

// Store returns the underlying store.
func (m *Manager) Store() Store {
	return m.store
}

// Record remembers a posted prompt.
func (m *Manager) Record(ctx context.Context, key Key, messageID int) error {
	return m.store.Record(ctx, key, messageID)
}

// Clear returns and forgets the recorded prompt ids without deleting them.
func (m *Manager) Clear(ctx context.Context, key Key) ([]int, error) {
	return m.store.Clear(ctx, key)
}

// Purge deletes every outstanding prompt for key and forgets them. The mute
// itself is kept.
func (m *Manager) Purge(ctx context.Context, key Key) (PurgeResult, error) {
	ids, err := m.store.Clear(ctx, key)
	if err != nil {
		return PurgeResult{}, err
	}
	return m.deleteAll(ctx, key, ids), nil
}

// Release removes the mute and deletes its outstanding prompts.
func (m *Manager) Release(ctx context.Context, key Key) (PurgeResult, error) {
	ids, err := m.store.Remove(ctx, key)
	if err != nil {
		return PurgeResult{}, err
	}
	return m.deleteAll(ctx, key, ids), nil
}

// deleteAll attempts each deletion independently.
func (m *Manager) deleteAll(ctx context.Context, key Key, ids []int) PurgeResult {
	var res PurgeResult
	for _, id := range ids {
		err := m.deleter.DeleteMessage(ctx, key.GroupID, id)
		switch {
		case err == nil, errors.Is(err, platform.ErrMessageNotFound):
			res.Deleted++
		default:
			res.Failed++
			m.logger.Warn("failed to delete prompt",
				"group_id", key.GroupID,
				"user_id", key.UserID,
				"message_id", id,
				"error", err,
			)
		}
	}
	return res
}
