package enforcement

import (
	"context"
	"fmt"
	"time"

	"joinguard-hq/warden/pkg/audit"
	"joinguard-hq/warden/pkg/warnings"
)

const (
	// expirySlack lets the platform lift the restriction before the engine
	// corrects it.
	expirySlack = 2 * time.Second

	expireTimeout = 30 * time.Second
	sweepBatch    = 100
)

// schedule arms the in-process expiry timer for key, replacing any earlier one.
func (e *Engine) schedule(key warnings.Key, until time.Time) {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()

	if e.closed {
		return
	}
	if t, ok := e.timers[key]; ok {
		t.Stop()
	}

	delay := until.Sub(e.now()) + expirySlack
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		e.timerMu.Lock()
		if e.timers[key] == t {
			delete(e.timers, key)
		}
		e.timerMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), expireTimeout)
		defer cancel()
		if err := e.Expire(ctx, key); err != nil {
			e.logger.Error("mute expiry failed",
				"group_id", key.GroupID,
				"user_id", key.UserID,
				"error", err,
			)
		}
	})
	e.timers[key] = t
}

// cancelTimer disarms the expiry timer for key.
func (e *Engine) cancelTimer(key warnings.Key) {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()

	if t, ok := e.timers[key]; ok {
		t.Stop()
		delete(e.timers, key)
	}
}

// Expire finishes a lapsed mute: it restores permissions explicitly, deletes
// outstanding prompts and clears the mute state. A mute that was moved into
// the future is rescheduled instead; a mute that no longer exists is a no-op.
func (e *Engine) Expire(ctx context.Context, key warnings.Key) error {
	unlock := e.locks.Lock(key)
	defer unlock()

	st, ok, err := e.warnings.Store().Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load mute %s: %w", key, err)
	}
	if !ok {
		// The state aged out of the store; drop whatever still indexes it.
		if _, err := e.warnings.Store().Remove(ctx, key); err != nil {
			return fmt.Errorf("remove stale mute %s: %w", key, err)
		}
		e.cancelTimer(key)
		return nil
	}
	if !st.Until.IsZero() && st.Until.After(e.now()) {
		e.schedule(key, st.Until)
		return nil
	}

	outcome := "skipped"
	if !st.Until.IsZero() {
		res := e.restore(ctx, key.GroupID, key.UserID)
		outcome = res.Outcome.String()
		if res.Outcome == RestoreFailed {
			// The platform lifts the restriction on its own at Until.
			e.logger.Warn("correction restore failed after expiry",
				"group_id", key.GroupID,
				"user_id", key.UserID,
				"error", res.Err(),
			)
		}
	}
	e.metrics.RecordUnmute("expiry", outcome)

	e.cancelTimer(key)
	res, err := e.warnings.Release(ctx, key)
	if err != nil {
		return fmt.Errorf("release mute %s: %w", key, err)
	}
	e.metrics.RecordPromptDeletions(res.Deleted, res.Failed)

	e.logger.Info("mute expired",
		"group_id", key.GroupID,
		"user_id", key.UserID,
		"restore", outcome,
	)
	e.audit.Record(audit.Event{
		Type:    audit.TypeExpired,
		GroupID: key.GroupID,
		UserID:  key.UserID,
		Detail:  map[string]string{"restore": outcome},
	})
	e.refreshActiveMutes(ctx)
	return nil
}

// SweepExpired expires every mute whose time has passed and returns how many
// were processed. It picks up mutes whose timer was lost, for example across
// a restart with a shared store. A batch that only returns keys already
// handled in this sweep ends it.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	total := 0
	seen := make(map[warnings.Key]bool)
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		keys, err := e.warnings.Store().Due(ctx, e.now(), sweepBatch)
		if err != nil {
			return total, fmt.Errorf("list due mutes: %w", err)
		}

		progress := false
		for _, key := range keys {
			if seen[key] {
				continue
			}
			seen[key] = true
			progress = true
			if err := e.Expire(ctx, key); err != nil {
				return total, err
			}
			total++
		}
		if !progress || len(keys) < sweepBatch {
			if total > 0 {
				e.refreshActiveMutes(ctx)
			}
			return total, nil
		}
	}
}
