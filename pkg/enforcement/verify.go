package enforcement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"joinguard-hq/warden/pkg/audit"
	"joinguard-hq/warden/pkg/channel"
	"joinguard-hq/warden/pkg/membership"
	"joinguard-hq/warden/pkg/platform"
	"joinguard-hq/warden/pkg/store"
	"joinguard-hq/warden/pkg/warnings"
)

// Callback answers shown to the user who pressed the verify button.
const (
	answerWrongUser   = "This button isn't for you."
	answerNotMuted    = "You're not muted."
	answerNotJoined   = "You haven't joined all required channels yet. Join them and try again."
	answerFailed      = "Something went wrong. Please try again in a moment."
	answerUnavailable = "I couldn't check your membership right now. Please try again in a moment."
	answerRestored    = "You're unmuted. Welcome!"
	answerDegraded    = "You're unmuted. Some permissions may need an administrator."
)

// HandleVerify handles a press of the verify button. Presses by anyone other
// than the muted user are rejected without touching state or permissions.
// The callback is always answered.
func (e *Engine) HandleVerify(ctx context.Context, cb *platform.Callback) (VerifyOutcome, error) {
	target, ok := ParseVerifyData(cb.Data)
	if !ok {
		e.answer(ctx, cb, answerFailed, false)
		return VerifyMalformed, nil
	}
	groupID := cb.ChatID

	if cb.From.ID != target {
		e.answer(ctx, cb, answerWrongUser, true)
		e.rejectVerify(groupID, target, cb.From.ID, VerifyWrongUser)
		return VerifyWrongUser, nil
	}

	key := warnings.Key{GroupID: groupID, UserID: target}
	unlock := e.locks.Lock(key)
	defer unlock()

	st, muted, err := e.warnings.Store().Get(ctx, key)
	if err != nil {
		e.answer(ctx, cb, answerFailed, true)
		return VerifyFailed, fmt.Errorf("load mute %s: %w", key, err)
	}
	if !muted || st.Until.IsZero() {
		until, restricted := e.timedRestriction(ctx, groupID, target)
		if !restricted {
			e.answer(ctx, cb, answerNotMuted, false)
			e.dropStalePrompt(ctx, key, cb.MessageID)
			e.rejectVerify(groupID, target, target, VerifyNotMuted)
			return VerifyNotMuted, nil
		}
		// The state is gone but the restriction is not, as after a restart
		// on the memory store. Take the mute back so the checks below apply.
		if err := e.adoptMute(ctx, key, until, cb.MessageID); err != nil {
			e.answer(ctx, cb, answerFailed, true)
			return VerifyFailed, err
		}
	}

	policy, err := e.policies.GetPolicy(ctx, groupID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// The requirement was lifted while the user was muted.
		res := e.lift(ctx, cb, key)
		if res.Outcome == RestoreFailed {
			return VerifyFailed, nil
		}
		return VerifyNoPolicy, nil
	case err != nil:
		e.answer(ctx, cb, answerFailed, true)
		return VerifyFailed, fmt.Errorf("load policy for group %d: %w", groupID, err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, e.config().ProbeTimeout)
	ev := e.prober.Evaluate(probeCtx, policy, target, membership.AllChannels)
	cancel()
	e.recordProbes(ev)

	if missing := ev.Missing(); len(missing) > 0 {
		e.answer(ctx, cb, answerNotJoined, true)
		e.rejectVerify(groupID, target, target, VerifyNotJoined)
		return VerifyNotJoined, nil
	}
	if unknown := ev.Unknown(); len(unknown) > 0 {
		if len(unknown) == len(ev.Checks) {
			e.warnIndeterminate(ctx, groupID, unknown[0])
			e.answer(ctx, cb, answerUnavailable, true)
			e.rejectVerify(groupID, target, target, VerifyUnavailable)
			return VerifyUnavailable, nil
		}
		// Nothing is known to be missing; let the user go.
		refs := make([]channel.Ref, len(unknown))
		for i, c := range unknown {
			refs[i] = c.Ref
		}
		e.logger.Warn("unmuting with undetermined channels",
			"group_id", groupID,
			"user_id", target,
			"channels", channel.Strings(refs),
		)
		e.warnIndeterminate(ctx, groupID, unknown[0])
	}

	res := e.lift(ctx, cb, key)
	switch res.Outcome {
	case RestoreFull:
		return VerifyRestored, nil
	case RestoreDegraded:
		return VerifyDegraded, nil
	default:
		return VerifyFailed, nil
	}
}

// lift restores the user's permissions and, unless every strategy failed,
// clears the mute, deletes its prompts and posts a confirmation. On failure
// the mute is kept so the user can retry.
func (e *Engine) lift(ctx context.Context, cb *platform.Callback, key warnings.Key) RestoreResult {
	res := e.restore(ctx, key.GroupID, key.UserID)
	e.metrics.RecordUnmute("verify", res.Outcome.String())

	if res.Outcome == RestoreFailed {
		e.logger.Error("failed to lift restriction",
			"group_id", key.GroupID,
			"user_id", key.UserID,
			"error", res.Err(),
		)
		e.answer(ctx, cb, answerFailed, true)
		e.warnUnmuteFailed(ctx, key.GroupID, cb.From)
		e.audit.Record(audit.Event{
			Type:    audit.TypeUnmuteFailed,
			GroupID: key.GroupID,
			UserID:  key.UserID,
			ActorID: cb.From.ID,
			Detail:  map[string]string{"error": fmt.Sprint(res.Err())},
		})
		return res
	}

	e.cancelTimer(key)
	purge, err := e.warnings.Release(ctx, key)
	if err != nil {
		e.logger.Error("failed to clear mute state",
			"group_id", key.GroupID,
			"user_id", key.UserID,
			"error", err,
		)
	}
	e.metrics.RecordPromptDeletions(purge.Deleted, purge.Failed)

	degraded := res.Outcome == RestoreDegraded
	if degraded {
		e.answer(ctx, cb, answerDegraded, false)
	} else {
		e.answer(ctx, cb, answerRestored, false)
	}

	if _, err := e.client.SendMessage(ctx, platform.OutgoingMessage{
		ChatID: key.GroupID,
		Text:   confirmationText(cb.From, degraded),
		HTML:   true,
		Silent: true,
	}); err != nil {
		e.logger.Warn("failed to post unmute confirmation",
			"group_id", key.GroupID,
			"user_id", key.UserID,
			"error", err,
		)
	}

	e.logger.Info("member unmuted",
		"group_id", key.GroupID,
		"user_id", key.UserID,
		"strategy", res.Strategy,
		"outcome", res.Outcome.String(),
	)
	e.audit.Record(audit.Event{
		Type:    audit.TypeUnmuted,
		GroupID: key.GroupID,
		UserID:  key.UserID,
		ActorID: cb.From.ID,
		Detail: map[string]string{
			"strategy": res.Strategy,
			"outcome":  res.Outcome.String(),
		},
	})
	e.refreshActiveMutes(ctx)
	return res
}

// timedRestriction reports whether userID is restricted in the group until a
// time still ahead. Restrictions without an end are never the bot's and stay
// with the administrators who set them.
func (e *Engine) timedRestriction(ctx context.Context, groupID, userID int64) (time.Time, bool) {
	m, err := e.client.GetChatMember(ctx, groupID, userID)
	if err != nil {
		e.logger.Debug("failed to look up restriction",
			"group_id", groupID,
			"user_id", userID,
			"error", err,
		)
		return time.Time{}, false
	}
	if m.Status != platform.StatusRestricted || m.UntilDate.IsZero() || !m.UntilDate.After(e.now()) {
		return time.Time{}, false
	}
	return m.UntilDate, true
}

// adoptMute recreates lost mute state for a restriction still in force.
func (e *Engine) adoptMute(ctx context.Context, key warnings.Key, until time.Time, promptID int) error {
	mutes := e.warnings.Store()
	if err := mutes.SetUntil(ctx, key, until); err != nil {
		return fmt.Errorf("adopt mute %s: %w", key, err)
	}
	if promptID != 0 {
		if err := mutes.Record(ctx, key, promptID); err != nil {
			return fmt.Errorf("adopt mute %s: %w", key, err)
		}
	}
	e.schedule(key, until)

	e.logger.Info("adopted mute without state",
		"group_id", key.GroupID,
		"user_id", key.UserID,
		"until", until,
	)
	e.refreshActiveMutes(ctx)
	return nil
}

// dropStalePrompt deletes a prompt whose mute no longer exists.
func (e *Engine) dropStalePrompt(ctx context.Context, key warnings.Key, messageID int) {
	if messageID == 0 {
		return
	}
	err := e.client.DeleteMessage(ctx, key.GroupID, messageID)
	if err != nil && !errors.Is(err, platform.ErrMessageNotFound) {
		e.logger.Debug("failed to delete stale prompt",
			"group_id", key.GroupID,
			"message_id", messageID,
			"error", err,
		)
	}
}

func (e *Engine) rejectVerify(groupID, target, actor int64, outcome VerifyOutcome) {
	e.metrics.RecordVerifyRejected(string(outcome))
	e.audit.Record(audit.Event{
		Type:    audit.TypeVerifyRejected,
		GroupID: groupID,
		UserID:  target,
		ActorID: actor,
		Detail:  map[string]string{"reason": string(outcome)},
	})
}

func (e *Engine) answer(ctx context.Context, cb *platform.Callback, text string, alert bool) {
	if err := e.client.AnswerCallback(ctx, cb.ID, text, alert); err != nil {
		e.logger.Debug("failed to answer callback",
			"callback_id", cb.ID,
			"error", err,
		)
	}
}
