package enforcement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"joinguard-hq/warden/pkg/audit"
	"joinguard-hq/warden/pkg/channel"
	"joinguard-hq/warden/pkg/directory"
	"joinguard-hq/warden/pkg/membership"
	"joinguard-hq/warden/pkg/platform"
	"joinguard-hq/warden/pkg/ratelimit"
	"joinguard-hq/warden/pkg/store"
	"joinguard-hq/warden/pkg/telemetry/metrics"
	"joinguard-hq/warden/pkg/warnings"
)

// Deps are the collaborators an Engine drives.
type Deps struct {
	Client    platform.Client
	Policies  store.PolicyStore
	Directory *directory.Directory
	Prober    *membership.Prober
	Warnings  *warnings.Manager
	Cooldown  ratelimit.Cooldown

	// Metrics and Audit are optional.
	Metrics *metrics.Collector
	Audit   *audit.Recorder

	// Now overrides the clock. Default: time.Now
	Now func() time.Time
}

func (d Deps) validate() error {
	var missing []string
	if d.Client == nil {
		missing = append(missing, "client")
	}
	if d.Policies == nil {
		missing = append(missing, "policies")
	}
	if d.Directory == nil {
		missing = append(missing, "directory")
	}
	if d.Prober == nil {
		missing = append(missing, "prober")
	}
	if d.Warnings == nil {
		missing = append(missing, "warnings")
	}
	if d.Cooldown == nil {
		missing = append(missing, "cooldown")
	}
	if len(missing) > 0 {
		return fmt.Errorf("enforcement: missing dependencies: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Engine enforces group join policies.
type Engine struct {
	client   platform.Client
	policies store.PolicyStore
	dir      *directory.Directory
	prober   *membership.Prober
	warnings *warnings.Manager
	cooldown ratelimit.Cooldown
	metrics  *metrics.Collector
	audit    *audit.Recorder
	now      func() time.Time
	logger   *slog.Logger

	cfgMu sync.RWMutex
	cfg   Config

	locks *keyedMutex

	timerMu sync.Mutex
	timers  map[warnings.Key]*time.Timer
	closed  bool
}

// New creates an Engine.
func New(cfg Config, deps Deps) (*Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	now := deps.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		client:   deps.Client,
		policies: deps.Policies,
		dir:      deps.Directory,
		prober:   deps.Prober,
		warnings: deps.Warnings,
		cooldown: deps.Cooldown,
		metrics:  deps.Metrics,
		audit:    deps.Audit,
		now:      now,
		logger:   slog.Default().With("component", "enforcement.engine"),
		cfg:      cfg,
		locks:    newKeyedMutex(),
		timers:   make(map[warnings.Key]*time.Timer),
	}
	e.cooldown.SetWindow(cfg.WarningCooldown)
	return e, nil
}

func (e *Engine) config() Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// UpdateTunables swaps the engine configuration. Mutes already applied keep
// their expiry.
func (e *Engine) UpdateTunables(cfg Config) {
	cfg.applyDefaults()

	e.cfgMu.Lock()
	old := e.cfg
	e.cfg = cfg
	e.cfgMu.Unlock()

	e.cooldown.SetWindow(cfg.WarningCooldown)
	e.logger.Info("enforcement tunables updated",
		"default_mute_duration", cfg.DefaultMuteDuration,
		"previous_mute_duration", old.DefaultMuteDuration,
		"warning_cooldown", cfg.WarningCooldown,
		"delete_offending_message", cfg.DeleteOffendingMessage,
	)
}

// HandleMessage applies the group's join policy to an inbound message.
func (e *Engine) HandleMessage(ctx context.Context, msg *platform.Message) (Decision, error) {
	if msg == nil || !msg.Chat.IsGroup() || !msg.PostedByUser() || msg.IsCommand() {
		return Decision{Action: ActionIgnored}, nil
	}
	groupID, userID := msg.Chat.ID, msg.From.ID

	policy, err := e.policies.GetPolicy(ctx, groupID)
	if errors.Is(err, store.ErrNotFound) {
		return Decision{Action: ActionNone, Reason: "no_policy"}, nil
	}
	if err != nil {
		return Decision{Action: ActionSkipped, Reason: "policy_unavailable"},
			fmt.Errorf("load policy for group %d: %w", groupID, err)
	}

	key := warnings.Key{GroupID: groupID, UserID: userID}
	unlock := e.locks.Lock(key)
	defer unlock()

	admin, err := e.prober.IsGroupAdmin(ctx, groupID, userID)
	if err != nil {
		e.logger.Warn("admin check failed, skipping message",
			"group_id", groupID,
			"user_id", userID,
			"error", err,
		)
		return Decision{Action: ActionSkipped, Reason: "admin_check_failed"}, nil
	}
	if admin {
		return Decision{Action: ActionExempt, Reason: "group_admin"}, nil
	}

	cfg := e.config()
	probeCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
	ev := e.prober.Evaluate(probeCtx, policy, userID, membership.FirstMissing)
	cancel()
	e.recordProbes(ev)

	if len(ev.Missing()) == 0 {
		if unknown := ev.Unknown(); len(unknown) > 0 {
			e.warnIndeterminate(ctx, groupID, unknown[0])
			return Decision{Action: ActionSkipped, Reason: string(unknown[0].Result.Reason)}, nil
		}
		return Decision{Action: ActionNone, Reason: "member"}, nil
	}

	return e.restrict(ctx, cfg, msg, policy, ev), nil
}

// restrict mutes the author and posts a fresh prompt. Channels not confirmed
// as joined are all listed on the prompt, including those the short-circuit
// never probed.
func (e *Engine) restrict(ctx context.Context, cfg Config, msg *platform.Message, policy *store.GroupPolicy, ev membership.Evaluation) Decision {
	groupID, userID := msg.Chat.ID, msg.From.ID
	key := warnings.Key{GroupID: groupID, UserID: userID}

	pending, ids := pendingChannels(policy, ev)

	if res, err := e.warnings.Purge(ctx, key); err != nil {
		e.logger.Warn("failed to clear previous prompts",
			"group_id", groupID,
			"user_id", userID,
			"error", err,
		)
	} else {
		e.metrics.RecordPromptDeletions(res.Deleted, res.Failed)
	}

	duration := cfg.MuteDuration(policy.MuteDuration)
	until := e.now().Add(duration)

	if err := e.client.Restrict(ctx, groupID, userID, platform.DenyAll(), until); err != nil {
		e.logger.Error("failed to restrict member",
			"group_id", groupID,
			"user_id", userID,
			"error", err,
		)
		e.metrics.RecordMute("failed")
		e.audit.Record(audit.Event{
			Type:    audit.TypeRestrictFailed,
			GroupID: groupID,
			UserID:  userID,
			Detail:  map[string]string{"error": err.Error()},
		})
		e.warnRestrictFailed(ctx, groupID)
		return Decision{Action: ActionRestrictFailed, Reason: err.Error(), Missing: pending}
	}
	e.metrics.RecordMute("applied")

	if err := e.warnings.Store().SetUntil(ctx, key, until); err != nil {
		e.logger.Error("failed to store mute state",
			"group_id", groupID,
			"user_id", userID,
			"error", err,
		)
	}
	e.schedule(key, until)

	if cfg.DeleteOffendingMessage {
		if err := e.client.DeleteMessage(ctx, groupID, msg.ID); err != nil && !errors.Is(err, platform.ErrMessageNotFound) {
			e.logger.Warn("failed to delete offending message",
				"group_id", groupID,
				"message_id", msg.ID,
				"error", err,
			)
		}
	}

	targets := e.joinTargets(ctx, pending, ids)
	promptID, err := e.client.SendMessage(ctx, platform.OutgoingMessage{
		ChatID:   groupID,
		Text:     promptText(msg.From, targets, duration),
		HTML:     true,
		ReplyTo:  replyTarget(cfg, msg),
		Keyboard: promptKeyboard(userID, targets),
	})
	if err != nil {
		e.logger.Warn("failed to post prompt",
			"group_id", groupID,
			"user_id", userID,
			"error", err,
		)
		promptID = 0
	} else if err := e.warnings.Record(ctx, key, promptID); err != nil {
		e.logger.Error("failed to record prompt",
			"group_id", groupID,
			"user_id", userID,
			"message_id", promptID,
			"error", err,
		)
	}

	e.logger.Info("member restricted",
		"group_id", groupID,
		"user_id", userID,
		"until", until,
		"missing", channel.Strings(pending),
	)
	e.audit.Record(audit.Event{
		Type:    audit.TypeRestricted,
		GroupID: groupID,
		UserID:  userID,
		Detail: map[string]string{
			"until":    until.UTC().Format(time.RFC3339),
			"duration": duration.String(),
			"channels": strings.Join(channel.Strings(pending), ","),
		},
	})
	e.refreshActiveMutes(ctx)

	return Decision{
		Action:   ActionRestricted,
		Reason:   "not_member",
		Until:    until,
		PromptID: promptID,
		Missing:  pending,
	}
}

// replyTarget threads the prompt under the offending message unless that
// message is about to be deleted.
func replyTarget(cfg Config, msg *platform.Message) int {
	if cfg.DeleteOffendingMessage {
		return 0
	}
	return msg.ID
}

// pendingChannels returns the policy's channels not confirmed as joined, in
// policy order, with the best known platform id of each.
func pendingChannels(policy *store.GroupPolicy, ev membership.Evaluation) ([]channel.Ref, map[string]int64) {
	member := make(map[string]bool, len(ev.Checks))
	ids := make(map[string]int64, len(policy.Channels))
	for _, ref := range policy.Channels {
		if id, ok := policy.ResolvedID(ref); ok {
			ids[ref.Key()] = id
		}
	}
	for _, c := range ev.Checks {
		if c.ChatID != 0 {
			ids[c.Ref.Key()] = c.ChatID
		}
		if c.Result.Outcome == membership.Member {
			member[c.Ref.Key()] = true
		}
	}

	var pending []channel.Ref
	for _, ref := range policy.Channels {
		if !member[ref.Key()] {
			pending = append(pending, ref)
		}
	}
	return pending, ids
}

func (e *Engine) recordProbes(ev membership.Evaluation) {
	for _, c := range ev.Checks {
		e.metrics.RecordProbe(c.Result.Outcome.String(), string(c.Result.Reason))
	}
}

func (e *Engine) refreshActiveMutes(ctx context.Context) {
	if e.metrics == nil {
		return
	}
	n, err := e.warnings.Store().Count(ctx)
	if err != nil {
		return
	}
	e.metrics.SetActiveMutes(n)
}

// Stats returns a snapshot of the engine state.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	n, err := e.warnings.Store().Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count active mutes: %w", err)
	}

	e.timerMu.Lock()
	timers := len(e.timers)
	e.timerMu.Unlock()

	var dropped int64
	if e.audit != nil {
		dropped = e.audit.Dropped()
	}

	return Stats{
		ActiveMutes:     n,
		PendingTimers:   timers,
		DroppedAudits:   dropped,
		WarningCooldown: e.config().WarningCooldown,
	}, nil
}

// Close stops all pending expiry timers. Mute state is left in the store so
// the Sweeper of the next process can finish it.
func (e *Engine) Close() error {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()

	e.closed = true
	for key, t := range e.timers {
		t.Stop()
		delete(e.timers, key)
	}
	return nil
}
