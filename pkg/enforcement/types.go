package enforcement

import (
	"time"

	"joinguard-hq/warden/pkg/channel"
	"joinguard-hq/warden/pkg/config"
)

// Action is what HandleMessage did with a message.
type Action string

const (
	// ActionIgnored means the message is not subject to enforcement: private
	// chats, bots, commands, service messages and posts sent on behalf of a
	// chat.
	ActionIgnored Action = "ignored"

	// ActionNone means the group has no policy or the author satisfies it.
	ActionNone Action = "none"

	// ActionExempt means the author administers the group.
	ActionExempt Action = "exempt"

	// ActionSkipped means membership could not be determined.
	ActionSkipped Action = "skipped"

	// ActionRestricted means the author was muted and prompted.
	ActionRestricted Action = "restricted"

	// ActionRestrictFailed means the author should have been muted but the
	// platform refused.
	ActionRestrictFailed Action = "restrict_failed"
)

// Decision describes the outcome of HandleMessage.
type Decision struct {
	Action Action

	// Reason is a short machine-readable explanation.
	Reason string

	// Until is when the mute lapses (ActionRestricted only).
	Until time.Time

	// PromptID is the posted prompt, or 0 if posting failed.
	PromptID int

	// Missing lists the channels the prompt asks the user to join.
	Missing []channel.Ref
}

// VerifyOutcome is the result of a verify button press.
type VerifyOutcome string

const (
	VerifyMalformed   VerifyOutcome = "malformed"
	VerifyWrongUser   VerifyOutcome = "wrong_user"
	VerifyNotMuted    VerifyOutcome = "not_muted"
	VerifyNotJoined   VerifyOutcome = "not_joined"
	VerifyNoPolicy    VerifyOutcome = "no_policy"
	VerifyRestored    VerifyOutcome = "restored"
	VerifyDegraded    VerifyOutcome = "degraded"
	VerifyFailed      VerifyOutcome = "failed"
	VerifyUnavailable VerifyOutcome = "unavailable"
)

// Config contains the engine tunables.
type Config struct {
	// DefaultMuteDuration applies when a policy has no duration of its own.
	// Default: 5 minutes
	DefaultMuteDuration time.Duration

	// MinMuteDuration is the lower clamp for any mute.
	// Default: 60 seconds
	MinMuteDuration time.Duration

	// WarningCooldown is handed to the cooldown on UpdateTunables.
	// Default: 1 hour
	WarningCooldown time.Duration

	// DeleteOffendingMessage removes the message that triggered a mute.
	DeleteOffendingMessage bool

	// ProbeTimeout bounds the membership probes for one message.
	// Default: 10 seconds
	ProbeTimeout time.Duration

	// RestoreGrace is the expiry used by the bounded restore strategy.
	// Default: 40 seconds
	RestoreGrace time.Duration
}

// ConfigFrom converts the enforcement section of the service config.
func ConfigFrom(cfg config.EnforcementConfig) Config {
	return Config{
		DefaultMuteDuration:    cfg.DefaultMuteDuration,
		MinMuteDuration:        cfg.MinMuteDuration,
		WarningCooldown:        cfg.WarningCooldown,
		DeleteOffendingMessage: cfg.DeleteOffendingMessage,
		ProbeTimeout:           cfg.ProbeTimeout,
	}
}

func (c *Config) applyDefaults() {
	if c.DefaultMuteDuration <= 0 {
		c.DefaultMuteDuration = 5 * time.Minute
	}
	if c.MinMuteDuration <= 0 {
		c.MinMuteDuration = time.Minute
	}
	if c.WarningCooldown <= 0 {
		c.WarningCooldown = time.Hour
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	if c.RestoreGrace <= 0 {
		c.RestoreGrace = 40 * time.Second
	}
}

// MuteDuration returns the effective mute length for a policy duration.
// Zero selects the default; anything shorter than the minimum is raised to it.
func (c Config) MuteDuration(policy time.Duration) time.Duration {
	d := policy
	if d <= 0 {
		d = c.DefaultMuteDuration
	}
	if d < c.MinMuteDuration {
		d = c.MinMuteDuration
	}
	return d
}

// Stats is a snapshot of engine state.
type Stats struct {
	ActiveMutes     int
	PendingTimers   int
	DroppedAudits   int64
	WarningCooldown time.Duration
}
