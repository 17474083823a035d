package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"joinguard-hq/warden/pkg/channel"
	"joinguard-hq/warden/pkg/directory"
	"joinguard-hq/warden/pkg/platform"
	"joinguard-hq/warden/pkg/store"
)

// Outcome is the answer to a membership probe.
type Outcome int

const (
	Member Outcome = iota + 1
	NotMember
	Indeterminate
)

func (o Outcome) String() string {
	switch o {
	case Member:
		return "member"
	case NotMember:
		return "not_member"
	case Indeterminate:
		return "indeterminate"
	default:
		return "unknown"
	}
}

// Reason explains an Indeterminate outcome.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonBotNotAdmin  Reason = "bot_not_admin"
	ReasonLookupFailed Reason = "channel_lookup_failed"
	ReasonTransient    Reason = "transient"
)

// Result is the outcome of one probe.
type Result struct {
	Outcome Outcome
	Reason  Reason
	Err     error
}

func (r Result) String() string {
	if r.Outcome == Indeterminate {
		return fmt.Sprintf("%s(%s)", r.Outcome, r.Reason)
	}
	return r.Outcome.String()
}

func indeterminate(reason Reason, err error) Result {
	return Result{Outcome: Indeterminate, Reason: reason, Err: err}
}

// Classify maps a platform error to an Indeterminate reason.
func Classify(err error) Reason {
	switch {
	case errors.Is(err, platform.ErrNotEnoughRights), errors.Is(err, platform.ErrForbidden):
		return ReasonBotNotAdmin
	case errors.Is(err, platform.ErrChatNotFound):
		return ReasonLookupFailed
	default:
		return ReasonTransient
	}
}

// Prober queries channel membership through the platform.
type Prober struct {
	client platform.Client
	dir    *directory.Directory
	logger *slog.Logger
}

// NewProber creates a Prober.
func NewProber(client platform.Client, dir *directory.Directory) *Prober {
	return &Prober{
		client: client,
		dir:    dir,
		logger: slog.Default().With("component", "membership.prober"),
	}
}

// IsGroupAdmin reports whether userID owns or administers groupID.
func (p *Prober) IsGroupAdmin(ctx context.Context, groupID, userID int64) (bool, error) {
	m, err := p.client.GetChatMember(ctx, groupID, userID)
	if err != nil {
		return false, err
	}
	return m.IsAdmin(), nil
}

// Probe checks userID's membership in the channel. chatID is the resolved
// platform id when known, or 0 to resolve ref through the directory.
func (p *Prober) Probe(ctx context.Context, ref channel.Ref, chatID, userID int64) Result {
	res, _ := p.probe(ctx, ref, chatID, userID)
	return res
}

// probe is Probe that also returns the resolved chat id.
func (p *Prober) probe(ctx context.Context, ref channel.Ref, chatID, userID int64) (Result, int64) {
	if chatID == 0 {
		id, err := p.dir.Resolve(ctx, ref)
		if err != nil {
			return indeterminate(Classify(err), err), 0
		}
		chatID = id
	}
	return p.member(ctx, ref, chatID, userID), chatID
}

func (p *Prober) member(ctx context.Context, ref channel.Ref, chatID, userID int64) Result {
	m, err := p.client.GetChatMember(ctx, chatID, userID)
	switch {
	case err == nil:
	case errors.Is(err, platform.ErrUserNotFound):
		// The platform answers "user not found" for accounts that never joined.
		return Result{Outcome: NotMember}
	default:
		p.logger.Debug("membership probe failed",
			"channel", ref.String(),
			"chat_id", chatID,
			"user_id", userID,
			"error", err,
		)
		return indeterminate(Classify(err), err)
	}

	if m.InChat() {
		return Result{Outcome: Member}
	}
	return Result{Outcome: NotMember}
}

// Mode selects how many channels Evaluate probes.
type Mode int

const (
	// FirstMissing stops at the first NotMember.
	FirstMissing Mode = iota
	// AllChannels probes every channel.
	AllChannels
)

// Check is one probed channel.
type Check struct {
	Ref    channel.Ref
	ChatID int64
	Result Result
}

// Evaluation is the combined result of probing a policy's channels.
type Evaluation struct {
	Checks []Check
}

// Missing returns the channels the user definitely has not joined.
func (e Evaluation) Missing() []Check {
	return e.filter(NotMember)
}

// Unknown returns the channels whose membership could not be determined.
func (e Evaluation) Unknown() []Check {
	return e.filter(Indeterminate)
}

// Satisfied reports whether every probed channel answered Member.
func (e Evaluation) Satisfied() bool {
	for _, c := range e.Checks {
		if c.Result.Outcome != Member {
			return false
		}
	}
	return true
}

func (e Evaluation) filter(o Outcome) []Check {
	var out []Check
	for _, c := range e.Checks {
		if c.Result.Outcome == o {
			out = append(out, c)
		}
	}
	return out
}

// Evaluate probes the policy's channels for userID in order.
func (p *Prober) Evaluate(ctx context.Context, policy *store.GroupPolicy, userID int64, mode Mode) Evaluation {
	var ev Evaluation
	for _, ref := range policy.Channels {
		chatID, _ := policy.ResolvedID(ref)
		res, chatID := p.probe(ctx, ref, chatID, userID)
		ev.Checks = append(ev.Checks, Check{Ref: ref, ChatID: chatID, Result: res})

		if res.Outcome == NotMember && mode == FirstMissing {
			break
		}
	}
	return ev
}
