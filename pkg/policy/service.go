package policy

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"joinguard-hq/warden/pkg/audit"
	"joinguard-hq/warden/pkg/channel"
	"joinguard-hq/warden/pkg/directory"
	"joinguard-hq/warden/pkg/platform"
	"joinguard-hq/warden/pkg/store"
)

// Actor is whoever asks for a change.
type Actor struct {
	ID int64

	// Trusted skips the group admin check. Set for operators and the CLI.
	Trusted bool
}

// Request is a policy write.
type Request struct {
	GroupID  int64
	Actor    Actor
	Channels []string

	// MuteDuration overrides the default mute length. Zero keeps the default.
	MuteDuration time.Duration
}

// Service validates and stores group policies.
type Service struct {
	policies store.PolicyStore
	client   platform.Client
	dir      *directory.Directory
	audit    *audit.Recorder
	logger   *slog.Logger
}

// NewService creates a Service. recorder may be nil.
func NewService(policies store.PolicyStore, client platform.Client, dir *directory.Directory, recorder *audit.Recorder) *Service {
	return &Service{
		policies: policies,
		client:   client,
		dir:      dir,
		audit:    recorder,
		logger:   slog.Default().With("component", "policy.service"),
	}
}

// Configure validates req and replaces the group's policy.
func (s *Service) Configure(ctx context.Context, req Request) (*store.GroupPolicy, error) {
	if err := s.authorize(ctx, req.GroupID, req.Actor); err != nil {
		return nil, err
	}
	if len(req.Channels) == 0 {
		return nil, ErrNoChannels
	}
	if req.MuteDuration < 0 {
		return nil, &ValidationError{Channel: "duration", Message: "must not be negative"}
	}

	refs := make([]channel.Ref, 0, len(req.Channels))
	seen := make(map[string]bool, len(req.Channels))
	for _, raw := range req.Channels {
		ref, err := channel.Parse(raw)
		if err != nil {
			return nil, &ValidationError{Channel: raw, Message: "not a channel username, link or id", Cause: err}
		}
		if !seen[ref.Key()] {
			seen[ref.Key()] = true
			refs = append(refs, ref)
		}
	}

	self, err := s.client.Self(ctx)
	if err != nil {
		return nil, fmt.Errorf("get bot identity: %w", err)
	}

	ids := make(map[string]int64, len(refs))
	for _, ref := range refs {
		chatID, err := s.check(ctx, ref, self.ID)
		if err != nil {
			return nil, err
		}
		if _, isID := ref.ID(); !isID {
			ids[ref.Key()] = chatID
		}
	}

	p := &store.GroupPolicy{
		GroupID:      req.GroupID,
		Channels:     refs,
		ChannelIDs:   ids,
		MuteDuration: req.MuteDuration,
		UpdatedBy:    req.Actor.ID,
	}
	if err := s.policies.SetPolicy(ctx, p); err != nil {
		return nil, fmt.Errorf("store policy for group %d: %w", req.GroupID, err)
	}

	s.logger.Info("policy configured",
		"group_id", req.GroupID,
		"actor_id", req.Actor.ID,
		"channels", channel.Strings(refs),
		"mute_duration", req.MuteDuration,
	)
	s.audit.Record(audit.Event{
		Type:    audit.TypePolicySet,
		GroupID: req.GroupID,
		ActorID: req.Actor.ID,
		Detail: map[string]string{
			"channels":      strings.Join(channel.Strings(refs), ","),
			"mute_duration": req.MuteDuration.String(),
		},
	})
	return p, nil
}

// check looks ref up and confirms the bot administers it, returning its id.
func (s *Service) check(ctx context.Context, ref channel.Ref, botID int64) (int64, error) {
	s.dir.Forget(ref)
	chat, err := s.dir.Lookup(ctx, ref)
	if err != nil {
		msg := "channel not found, check the username or id"
		if !errors.Is(err, platform.ErrChatNotFound) {
			msg = "could not look the channel up: " + err.Error()
		}
		return 0, &ValidationError{Channel: ref.String(), Message: msg, Cause: err}
	}
	if chat.IsPrivate() {
		return 0, &ValidationError{Channel: ref.String(), Message: "is a user, not a channel"}
	}

	m, err := s.client.GetChatMember(ctx, chat.ID, botID)
	if err != nil || !m.IsAdmin() {
		return 0, &ValidationError{
			Channel: ref.String(),
			Message: "add me to the channel as an administrator first",
			Cause:   err,
		}
	}
	return chat.ID, nil
}

// Disable removes the group's policy and reports whether one existed.
func (s *Service) Disable(ctx context.Context, groupID int64, actor Actor) (bool, error) {
	if err := s.authorize(ctx, groupID, actor); err != nil {
		return false, err
	}
	existed, err := s.policies.DeletePolicy(ctx, groupID)
	if err != nil {
		return false, fmt.Errorf("delete policy for group %d: %w", groupID, err)
	}
	if existed {
		s.logger.Info("policy disabled",
			"group_id", groupID,
			"actor_id", actor.ID,
		)
		s.audit.Record(audit.Event{
			Type:    audit.TypePolicyDeleted,
			GroupID: groupID,
			ActorID: actor.ID,
		})
	}
	return existed, nil
}

// Get returns the group's policy or store.ErrNotFound.
func (s *Service) Get(ctx context.Context, groupID int64) (*store.GroupPolicy, error) {
	return s.policies.GetPolicy(ctx, groupID)
}

// Describe renders an HTML summary of p for chat display.
func (s *Service) Describe(ctx context.Context, p *store.GroupPolicy) string {
	var b strings.Builder
	b.WriteString("<b>Join requirement is on.</b>\nMembers must join:")
	for _, ref := range p.Channels {
		chatID, _ := p.ResolvedID(ref)
		title := s.dir.Title(ctx, ref, chatID)
		if link := ref.Link(); link != "" {
			fmt.Fprintf(&b, "\n• <a href=\"%s\">%s</a>", html.EscapeString(link), html.EscapeString(title))
		} else {
			fmt.Fprintf(&b, "\n• %s", html.EscapeString(title))
		}
	}
	if p.MuteDuration > 0 {
		fmt.Fprintf(&b, "\nMute duration: %s", p.MuteDuration)
	}
	return b.String()
}

func (s *Service) authorize(ctx context.Context, groupID int64, actor Actor) error {
	if actor.Trusted {
		return nil
	}
	m, err := s.client.GetChatMember(ctx, groupID, actor.ID)
	if err != nil {
		return fmt.Errorf("check admin status of %d in %d: %w", actor.ID, groupID, err)
	}
	if !m.IsAdmin() {
		return ErrNotAdmin
	}
	return nil
}

// ParseArgs splits command arguments into channel references and an
// optional trailing mute duration, e.g. "@news @blog 10m".
func ParseArgs(args string) ([]string, time.Duration, error) {
	fields := strings.Fields(strings.ReplaceAll(args, ",", " "))
	if len(fields) == 0 {
		return nil, 0, ErrNoChannels
	}

	var d time.Duration
	last := fields[len(fields)-1]
	if _, err := strconv.ParseInt(last, 10, 64); err != nil {
		if parsed, err := time.ParseDuration(last); err == nil {
			if parsed <= 0 {
				return nil, 0, &ValidationError{Channel: last, Message: "duration must be positive"}
			}
			d = parsed
			fields = fields[:len(fields)-1]
		}
	}
	if len(fields) == 0 {
		return nil, 0, ErrNoChannels
	}
	return fields, d, nil
}
