package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"joinguard-hq/warden/pkg/broadcast"
	"joinguard-hq/warden/pkg/platform"
	"joinguard-hq/warden/pkg/policy"
	"joinguard-hq/warden/pkg/store"
)

type commandFunc func(ctx context.Context, msg *platform.Message) error

const helpText = `<b>Join guard</b>
Members of a group must join the channels you choose before they can post. Anyone who hasn't is muted and shown where to join.

<b>Group admins</b>
/fsub @channel [@channel2 …] [duration] - require channels, optional mute length such as 10m
/fsub off - disable the requirement
/status - show the current requirement

Add me as an administrator to the group and to every required channel.`

func (b *Bot) commandTable() map[string]commandFunc {
	return map[string]commandFunc{
		"start":     b.cmdStart,
		"help":      b.cmdHelp,
		"fsub":      b.cmdFsub,
		"fsub_off":  b.cmdFsubOff,
		"status":    b.cmdStatus,
		"stats":     b.cmdStats,
		"broadcast": b.cmdBroadcast,
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *platform.Message) error {
	cmd, ok := b.commands[strings.ToLower(msg.Command)]
	if !ok {
		return nil
	}
	return cmd(ctx, msg)
}

func (b *Bot) cmdStart(ctx context.Context, msg *platform.Message) error {
	if !msg.Chat.IsPrivate() {
		return b.reply(ctx, msg, "I'm running. Use /help to see what I can do.")
	}
	if err := b.store.RegisterUser(ctx, msg.From.ID); err != nil {
		return fmt.Errorf("register user %d: %w", msg.From.ID, err)
	}
	return b.reply(ctx, msg, fmt.Sprintf(
		"Hi %s! I keep groups for channel members only.\n\nAdd me to your group as an administrator, then send /fsub @yourchannel there. See /help for details.",
		html.EscapeString(msg.From.DisplayName())))
}

func (b *Bot) cmdHelp(ctx context.Context, msg *platform.Message) error {
	return b.reply(ctx, msg, helpText)
}

func (b *Bot) cmdFsub(ctx context.Context, msg *platform.Message) error {
	if !msg.Chat.IsGroup() {
		return b.reply(ctx, msg, "Use /fsub inside the group you want to protect.")
	}

	args := strings.TrimSpace(msg.Args)
	switch strings.ToLower(args) {
	case "":
		return b.reply(ctx, msg, "Usage: /fsub @channel [@channel2 …] [duration]\nDisable with /fsub off")
	case "off", "disable":
		return b.disable(ctx, msg)
	}

	channels, duration, err := policy.ParseArgs(args)
	if err != nil {
		return b.replyError(ctx, msg, err)
	}
	p, err := b.policies.Configure(ctx, policy.Request{
		GroupID:      msg.Chat.ID,
		Actor:        b.actor(msg.From),
		Channels:     channels,
		MuteDuration: duration,
	})
	if err != nil {
		return b.replyError(ctx, msg, err)
	}
	return b.reply(ctx, msg, "✅ Saved.\n\n"+b.policies.Describe(ctx, p))
}

func (b *Bot) cmdFsubOff(ctx context.Context, msg *platform.Message) error {
	if !msg.Chat.IsGroup() {
		return b.reply(ctx, msg, "Use /fsub_off inside the group.")
	}
	return b.disable(ctx, msg)
}

func (b *Bot) disable(ctx context.Context, msg *platform.Message) error {
	existed, err := b.policies.Disable(ctx, msg.Chat.ID, b.actor(msg.From))
	if err != nil {
		return b.replyError(ctx, msg, err)
	}
	if !existed {
		return b.reply(ctx, msg, "No join requirement was set.")
	}
	return b.reply(ctx, msg, "✅ Join requirement disabled.")
}

func (b *Bot) cmdStatus(ctx context.Context, msg *platform.Message) error {
	if !msg.Chat.IsGroup() {
		return b.reply(ctx, msg, "Use /status inside a group.")
	}
	p, err := b.policies.Get(ctx, msg.Chat.ID)
	if errors.Is(err, store.ErrNotFound) {
		return b.reply(ctx, msg, "No join requirement is set. Admins can add one with /fsub @channel.")
	}
	if err != nil {
		return b.replyError(ctx, msg, err)
	}
	return b.reply(ctx, msg, b.policies.Describe(ctx, p))
}

func (b *Bot) cmdStats(ctx context.Context, msg *platform.Message) error {
	if !b.isOperator(msg.From.ID) {
		return nil
	}

	groups, err := b.store.ListGroups(ctx)
	if err != nil {
		return b.replyError(ctx, msg, err)
	}
	users, err := b.store.ListUsers(ctx)
	if err != nil {
		return b.replyError(ctx, msg, err)
	}
	stats, err := b.engine.Stats(ctx)
	if err != nil {
		return b.replyError(ctx, msg, err)
	}

	return b.reply(ctx, msg, fmt.Sprintf(
		"<b>Stats</b>\nGroups with a requirement: %d\nRegistered users: %d\nActive mutes: %d\nWarning cooldown: %s",
		len(groups), len(users), stats.ActiveMutes, stats.WarningCooldown))
}

func (b *Bot) cmdBroadcast(ctx context.Context, msg *platform.Message) error {
	if !b.isOperator(msg.From.ID) {
		return nil
	}
	if !msg.Chat.IsPrivate() {
		return b.reply(ctx, msg, "Use /broadcast in a private chat with me.")
	}
	if msg.ReplyTo == nil {
		return b.reply(ctx, msg, "Reply to the message you want to broadcast with /broadcast.")
	}

	b.sessions.Prune()
	sess, err := b.sessions.Begin(msg.From.ID, broadcast.Source{ChatID: msg.Chat.ID, MessageID: msg.ReplyTo.ID})
	if err != nil {
		return b.replyError(ctx, msg, err)
	}

	text, kb := broadcast.TargetMenu(sess.ID)
	menuID, err := b.client.SendMessage(ctx, platform.OutgoingMessage{
		ChatID:   msg.Chat.ID,
		Text:     text,
		ReplyTo:  msg.ReplyTo.ID,
		Keyboard: kb,
	})
	if err != nil {
		return fmt.Errorf("send broadcast menu: %w", err)
	}
	return b.sessions.SetMenu(msg.From.ID, sess.ID, menuID)
}

// actor treats operators as trusted policy editors in any group.
func (b *Bot) actor(u platform.User) policy.Actor {
	return policy.Actor{ID: u.ID, Trusted: b.isOperator(u.ID)}
}
