package enforcement

import (
	"context"
	"fmt"
	"html"

	"joinguard-hq/warden/pkg/membership"
	"joinguard-hq/warden/pkg/platform"
)

// Warning classes, one cooldown each per group.
const (
	ClassBotNotAdmin    = "bot_not_admin"
	ClassLookupFailed   = "channel_lookup_failed"
	ClassTransient      = "transient"
	ClassRestrictFailed = "restrict_failed"
	ClassUnmuteFailed   = "unmute_failed"
)

// warn posts an operational warning to the group unless one of the same class
// was posted within the cooldown window. A cooldown error suppresses the
// warning.
func (e *Engine) warn(ctx context.Context, groupID int64, class, text string) bool {
	emit, err := e.cooldown.ShouldEmit(ctx, groupID, class)
	if err != nil {
		e.logger.Error("warning cooldown unavailable",
			"group_id", groupID,
			"class", class,
			"error", err,
		)
		emit = false
	}
	e.metrics.RecordWarning(class, emit)
	if !emit {
		return false
	}

	e.logger.Warn("operational warning",
		"group_id", groupID,
		"class", class,
	)
	_, err = e.client.SendMessage(ctx, platform.OutgoingMessage{
		ChatID: groupID,
		Text:   text,
		HTML:   true,
		Silent: true,
	})
	if err != nil {
		e.logger.Warn("failed to post operational warning",
			"group_id", groupID,
			"class", class,
			"error", err,
		)
	}
	return true
}

// warnIndeterminate explains why a membership check could not be completed.
func (e *Engine) warnIndeterminate(ctx context.Context, groupID int64, check membership.Check) {
	name := html.EscapeString(check.Ref.String())

	var class, text string
	switch check.Result.Reason {
	case membership.ReasonBotNotAdmin:
		class = ClassBotNotAdmin
		text = fmt.Sprintf("⚠️ I can't check who has joined %s. "+
			"Make me an administrator there so the join requirement can be enforced.", name)
	case membership.ReasonLookupFailed:
		class = ClassLookupFailed
		text = fmt.Sprintf("⚠️ I couldn't find the required channel %s. "+
			"An administrator should check the settings with /fsub.", name)
	default:
		class = ClassTransient
		text = fmt.Sprintf("⚠️ Telegram didn't answer a membership check for %s. "+
			"Messages are not being checked until it recovers.", name)
	}
	e.warn(ctx, groupID, class, text)
}

func (e *Engine) warnRestrictFailed(ctx context.Context, groupID int64) {
	e.warn(ctx, groupID, ClassRestrictFailed,
		"⚠️ I couldn't mute a member who hasn't joined the required channels. "+
			"Make sure I'm an administrator here with permission to restrict members.")
}

func (e *Engine) warnUnmuteFailed(ctx context.Context, groupID int64, u platform.User) {
	e.warn(ctx, groupID, ClassUnmuteFailed,
		fmt.Sprintf("⚠️ I couldn't lift the restriction on %s. "+
			"An administrator may need to unmute them manually.", Mention(u)))
}
