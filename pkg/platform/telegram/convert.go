package telegram

import (
	"errors"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"joinguard-hq/warden/pkg/platform"
)

// Substrings of Bot API error descriptions, lower-cased.
var classifiers = []struct {
	kind    error
	phrases []string
}{
	{platform.ErrNotEnoughRights, []string{
		"not enough rights",
		"chat_admin_required",
		"member list is inaccessible",
		"need administrator rights",
		"have no rights",
		"not an administrator",
	}},
	{platform.ErrChatNotFound, []string{"chat not found", "channel_private", "chat_id_invalid"}},
	{platform.ErrUserNotFound, []string{"user not found", "participant_id_invalid", "user_id_invalid"}},
	{platform.ErrMessageNotFound, []string{
		"message to delete not found",
		"message can't be deleted",
		"message to edit not found",
		"message to copy not found",
		"message_id_invalid",
		"message is not modified",
	}},
}

// classify converts a tgbotapi error into a *platform.APIError. Errors that
// did not come from the Bot API (network, decoding) are returned unchanged.
func classify(method string, err error) error {
	if err == nil {
		return nil
	}

	var tgErr *tgbotapi.Error
	if !errors.As(err, &tgErr) {
		return err
	}

	apiErr := &platform.APIError{
		Method:      method,
		Code:        tgErr.Code,
		Description: tgErr.Message,
	}

	switch tgErr.Code {
	case http.StatusTooManyRequests:
		apiErr.Kind = platform.ErrRateLimited
		apiErr.RetryAfter = time.Duration(tgErr.RetryAfter) * time.Second
		return apiErr
	case http.StatusForbidden:
		apiErr.Kind = platform.ErrForbidden
		return apiErr
	}

	desc := strings.ToLower(tgErr.Message)
	for _, c := range classifiers {
		for _, phrase := range c.phrases {
			if strings.Contains(desc, phrase) {
				apiErr.Kind = c.kind
				return apiErr
			}
		}
	}
	return apiErr
}

func convertPermissions(p platform.Permissions) *tgbotapi.ChatPermissions {
	return &tgbotapi.ChatPermissions{
		CanSendMessages:       p.SendMessages,
		CanSendMediaMessages:  p.SendMedia,
		CanSendPolls:          p.SendPolls,
		CanSendOtherMessages:  p.SendOther,
		CanAddWebPagePreviews: p.AddWebPreviews,
		CanChangeInfo:         p.ChangeInfo,
		CanInviteUsers:        p.InviteUsers,
		CanPinMessages:        p.PinMessages,
	}
}

func convertKeyboard(kb platform.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func convertUser(u *tgbotapi.User) platform.User {
	if u == nil {
		return platform.User{}
	}
	return platform.User{
		ID:        u.ID,
		IsBot:     u.IsBot,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.UserName,
	}
}

func convertChat(c *tgbotapi.Chat) platform.Chat {
	if c == nil {
		return platform.Chat{}
	}
	return platform.Chat{
		ID:         c.ID,
		Type:       platform.ChatType(c.Type),
		Title:      c.Title,
		Username:   c.UserName,
		InviteLink: c.InviteLink,
	}
}

func convertMember(userID int64, m *tgbotapi.ChatMember) platform.ChatMember {
	out := platform.ChatMember{
		UserID:   userID,
		Status:   platform.MemberStatus(m.Status),
		IsMember: m.IsMember,
	}
	if m.User != nil {
		out.UserID = m.User.ID
	}
	if m.UntilDate > 0 {
		out.UntilDate = time.Unix(m.UntilDate, 0)
	}
	return out
}

func convertMessage(m *tgbotapi.Message) *platform.Message {
	if m == nil {
		return nil
	}
	out := &platform.Message{
		ID:   m.MessageID,
		Chat: convertChat(m.Chat),
		From: convertUser(m.From),
		Date: m.Time(),
		Text: m.Text,
	}
	if out.Text == "" {
		out.Text = m.Caption
	}
	if m.IsCommand() {
		out.Command = m.Command()
		out.Args = m.CommandArguments()
	}
	if m.ReplyToMessage != nil {
		out.ReplyTo = convertMessage(m.ReplyToMessage)
	}
	if m.SenderChat != nil {
		out.SenderChatID = m.SenderChat.ID
	}
	out.Service = isServiceMessage(m)
	return out
}

// isServiceMessage reports whether m is a notice generated by the platform
// rather than something the sender wrote.
func isServiceMessage(m *tgbotapi.Message) bool {
	return len(m.NewChatMembers) > 0 ||
		m.LeftChatMember != nil ||
		m.PinnedMessage != nil ||
		m.NewChatTitle != "" ||
		len(m.NewChatPhoto) > 0 ||
		m.DeleteChatPhoto ||
		m.GroupChatCreated ||
		m.SuperGroupChatCreated ||
		m.ChannelChatCreated ||
		m.MessageAutoDeleteTimerChanged != nil ||
		m.MigrateToChatID != 0 ||
		m.MigrateFromChatID != 0 ||
		m.ProximityAlertTriggered != nil ||
		m.VoiceChatScheduled != nil ||
		m.VoiceChatStarted != nil ||
		m.VoiceChatEnded != nil ||
		m.VoiceChatParticipantsInvited != nil
}

// convertUpdate returns false for update kinds the engine ignores.
func convertUpdate(u *tgbotapi.Update) (platform.Update, bool) {
	out := platform.Update{ID: u.UpdateID}
	switch {
	case u.Message != nil:
		m := u.Message
		if m.From == nil || m.Chat == nil || isServiceMessage(m) || m.IsAutomaticForward {
			return out, false
		}
		out.Message = convertMessage(m)
	case u.CallbackQuery != nil:
		cb := &platform.Callback{
			ID:   u.CallbackQuery.ID,
			From: convertUser(u.CallbackQuery.From),
			Data: u.CallbackQuery.Data,
		}
		if m := u.CallbackQuery.Message; m != nil {
			cb.MessageID = m.MessageID
			if m.Chat != nil {
				cb.ChatID = m.Chat.ID
			}
		}
		out.Callback = cb
	default:
		return out, false
	}
	return out, true
}
