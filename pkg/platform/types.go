package platform

import (
	"context"
	"time"

	"joinguard-hq/warden/pkg/channel"
)

// MemberStatus is a user's role in a chat.
type MemberStatus string

const (
	StatusCreator       MemberStatus = "creator"
	StatusAdministrator MemberStatus = "administrator"
	StatusMember        MemberStatus = "member"
	StatusRestricted    MemberStatus = "restricted"
	StatusLeft          MemberStatus = "left"
	StatusKicked        MemberStatus = "kicked"
)

// ChatMember is the result of a membership lookup.
type ChatMember struct {
	UserID int64
	Status MemberStatus

	// IsMember is only meaningful for StatusRestricted: a restricted user may
	// or may not still be in the chat.
	IsMember bool

	// UntilDate is when a restriction lapses. Zero means forever or not restricted.
	UntilDate time.Time
}

// IsAdmin reports whether the member owns or administers the chat.
func (m ChatMember) IsAdmin() bool {
	return m.Status == StatusCreator || m.Status == StatusAdministrator
}

// InChat reports whether the user is currently in the chat.
func (m ChatMember) InChat() bool {
	switch m.Status {
	case StatusCreator, StatusAdministrator, StatusMember:
		return true
	case StatusRestricted:
		return m.IsMember
	default:
		return false
	}
}

// ChatType is the kind of chat.
type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

// Chat describes a chat.
type Chat struct {
	ID       int64
	Type     ChatType
	Title    string
	Username string

	// InviteLink is the primary invite link if the platform returned one.
	InviteLink string
}

// IsGroup reports whether the chat is a group or supergroup.
func (c Chat) IsGroup() bool {
	return c.Type == ChatGroup || c.Type == ChatSupergroup
}

// IsPrivate reports whether the chat is a one-to-one chat with the bot.
func (c Chat) IsPrivate() bool {
	return c.Type == ChatPrivate
}

// User is a platform account.
type User struct {
	ID        int64
	IsBot     bool
	FirstName string
	LastName  string
	Username  string
}

// DisplayName returns the best human-readable name for the user.
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return "@" + u.Username
	default:
		return "user"
	}
}

// Permissions is the set of rights granted to a restricted member.
type Permissions struct {
	SendMessages   bool
	SendMedia      bool
	SendPolls      bool
	SendOther      bool
	AddWebPreviews bool
	ChangeInfo     bool
	InviteUsers    bool
	PinMessages    bool
}

// DenyAll denies every permission.
func DenyAll() Permissions {
	return Permissions{}
}

// FullMember is what an ordinary member gets back when a mute is lifted.
func FullMember() Permissions {
	return Permissions{
		SendMessages:   true,
		SendMedia:      true,
		SendPolls:      true,
		SendOther:      true,
		AddWebPreviews: true,
	}
}

// Minimal only allows plain text messages.
func Minimal() Permissions {
	return Permissions{SendMessages: true}
}

// Button is an inline keyboard button. Exactly one of URL or Data is set.
type Button struct {
	Text string
	URL  string
	Data string
}

// Keyboard is rows of inline buttons.
type Keyboard [][]Button

// OutgoingMessage is a message the bot sends.
type OutgoingMessage struct {
	ChatID   int64
	Text     string
	HTML     bool
	ReplyTo  int
	Keyboard Keyboard
	Silent   bool
}

// Message is an inbound message.
type Message struct {
	ID   int
	Chat Chat
	From User
	Date time.Time
	Text string

	// Command is set for "/cmd args" messages, without the slash or @botname.
	Command string
	Args    string

	ReplyTo *Message

	// Service marks notices the platform posts on a user's behalf: joins,
	// leaves, pins, title and photo changes.
	Service bool

	// SenderChatID is set when the message was sent on behalf of a chat,
	// such as an anonymous admin or a linked channel's automatic forward.
	SenderChatID int64
}

// ServiceUserID is the account automatic forwards from a linked channel are
// attributed to.
const ServiceUserID int64 = 777000

// PostedByUser reports whether a person authored the message in their own
// name.
func (m *Message) PostedByUser() bool {
	return !m.Service && m.SenderChatID == 0 && m.From.ID != 0 && m.From.ID != ServiceUserID && !m.From.IsBot
}

// IsCommand reports whether the message is a bot command.
func (m *Message) IsCommand() bool {
	return m.Command != ""
}

// Callback is an inline button press.
type Callback struct {
	ID        string
	From      User
	ChatID    int64
	MessageID int
	Data      string
}

// Update is one inbound event. Exactly one of Message or Callback is set.
type Update struct {
	ID       int
	Message  *Message
	Callback *Callback
}

// Client is the subset of the platform API the engine uses.
type Client interface {
	// Self returns the bot's own account. Used as a liveness check.
	Self(ctx context.Context) (User, error)

	// GetChat looks a chat up by handle or id.
	GetChat(ctx context.Context, ref channel.Ref) (Chat, error)

	// GetChatMember returns userID's membership in chatID.
	GetChatMember(ctx context.Context, chatID, userID int64) (ChatMember, error)

	// InviteLink returns an invite link for a private chat the bot administers.
	InviteLink(ctx context.Context, chatID int64) (string, error)

	// Restrict applies perms to userID in chatID. A zero until means no expiry.
	Restrict(ctx context.Context, chatID, userID int64, perms Permissions, until time.Time) error

	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	SendMessage(ctx context.Context, msg OutgoingMessage) (int, error)
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, kb Keyboard) error

	// CopyMessage copies a message into toChatID and returns the new message id.
	CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error)
	PinMessage(ctx context.Context, chatID int64, messageID int, silent bool) error

	// AnswerCallback acknowledges a button press. With alert set the text is
	// shown as a modal visible only to the presser.
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}

// Source delivers inbound updates until ctx is cancelled.
type Source interface {
	Updates(ctx context.Context) (<-chan Update, error)
}
