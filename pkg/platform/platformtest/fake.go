// Package platformtest provides an in-memory platform.Client for tests.
package platformtest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"joinguard-hq/warden/pkg/channel"
	"joinguard-hq/warden/pkg/platform"
)

// Method names accepted by FailOn and CallCount.
const (
	MethodSelf           = "Self"
	MethodGetChat        = "GetChat"
	MethodGetChatMember  = "GetChatMember"
	MethodInviteLink     = "InviteLink"
	MethodRestrict       = "Restrict"
	MethodDeleteMessage  = "DeleteMessage"
	MethodSendMessage    = "SendMessage"
	MethodEditMessage    = "EditMessage"
	MethodCopyMessage    = "CopyMessage"
	MethodPinMessage     = "PinMessage"
	MethodAnswerCallback = "AnswerCallback"
)

// Restriction is a recorded Restrict call.
type Restriction struct {
	ChatID int64
	UserID int64
	Perms  platform.Permissions
	Until  time.Time
}

// Deletion is a recorded DeleteMessage call that succeeded.
type Deletion struct {
	ChatID    int64
	MessageID int
}

// Answer is a recorded AnswerCallback call.
type Answer struct {
	CallbackID string
	Text       string
	Alert      bool
}

// Copy is a recorded CopyMessage call that succeeded.
type Copy struct {
	ToChatID   int64
	FromChatID int64
	MessageID  int
	NewID      int
}

// Pin is a recorded PinMessage call that succeeded.
type Pin struct {
	ChatID    int64
	MessageID int
}

// Edit is a recorded EditMessage call.
type Edit struct {
	ChatID    int64
	MessageID int
	Text      string
	Keyboard  platform.Keyboard
}

// SentMessage is a recorded SendMessage call with the id it was given.
type SentMessage struct {
	platform.OutgoingMessage
	ID int
}

type memberKey struct {
	chatID int64
	userID int64
}

type failKey struct {
	method string
	chatID int64
}

// Fake is a concurrency-safe in-memory platform.
type Fake struct {
	mu sync.Mutex

	me          platform.User
	chats       map[int64]platform.Chat
	usernames   map[string]int64
	members     map[memberKey]platform.ChatMember
	inviteLinks map[int64]string
	failures    map[failKey]error
	calls       map[string]int
	nextID      int

	Restrictions []Restriction
	Deletions    []Deletion
	Sent         []SentMessage
	Answers      []Answer
	Copies       []Copy
	Pins         []Pin
	Edits        []Edit
}

// New returns an empty fake whose bot account has id 1.
func New() *Fake {
	return &Fake{
		me:          platform.User{ID: 1, IsBot: true, FirstName: "Warden", Username: "warden_bot"},
		chats:       make(map[int64]platform.Chat),
		usernames:   make(map[string]int64),
		members:     make(map[memberKey]platform.ChatMember),
		inviteLinks: make(map[int64]string),
		failures:    make(map[failKey]error),
		calls:       make(map[string]int),
		nextID:      1000,
	}
}

// AddChat registers a chat so GetChat can find it by id or username.
func (f *Fake) AddChat(c platform.Chat) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats[c.ID] = c
	if c.Username != "" {
		f.usernames[strings.ToLower(c.Username)] = c.ID
	}
}

// SetMember sets userID's status in chatID.
func (f *Fake) SetMember(chatID, userID int64, status platform.MemberStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[memberKey{chatID, userID}] = platform.ChatMember{
		UserID:   userID,
		Status:   status,
		IsMember: status != platform.StatusLeft && status != platform.StatusKicked,
	}
}

// SetRestricted marks userID as a restricted member of chatID until the
// given time.
func (f *Fake) SetRestricted(chatID, userID int64, until time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[memberKey{chatID, userID}] = platform.ChatMember{
		UserID:    userID,
		Status:    platform.StatusRestricted,
		IsMember:  true,
		UntilDate: until,
	}
}

// SetInviteLink sets the link InviteLink returns for chatID.
func (f *Fake) SetInviteLink(chatID int64, link string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inviteLinks[chatID] = link
}

// FailOn makes method fail with err for chatID. A chatID of 0 matches every
// chat. A nil err clears the failure.
func (f *Fake) FailOn(method string, chatID int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := failKey{method, chatID}
	if err == nil {
		delete(f.failures, k)
		return
	}
	f.failures[k] = err
}

// CallCount returns how many times method was called.
func (f *Fake) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// TotalCalls returns the number of calls across all methods.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// RestrictionsFor returns the recorded restrictions for a user in a chat.
func (f *Fake) RestrictionsFor(chatID, userID int64) []Restriction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Restriction
	for _, r := range f.Restrictions {
		if r.ChatID == chatID && r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

// SentTo returns the messages sent to chatID.
func (f *Fake) SentTo(chatID int64) []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []SentMessage
	for _, m := range f.Sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// begin counts the call and returns the configured failure, if any.
func (f *Fake) begin(method string, chatID int64) error {
	f.calls[method]++
	if err, ok := f.failures[failKey{method, chatID}]; ok {
		return err
	}
	if err, ok := f.failures[failKey{method, 0}]; ok {
		return err
	}
	return nil
}

func apiErr(method string, kind error) error {
	return &platform.APIError{Method: method, Code: 400, Description: kind.Error(), Kind: kind}
}

func (f *Fake) Self(ctx context.Context) (platform.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(MethodSelf, 0); err != nil {
		return platform.User{}, err
	}
	return f.me, nil
}

func (f *Fake) GetChat(ctx context.Context, ref channel.Ref) (platform.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var id int64
	if h, ok := ref.Handle(); ok {
		id = f.usernames[strings.ToLower(h)]
	} else {
		id, _ = ref.ID()
	}
	if err := f.begin(MethodGetChat, id); err != nil {
		return platform.Chat{}, err
	}
	c, ok := f.chats[id]
	if !ok {
		return platform.Chat{}, apiErr(MethodGetChat, platform.ErrChatNotFound)
	}
	return c, nil
}

func (f *Fake) GetChatMember(ctx context.Context, chatID, userID int64) (platform.ChatMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(MethodGetChatMember, chatID); err != nil {
		return platform.ChatMember{}, err
	}
	if _, ok := f.chats[chatID]; !ok {
		return platform.ChatMember{}, apiErr(MethodGetChatMember, platform.ErrChatNotFound)
	}
	m, ok := f.members[memberKey{chatID, userID}]
	if !ok {
		return platform.ChatMember{UserID: userID, Status: platform.StatusLeft}, nil
	}
	return m, nil
}

func (f *Fake) InviteLink(ctx context.Context, chatID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(MethodInviteLink, chatID); err != nil {
		return "", err
	}
	link, ok := f.inviteLinks[chatID]
	if !ok {
		return "", apiErr(MethodInviteLink, platform.ErrNotEnoughRights)
	}
	return link, nil
}

func (f *Fake) Restrict(ctx context.Context, chatID, userID int64, perms platform.Permissions, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(MethodRestrict, chatID); err != nil {
		return err
	}
	f.Restrictions = append(f.Restrictions, Restriction{ChatID: chatID, UserID: userID, Perms: perms, Until: until})
	return nil
}

func (f *Fake) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(MethodDeleteMessage, chatID); err != nil {
		return err
	}
	for _, d := range f.Deletions {
		if d.ChatID == chatID && d.MessageID == messageID {
			return apiErr(MethodDeleteMessage, platform.ErrMessageNotFound)
		}
	}
	f.Deletions = append(f.Deletions, Deletion{ChatID: chatID, MessageID: messageID})
	return nil
}

func (f *Fake) SendMessage(ctx context.Context, msg platform.OutgoingMessage) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(MethodSendMessage, msg.ChatID); err != nil {
		return 0, err
	}
	f.nextID++
	f.Sent = append(f.Sent, SentMessage{OutgoingMessage: msg, ID: f.nextID})
	return f.nextID, nil
}

func (f *Fake) EditMessage(ctx context.Context, chatID int64, messageID int, text string, kb platform.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(MethodEditMessage, chatID); err != nil {
		return err
	}
	f.Edits = append(f.Edits, Edit{ChatID: chatID, MessageID: messageID, Text: text, Keyboard: kb})
	return nil
}

func (f *Fake) CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(MethodCopyMessage, toChatID); err != nil {
		return 0, err
	}
	f.nextID++
	f.Copies = append(f.Copies, Copy{ToChatID: toChatID, FromChatID: fromChatID, MessageID: messageID, NewID: f.nextID})
	return f.nextID, nil
}

func (f *Fake) PinMessage(ctx context.Context, chatID int64, messageID int, silent bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(MethodPinMessage, chatID); err != nil {
		return err
	}
	f.Pins = append(f.Pins, Pin{ChatID: chatID, MessageID: messageID})
	return nil
}

func (f *Fake) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(MethodAnswerCallback, 0); err != nil {
		return err
	}
	f.Answers = append(f.Answers, Answer{CallbackID: callbackID, Text: text, Alert: alert})
	return nil
}

// NotEnoughRights returns a classified rights error for method.
func NotEnoughRights(method string) error {
	return apiErr(method, platform.ErrNotEnoughRights)
}

// Transient returns an unclassified server error for method.
func Transient(method string) error {
	return &platform.APIError{Method: method, Code: 502, Description: "Bad Gateway"}
}

// Forbidden returns a classified forbidden error for method.
func Forbidden(method string) error {
	return &platform.APIError{Method: method, Code: 403, Description: "Forbidden: bot was blocked by the user", Kind: platform.ErrForbidden}
}

var _ platform.Client = (*Fake)(nil)

// String summarises call counts, useful in failure messages.
func (f *Fake) String() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b strings.Builder
	for m, n := range f.calls {
		b.WriteString(m + "=" + strconv.Itoa(n) + " ")
	}
	return fmt.Sprintf("Fake{%s}", strings.TrimSpace(b.String()))
}
