package enforcement

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"joinguard-hq/warden/pkg/audit"
	"joinguard-hq/warden/pkg/channel"
	"joinguard-hq/warden/pkg/config"
	"joinguard-hq/warden/pkg/directory"
	"joinguard-hq/warden/pkg/membership"
	"joinguard-hq/warden/pkg/platform"
	"joinguard-hq/warden/pkg/platform/platformtest"
	"joinguard-hq/warden/pkg/ratelimit"
	"joinguard-hq/warden/pkg/store"
	"joinguard-hq/warden/pkg/telemetry/metrics"
	"joinguard-hq/warden/pkg/warnings"
)

const (
	groupID = int64(-100100)
	newsID  = int64(-1001)
	blogID  = int64(-1002)
	userID  = int64(42)
	otherID = int64(43)
	adminID = int64(7)
)

type captureSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *captureSink) Write(ctx context.Context, e audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) types() []audit.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Type, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

type harness struct {
	t        *testing.T
	fake     *platformtest.Fake
	policies *store.MemoryBackend
	mutes    *warnings.MemoryStore
	registry *prometheus.Registry
	sink     *captureSink
	recorder *audit.Recorder
	engine   *Engine

	mu    sync.Mutex
	clock time.Time
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	return newHarnessWithStore(t, cfg, nil)
}

// newHarnessWithStore lets a test wrap the in-memory mute store before the
// engine sees it.
func newHarnessWithStore(t *testing.T, cfg Config, wrap func(warnings.Store) warnings.Store) *harness {
	t.Helper()

	h := &harness{
		t:        t,
		fake:     platformtest.New(),
		policies: store.NewMemoryBackend(),
		mutes:    warnings.NewMemoryStore(),
		registry: prometheus.NewRegistry(),
		sink:     &captureSink{},
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.fake.AddChat(platform.Chat{ID: groupID, Type: platform.ChatSupergroup, Title: "Test Group"})
	h.fake.AddChat(platform.Chat{ID: newsID, Type: platform.ChatChannel, Title: "News", Username: "news"})
	h.fake.AddChat(platform.Chat{ID: blogID, Type: platform.ChatChannel, Title: "Blog"})
	h.fake.SetInviteLink(blogID, "https://t.me/+blogInvite")
	h.fake.SetMember(groupID, adminID, platform.StatusAdministrator)

	dir := directory.New(h.fake, directory.Config{})
	cooldown := ratelimit.NewMemoryCooldown(ratelimit.Config{})
	h.recorder = audit.NewRecorder(h.sink, 64)

	var mutes warnings.Store = h.mutes
	if wrap != nil {
		mutes = wrap(h.mutes)
	}

	engine, err := New(cfg, Deps{
		Client:    h.fake,
		Policies:  h.policies,
		Directory: dir,
		Prober:    membership.NewProber(h.fake, dir),
		Warnings:  warnings.NewManager(mutes, h.fake),
		Cooldown:  cooldown,
		Metrics:   metrics.NewCollector(&config.MetricsConfig{}, h.registry),
		Audit:     h.recorder,
		Now:       h.now,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h.engine = engine

	t.Cleanup(func() {
		engine.Close()
		cooldown.Close()
		h.recorder.Close()
	})
	return h
}

func (h *harness) now() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clock
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clock = h.clock.Add(d)
}

func (h *harness) setPolicy(mute time.Duration, channels ...string) {
	h.t.Helper()
	refs, err := channel.ParseList(channels)
	if err != nil {
		h.t.Fatalf("ParseList failed: %v", err)
	}
	err = h.policies.SetPolicy(context.Background(), &store.GroupPolicy{
		GroupID:      groupID,
		Channels:     refs,
		MuteDuration: mute,
	})
	if err != nil {
		h.t.Fatalf("SetPolicy failed: %v", err)
	}
}

func (h *harness) post(from int64, id int) Decision {
	h.t.Helper()
	d, err := h.engine.HandleMessage(context.Background(), &platform.Message{
		ID:   id,
		Chat: platform.Chat{ID: groupID, Type: platform.ChatSupergroup},
		From: platform.User{ID: from, FirstName: "Ann"},
		Text: "hello",
	})
	if err != nil {
		h.t.Fatalf("HandleMessage failed: %v", err)
	}
	return d
}

func (h *harness) verify(from, target int64, promptID int) VerifyOutcome {
	h.t.Helper()
	out, err := h.engine.HandleVerify(context.Background(), &platform.Callback{
		ID:        "cb",
		From:      platform.User{ID: from, FirstName: "Ann"},
		ChatID:    groupID,
		MessageID: promptID,
		Data:      VerifyData(target),
	})
	if err != nil {
		h.t.Fatalf("HandleVerify failed: %v", err)
	}
	return out
}

func (h *harness) mute(key warnings.Key) (warnings.State, bool) {
	h.t.Helper()
	st, ok, err := h.mutes.Get(context.Background(), key)
	if err != nil {
		h.t.Fatalf("Get failed: %v", err)
	}
	return st, ok
}

func (h *harness) lastAnswer() platformtest.Answer {
	h.t.Helper()
	if len(h.fake.Answers) == 0 {
		h.t.Fatal("no callback answered")
	}
	return h.fake.Answers[len(h.fake.Answers)-1]
}

var userKey = warnings.Key{GroupID: groupID, UserID: userID}

func TestHandleMessage_NoPolicyTouchesNothing(t *testing.T) {
	h := newHarness(t, Config{})

	d := h.post(userID, 10)
	if d.Action != ActionNone {
		t.Errorf("Action = %q, want %q", d.Action, ActionNone)
	}
	if n := h.fake.TotalCalls(); n != 0 {
		t.Errorf("expected no platform calls, got %d (%s)", n, h.fake)
	}
	if n, _ := h.mutes.Count(context.Background()); n != 0 {
		t.Errorf("expected no mute state, got %d", n)
	}
}

func TestHandleMessage_Ignored(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPolicy(0, "@news")

	tests := []struct {
		name string
		msg  *platform.Message
	}{
		{"nil", nil},
		{"private chat", &platform.Message{Chat: platform.Chat{ID: userID, Type: platform.ChatPrivate}, From: platform.User{ID: userID}}},
		{"channel post", &platform.Message{Chat: platform.Chat{ID: groupID, Type: platform.ChatSupergroup}}},
		{"bot author", &platform.Message{Chat: platform.Chat{ID: groupID, Type: platform.ChatSupergroup}, From: platform.User{ID: 99, IsBot: true}}},
		{"command", &platform.Message{Chat: platform.Chat{ID: groupID, Type: platform.ChatGroup}, From: platform.User{ID: userID}, Command: "status"}},
		{"member left", &platform.Message{Chat: platform.Chat{ID: groupID, Type: platform.ChatSupergroup}, From: platform.User{ID: userID}, Service: true}},
		{"anonymous admin", &platform.Message{Chat: platform.Chat{ID: groupID, Type: platform.ChatSupergroup}, From: platform.User{ID: 1087968824, IsBot: true}, SenderChatID: groupID, Text: "hi"}},
		{"linked channel forward", &platform.Message{Chat: platform.Chat{ID: groupID, Type: platform.ChatSupergroup}, From: platform.User{ID: platform.ServiceUserID}, SenderChatID: newsID, Text: "post"}},
		{"service account", &platform.Message{Chat: platform.Chat{ID: groupID, Type: platform.ChatSupergroup}, From: platform.User{ID: platform.ServiceUserID}, Text: "post"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := h.engine.HandleMessage(context.Background(), tt.msg)
			if err != nil {
				t.Fatalf("HandleMessage failed: %v", err)
			}
			if d.Action != ActionIgnored {
				t.Errorf("Action = %q, want %q", d.Action, ActionIgnored)
			}
		})
	}

	if n := h.fake.TotalCalls(); n != 0 {
		t.Errorf("ignored messages made %d platform calls", n)
	}
}

func TestHandleMessage_AdminsAreExempt(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPolicy(0, "@news")
	h.fake.SetMember(groupID, 8, platform.StatusCreator)

	for _, id := range []int64{adminID, 8} {
		d := h.post(id, 10)
		if d.Action != ActionExempt {
			t.Errorf("user %d: Action = %q, want %q", id, d.Action, ActionExempt)
		}
	}
	if n := h.fake.CallCount(platformtest.MethodRestrict); n != 0 {
		t.Errorf("admins must never be restricted, got %d Restrict calls", n)
	}
	if n := h.fake.CallCount(platformtest.MethodGetChat); n != 0 {
		t.Errorf("admin check must run before channel probes, got %d GetChat calls", n)
	}
}

func TestHandleMessage_MemberPasses(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPolicy(0, "@news")
	h.fake.SetMember(newsID, userID, platform.StatusMember)

	d := h.post(userID, 10)
	if d.Action != ActionNone || d.Reason != "member" {
		t.Errorf("Decision = %+v, want member pass", d)
	}
	if n := h.fake.CallCount(platformtest.MethodRestrict); n != 0 {
		t.Errorf("member was restricted")
	}
}

func TestHandleMessage_MutesNonMember(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPolicy(0, "@news")

	d := h.post(userID, 10)
	if d.Action != ActionRestricted {
		t.Fatalf("Action = %q, want %q (reason %q)", d.Action, ActionRestricted, d.Reason)
	}
	wantUntil := h.now().Add(5 * time.Minute)
	if !d.Until.Equal(wantUntil) {
		t.Errorf("Until = %v, want %v", d.Until, wantUntil)
	}

	rs := h.fake.RestrictionsFor(groupID, userID)
	if len(rs) != 1 {
		t.Fatalf("expected 1 restriction, got %d", len(rs))
	}
	if rs[0].Perms != platform.DenyAll() {
		t.Errorf("restriction perms = %+v, want deny-all", rs[0].Perms)
	}
	if !rs[0].Until.Equal(wantUntil) {
		t.Errorf("restriction until = %v, want %v", rs[0].Until, wantUntil)
	}

	sent := h.fake.SentTo(groupID)
	if len(sent) != 1 {
		t.Fatalf("expected exactly one prompt, got %d", len(sent))
	}
	prompt := sent[0]
	if prompt.ID != d.PromptID {
		t.Errorf("PromptID = %d, want %d", d.PromptID, prompt.ID)
	}
	if !prompt.HTML || !strings.Contains(prompt.Text, `<a href="tg://user?id=42">Ann</a>`) {
		t.Errorf("prompt does not mention the user: %q", prompt.Text)
	}
	if !strings.Contains(prompt.Text, "5 minutes") {
		t.Errorf("prompt does not state the duration: %q", prompt.Text)
	}
	if len(prompt.Keyboard) != 2 {
		t.Fatalf("expected join + verify rows, got %+v", prompt.Keyboard)
	}
	if got := prompt.Keyboard[0][0].URL; got != "https://t.me/news" {
		t.Errorf("join URL = %q, want https://t.me/news", got)
	}
	if got := prompt.Keyboard[1][0].Data; got != "verify:42" {
		t.Errorf("verify data = %q, want verify:42", got)
	}

	st, ok := h.mute(userKey)
	if !ok {
		t.Fatal("mute state not stored")
	}
	if len(st.MessageIDs) != 1 || st.MessageIDs[0] != d.PromptID {
		t.Errorf("recorded prompts = %v, want [%d]", st.MessageIDs, d.PromptID)
	}
	if !st.Until.Equal(wantUntil) {
		t.Errorf("state Until = %v, want %v", st.Until, wantUntil)
	}

	if n, err := testutil.GatherAndCount(h.registry, "warden_enforcement_mutes_total"); err != nil || n != 1 {
		t.Errorf("mutes_total series = %d, %v", n, err)
	}
}

func TestHandleMessage_ReplacesPreviousPrompt(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPolicy(0, "@news")

	first := h.post(userID, 10)
	second := h.post(userID, 11)

	if len(h.fake.Deletions) != 1 || h.fake.Deletions[0].MessageID != first.PromptID {
		t.Errorf("expected the first prompt to be deleted, got %+v", h.fake.Deletions)
	}
	st, _ := h.mute(userKey)
	if len(st.MessageIDs) != 1 || st.MessageIDs[0] != second.PromptID {
		t.Errorf("outstanding prompts = %v, want only [%d]", st.MessageIDs, second.PromptID)
	}
}

func TestHandleMessage_MuteDurationClamp(t *testing.T) {
	tests := []struct {
		name   string
		policy time.Duration
		want   time.Duration
	}{
		{"default", 0, 5 * time.Minute},
		{"below minimum", 30 * time.Second, time.Minute},
		{"custom", 10 * time.Minute, 10 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.setPolicy(tt.policy, "@news")

			d := h.post(userID, 10)
			if got := d.Until.Sub(h.now()); got != tt.want {
				t.Errorf("mute duration = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleMessage_ListsUnconfirmedChannels(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPolicy(0, "@news", "-1002")

	d := h.post(userID, 10)
	if d.Action != ActionRestricted {
		t.Fatalf("Action = %q, want restricted", d.Action)
	}
	// The first channel is missing so the second is never probed, but it
	// still needs a join button.
	if len(d.Missing) != 2 {
		t.Fatalf("Missing = %v, want both channels", d.Missing)
	}
	kb := h.fake.SentTo(groupID)[0].Keyboard
	if len(kb) != 3 || kb[1][0].URL != "https://t.me/+blogInvite" {
		t.Errorf("keyboard = %+v, want news, blog invite and verify rows", kb)
	}
}

func TestHandleMessage_IndeterminateSkipsAndWarnsOnce(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPolicy(0, "@news")
	h.fake.FailOn(platformtest.MethodGetChatMember, newsID, platformtest.NotEnoughRights(platformtest.MethodGetChatMember))

	for i := 0; i < 2; i++ {
		d := h.post(userID, 10+i)
		if d.Action != ActionSkipped || d.Reason != string(membership.ReasonBotNotAdmin) {
			t.Errorf("Decision = %+v, want skipped/bot_not_admin", d)
		}
	}

	if n := h.fake.CallCount(platformtest.MethodRestrict); n != 0 {
		t.Errorf("indeterminate membership must never restrict, got %d calls", n)
	}
	sent := h.fake.SentTo(groupID)
	if len(sent) != 1 {
		t.Fatalf("expected one rate-limited warning, got %d messages", len(sent))
	}
	if !strings.Contains(sent[0].Text, "administrator") {
		t.Errorf("warning text = %q", sent[0].Text)
	}
}

func TestHandleMessage_NotMemberBeatsIndeterminate(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPolicy(0, "-1002", "@news")
	h.fake.FailOn(platformtest.MethodGetChatMember, blogID, platformtest.Transient(platformtest.MethodGetChatMember))

	d := h.post(userID, 10)
	if d.Action != ActionRestricted {
		t.Errorf("Action = %q, want restricted", d.Action)
	}
}

func TestHandleMessage_RestrictFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPolicy(0, "@news")
	h.fake.FailOn(platformtest.MethodRestrict, groupID, platformtest.NotEnoughRights(platformtest.MethodRestrict))

	d := h.post(userID, 10)
	if d.Action != ActionRestrictFailed {
		t.Fatalf("Action = %q, want %q", d.Action, ActionRestrictFailed)
	}
	if n := h.fake.CallCount(platformtest.MethodRestrict); n != 1 {
		t.Errorf("restriction must not be retried, got %d calls", n)
	}
	if _, ok := h.mute(userKey); ok {
		t.Error("failed restriction must not leave mute state")
	}
	sent := h.fake.SentTo(groupID)
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "couldn't mute") {
		t.Errorf("expected one operational warning, got %+v", sent)
	}
}

func TestHandleMessage_DeleteOffendingMessage(t *testing.T) {
	h := newHarness(t, Config{DeleteOffendingMessage: true})
	h.setPolicy(0, "@news")

	h.post(userID, 10)
	if len(h.fake.Deletions) != 1 || h.fake.Deletions[0].MessageID != 10 {
		t.Errorf("Deletions = %+v, want message 10", h.fake.Deletions)
	}
	if got := h.fake.SentTo(groupID)[0].ReplyTo; got != 0 {
		t.Errorf("prompt replies to deleted message %d", got)
	}
}

func TestHandleVerify_WrongUser(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPolicy(0, "@news")
	d := h.post(userID, 10)
	before, _ := h.mute(userKey)
	restricts := h.fake.CallCount(platformtest.MethodRestrict)

	if out := h.verify(otherID, userID, d.PromptID); out != VerifyWrongUser {
		t.Errorf("outcome = %q, want %q", out, VerifyWrongUser)
	}
	if a := h.lastAnswer(); !a.Alert {
		t.Errorf("wrong-user answer should be an alert: %+v", a)
	}
	if n := h.fake.CallCount(platformtest.MethodRestrict); n != restricts {
		t.Errorf("permissions changed by another user's press")
	}
	after, ok := h.mute(userKey)
	if !ok || !after.Until.Equal(before.Until) || len(after.MessageIDs) != len(before.MessageIDs) {
		t.Errorf("mute state changed: before %+v after %+v", before, after)
	}
}

func TestHandleVerify_NotJoinedYet(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPolicy(0, "@news")
	d := h.post(userID, 10)
	sent := len(h.fake.SentTo(groupID))

	if out := h.verify(userID, userID, d.PromptID); out != VerifyNotJoined {
		t.Fatalf("outcome = %q, want %q", out, VerifyNotJoined)
	}
	if a := h.lastAnswer(); !strings.Contains(a.Text, "haven't joined") {
		t.Errorf("answer = %q", a.Text)
	}
	if got := len(h.fake.SentTo(groupID)); got != sent {
		t.Errorf("verify while not joined posted %d new messages", got-sent)
	}
	if n := len(h.fake.RestrictionsFor(groupID, userID)); n != 1 {
		t.Errorf("restriction touched, %d restrict calls", n)
	}
	st, ok := h.mute(userKey)
	if !ok || len(st.MessageIDs) != 1 {
		t.Errorf("mute state changed: %+v", st)
	}
}

func TestHandleVerify_JoinedRestores(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPolicy(0, "@news")
	d := h.post(userID, 10)

	h.fake.SetMember(newsID, userID, platform.StatusMember)
	if out := h.verify(userID, userID, d.PromptID); out != VerifyRestored {
		t.Fatalf("outcome = %q, want %q", out, VerifyRestored)
	}

	rs := h.fake.RestrictionsFor(groupID, userID)
	last := rs[len(rs)-1]
	if last.Perms != platform.FullMember() || !last.Until.IsZero() {
		t.Errorf("restore = %+v, want full permissions without expiry", last)
	}
	if _, ok := h.mute(userKey); ok {
		t.Error("mute state not cleared")
	}
	if len(h.fake.Deletions) != 1 || h.fake.Deletions[0].MessageID != d.PromptID {
		t.Errorf("prompt not deleted: %+v", h.fake.Deletions)
	}
	sent := h.fake.SentTo(groupID)
	if !strings.Contains(sent[len(sent)-1].Text, "thanks for joining") {
		t.Errorf("no confirmation posted: %+v", sent)
	}
	stats, err := h.engine.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.ActiveMutes != 0 || stats.PendingTimers != 0 {
		t.Errorf("Stats = %+v, want nothing active", stats)
	}
}

func TestHandleVerify_RequiresEveryChannel(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPolicy(0, "@news", "-1002")
	d := h.post(userID, 10)

	h.fake.SetMember(newsID, userID, platform.StatusMember)
	if out := h.verify(userID, userID, d.PromptID); out != VerifyNotJoined {
		t.Errorf("outcome = %q, want %q with one channel left", out, VerifyNotJoined)
	}

	h.fake.SetMember(blogID, userID, platform.StatusMember)
	if out := h.verify(userID, userID, d.PromptID); out != VerifyRestored {
		t.Errorf("outcome = %q, want %q", out, VerifyRestored)
	}
}

func TestHandleVerify_RestoreFailureKeepsMute(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPolicy(0, "@news")
	d := h.post(userID, 10)
	h.fake.SetMember(newsID, userID, platform.StatusMember)

	// Every Restrict fails: the mute must survive so the user can retry.
	h.fake.FailOn(platformtest.MethodRestrict, groupID, platformtest.Transient(platformtest.MethodRestrict))
	if out := h.verify(userID, userID, d.PromptID); out != VerifyFailed {
		t.Fatalf("outcome = %q, want %q", out, VerifyFailed)
	}
	if n := h.fake.CallCount(platformtest.MethodRestrict); n != 1+len(restoreStrategies) {
		t.Errorf("expected every strategy to be tried, got %d Restrict calls", n)
	}
	if _, ok := h.mute(userKey); !ok {
		t.Error("mute state cleared after a failed restore")
	}
	if a := h.lastAnswer(); !strings.Contains(a.Text, "try again") {
		t.Errorf("answer = %q", a.Text)
	}

	h.fake.FailOn(platformtest.MethodRestrict, groupID, nil)
	if out := h.verify(userID, userID, d.PromptID); out != VerifyRestored {
		t.Errorf("retry outcome = %q, want %q", out, VerifyRestored)
	}

	if err := h.recorder.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	want := []audit.Type{audit.TypeRestricted, audit.TypeUnmuteFailed, audit.TypeUnmuted}
	got := h.sink.types()
	if len(got) != len(want) {
		t.Fatalf("audit types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestHandleVerify_NotMuted(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPolicy(0, "@news")

	if out := h.verify(userID, userID, 555); out != VerifyNotMuted {
		t.Fatalf("outcome = %q, want %q", out, VerifyNotMuted)
	}
	if n := h.fake.CallCount(platformtest.MethodRestrict); n != 0 {
		t.Errorf("not-muted press must not restore, got %d Restrict calls", n)
	}
	if len(h.fake.Deletions) != 1 || h.fake.Deletions[0].MessageID != 555 {
		t.Errorf("stale prompt not deleted: %+v", h.fake.Deletions)
	}
}

func TestHandleVerify_LostMuteState(t *testing.T) {
	tests := []struct {
		name       string
		until      time.Duration
		joined     bool
		want       VerifyOutcome
		wantLifted bool
		wantState  bool
	}{
		{name: "joined", until: 3 * time.Minute, joined: true, want: VerifyRestored, wantLifted: true},
		{name: "not joined", until: 3 * time.Minute, want: VerifyNotJoined, wantState: true},
		{name: "indefinite", until: 0, joined: true, want: VerifyNotMuted},
		{name: "lapsed", until: -time.Minute, joined: true, want: VerifyNotMuted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.setPolicy(0, "@news")
			var until time.Time
			if tt.until != 0 {
				until = h.now().Add(tt.until)
			}
			h.fake.SetRestricted(groupID, userID, until)
			if tt.joined {
				h.fake.SetMember(newsID, userID, platform.StatusMember)
			}

			if out := h.verify(userID, userID, 555); out != tt.want {
				t.Fatalf("outcome = %q, want %q", out, tt.want)
			}

			rs := h.fake.RestrictionsFor(groupID, userID)
			if lifted := len(rs) == 1 && rs[0].Perms == platform.FullMember(); lifted != tt.wantLifted {
				t.Errorf("restrictions = %+v, lifted want %v", rs, tt.wantLifted)
			}
			if !tt.wantLifted && len(rs) != 0 {
				t.Errorf("unexpected Restrict calls: %+v", rs)
			}

			st, ok := h.mute(userKey)
			if ok != tt.wantState {
				t.Fatalf("mute state present = %v, want %v", ok, tt.wantState)
			}
			if ok {
				if !st.Until.Equal(until) {
					t.Errorf("adopted Until = %v, want %v", st.Until, until)
				}
				if len(st.MessageIDs) != 1 || st.MessageIDs[0] != 555 {
					t.Errorf("adopted prompts = %v, want [555]", st.MessageIDs)
				}
			}

			deleted := len(h.fake.Deletions) == 1 && h.fake.Deletions[0].MessageID == 555
			if deleted == tt.wantState {
				t.Errorf("prompt deletions = %+v", h.fake.Deletions)
			}
		})
	}
}

func TestHandleVerify_Malformed(t *testing.T) {
	h := newHarness(t, Config{})

	out, err := h.engine.HandleVerify(context.Background(), &platform.Callback{ID: "cb", ChatID: groupID, Data: "verify:abc"})
	if err != nil {
		t.Fatalf("HandleVerify failed: %v", err)
	}
	if out != VerifyMalformed {
		t.Errorf("outcome = %q, want %q", out, VerifyMalformed)
	}
	if len(h.fake.Answers) != 1 {
		t.Error("malformed callbacks must still be answered")
	}
}

func TestDisablePolicy(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPolicy(0, "@news")
	d := h.post(userID, 10)

	if _, err := h.policies.DeletePolicy(context.Background(), groupID); err != nil {
		t.Fatalf("DeletePolicy failed: %v", err)
	}

	if got := h.post(otherID, 11); got.Action != ActionNone {
		t.Errorf("after disable Action = %q, want %q", got.Action, ActionNone)
	}
	if n := len(h.fake.RestrictionsFor(groupID, otherID)); n != 0 {
		t.Errorf("restricted after policy was disabled")
	}

	// The user muted before the change can still free themselves.
	if out := h.verify(userID, userID, d.PromptID); out != VerifyNoPolicy {
		t.Errorf("outcome = %q, want %q", out, VerifyNoPolicy)
	}
	if _, ok := h.mute(userKey); ok {
		t.Error("mute state not released")
	}
}

func TestExpire(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPolicy(0, "@news")
	d := h.post(userID, 10)
	ctx := context.Background()

	if err := h.engine.Expire(ctx, userKey); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	if _, ok := h.mute(userKey); !ok {
		t.Fatal("mute released before its expiry")
	}

	h.advance(5 * time.Minute)
	if err := h.engine.Expire(ctx, userKey); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	if _, ok := h.mute(userKey); ok {
		t.Error("mute state not cleared after expiry")
	}
	rs := h.fake.RestrictionsFor(groupID, userID)
	if last := rs[len(rs)-1]; last.Perms != platform.FullMember() {
		t.Errorf("expiry correction = %+v, want full permissions", last)
	}
	if len(h.fake.Deletions) != 1 || h.fake.Deletions[0].MessageID != d.PromptID {
		t.Errorf("prompt not deleted on expiry: %+v", h.fake.Deletions)
	}

	// A second expiry of the same key is a no-op.
	calls := h.fake.TotalCalls()
	if err := h.engine.Expire(ctx, userKey); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	if h.fake.TotalCalls() != calls {
		t.Error("expiring a released mute made platform calls")
	}
}

func TestExpire_VerifiedFirst(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPolicy(0, "@news")
	d := h.post(userID, 10)
	h.fake.SetMember(newsID, userID, platform.StatusMember)
	h.verify(userID, userID, d.PromptID)

	restricts := h.fake.CallCount(platformtest.MethodRestrict)
	h.advance(time.Hour)
	if err := h.engine.Expire(context.Background(), userKey); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	if h.fake.CallCount(platformtest.MethodRestrict) != restricts {
		t.Error("expiry after verification restored again")
	}
}

func TestSweepExpired(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPolicy(0, "@news")
	h.post(userID, 10)
	h.post(otherID, 11)

	n, err := h.engine.SweepExpired(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("SweepExpired() = %d, %v; want nothing due", n, err)
	}

	h.advance(6 * time.Minute)
	n, err = h.engine.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if n != 2 {
		t.Errorf("SweepExpired() = %d, want 2", n)
	}
	if c, _ := h.mutes.Count(context.Background()); c != 0 {
		t.Errorf("%d mutes left after sweep", c)
	}
}

// staleIndexStore reports index entries whose state has already aged out,
// the way a shared store does once the state TTL passes before a sweep.
type staleIndexStore struct {
	warnings.Store

	mu     sync.Mutex
	stale  []warnings.Key
	sticky bool // entries survive Remove
}

func (s *staleIndexStore) Due(ctx context.Context, now time.Time, limit int) ([]warnings.Key, error) {
	s.mu.Lock()
	keys := append([]warnings.Key(nil), s.stale...)
	s.mu.Unlock()

	live, err := s.Store.Due(ctx, now, 0)
	if err != nil {
		return nil, err
	}
	keys = append(keys, live...)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (s *staleIndexStore) Remove(ctx context.Context, key warnings.Key) ([]int, error) {
	s.mu.Lock()
	if !s.sticky {
		for i, k := range s.stale {
			if k == key {
				s.stale = append(s.stale[:i], s.stale[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
	return s.Store.Remove(ctx, key)
}

func (s *staleIndexStore) Count(ctx context.Context) (int, error) {
	n, err := s.Store.Count(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	return n + len(s.stale), err
}

func staleKeys(n int) []warnings.Key {
	keys := make([]warnings.Key, n)
	for i := range keys {
		keys[i] = warnings.Key{GroupID: groupID, UserID: int64(1000 + i)}
	}
	return keys
}

func TestSweepExpired_DropsStaleIndexEntries(t *testing.T) {
	stale := &staleIndexStore{stale: staleKeys(sweepBatch + 50)}
	h := newHarnessWithStore(t, Config{}, func(s warnings.Store) warnings.Store {
		stale.Store = s
		return stale
	})
	h.setPolicy(0, "@news")
	h.post(userID, 10)
	h.advance(6 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := h.engine.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if n != sweepBatch+51 {
		t.Errorf("SweepExpired() = %d, want %d", n, sweepBatch+51)
	}
	if c, _ := stale.Count(ctx); c != 0 {
		t.Errorf("Count() = %d after sweep, want 0", c)
	}
	if _, ok := h.mute(userKey); ok {
		t.Error("live mute not expired alongside the stale entries")
	}
	if got := h.fake.CallCount(platformtest.MethodRestrict); got != 2 {
		t.Errorf("restrict calls = %d, want the mute and its one correction", got)
	}
}

func TestSweepExpired_StopsWithoutProgress(t *testing.T) {
	stale := &staleIndexStore{stale: staleKeys(sweepBatch), sticky: true}
	h := newHarnessWithStore(t, Config{}, func(s warnings.Store) warnings.Store {
		stale.Store = s
		return stale
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := h.engine.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if n != sweepBatch {
		t.Errorf("SweepExpired() = %d, want %d", n, sweepBatch)
	}
}

func TestAuditTrail(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPolicy(0, "@news")
	d := h.post(userID, 10)
	h.verify(otherID, userID, d.PromptID)
	h.fake.SetMember(newsID, userID, platform.StatusMember)
	h.verify(userID, userID, d.PromptID)

	if err := h.recorder.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	got := h.sink.types()
	want := []audit.Type{audit.TypeRestricted, audit.TypeVerifyRejected, audit.TypeUnmuted}
	if len(got) != len(want) {
		t.Fatalf("audit types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestUpdateTunables(t *testing.T) {
	h := newHarness(t, Config{})
	h.setPolicy(0, "@news")

	h.engine.UpdateTunables(Config{DefaultMuteDuration: 15 * time.Minute, WarningCooldown: 2 * time.Hour})

	d := h.post(userID, 10)
	if got := d.Until.Sub(h.now()); got != 15*time.Minute {
		t.Errorf("mute duration after reload = %v, want 15m", got)
	}
	stats, _ := h.engine.Stats(context.Background())
	if stats.WarningCooldown != 2*time.Hour {
		t.Errorf("WarningCooldown = %v, want 2h", stats.WarningCooldown)
	}
}

func TestNew_MissingDeps(t *testing.T) {
	_, err := New(Config{}, Deps{})
	if err == nil {
		t.Fatal("expected error for missing dependencies")
	}
	if !strings.Contains(err.Error(), "client") || !strings.Contains(err.Error(), "cooldown") {
		t.Errorf("error should name missing deps: %v", err)
	}
}
