package membership

import (
	"context"
	"testing"

	"joinguard-hq/warden/pkg/channel"
	"joinguard-hq/warden/pkg/directory"
	"joinguard-hq/warden/pkg/platform"
	"joinguard-hq/warden/pkg/platform/platformtest"
	"joinguard-hq/warden/pkg/store"
)

const (
	newsID  = int64(-1001)
	techID  = int64(-1002)
	groupID = int64(-500)
	userID  = int64(42)
)

func setup() (*platformtest.Fake, *Prober) {
	fake := platformtest.New()
	fake.AddChat(platform.Chat{ID: newsID, Type: platform.ChatChannel, Username: "news"})
	fake.AddChat(platform.Chat{ID: techID, Type: platform.ChatChannel, Username: "tech_news"})
	fake.AddChat(platform.Chat{ID: groupID, Type: platform.ChatSupergroup})
	return fake, NewProber(fake, directory.New(fake, directory.Config{}))
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name       string
		prepare    func(f *platformtest.Fake)
		want       Outcome
		wantReason Reason
	}{
		{
			name:    "member",
			prepare: func(f *platformtest.Fake) { f.SetMember(newsID, userID, platform.StatusMember) },
			want:    Member,
		},
		{
			name:    "channel admin",
			prepare: func(f *platformtest.Fake) { f.SetMember(newsID, userID, platform.StatusAdministrator) },
			want:    Member,
		},
		{
			name:    "restricted but present",
			prepare: func(f *platformtest.Fake) { f.SetMember(newsID, userID, platform.StatusRestricted) },
			want:    Member,
		},
		{
			name:    "left",
			prepare: func(f *platformtest.Fake) { f.SetMember(newsID, userID, platform.StatusLeft) },
			want:    NotMember,
		},
		{
			name:    "kicked",
			prepare: func(f *platformtest.Fake) { f.SetMember(newsID, userID, platform.StatusKicked) },
			want:    NotMember,
		},
		{
			name:    "never joined",
			prepare: func(f *platformtest.Fake) {},
			want:    NotMember,
		},
		{
			name: "user not found",
			prepare: func(f *platformtest.Fake) {
				f.FailOn(platformtest.MethodGetChatMember, newsID, &platform.APIError{Kind: platform.ErrUserNotFound})
			},
			want: NotMember,
		},
		{
			name: "bot not admin",
			prepare: func(f *platformtest.Fake) {
				f.FailOn(platformtest.MethodGetChatMember, newsID, platformtest.NotEnoughRights(platformtest.MethodGetChatMember))
			},
			want:       Indeterminate,
			wantReason: ReasonBotNotAdmin,
		},
		{
			name: "transient failure",
			prepare: func(f *platformtest.Fake) {
				f.FailOn(platformtest.MethodGetChatMember, newsID, platformtest.Transient(platformtest.MethodGetChatMember))
			},
			want:       Indeterminate,
			wantReason: ReasonTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, p := setup()
			tt.prepare(fake)

			got := p.Probe(context.Background(), channel.Handle("news"), newsID, userID)
			if got.Outcome != tt.want {
				t.Fatalf("Probe() = %v, want %v", got, tt.want)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestProbe_UnresolvableChannel(t *testing.T) {
	_, p := setup()

	got := p.Probe(context.Background(), channel.Handle("vanished"), 0, userID)
	if got.Outcome != Indeterminate || got.Reason != ReasonLookupFailed {
		t.Errorf("Probe() = %v, want indeterminate(channel_lookup_failed)", got)
	}
}

func TestProbe_ResolvesHandle(t *testing.T) {
	fake, p := setup()
	fake.SetMember(newsID, userID, platform.StatusMember)

	got := p.Probe(context.Background(), channel.Handle("news"), 0, userID)
	if got.Outcome != Member {
		t.Errorf("Probe() = %v, want member", got)
	}
}

func TestIsGroupAdmin(t *testing.T) {
	fake, p := setup()
	ctx := context.Background()

	fake.SetMember(groupID, 1, platform.StatusCreator)
	fake.SetMember(groupID, 2, platform.StatusAdministrator)
	fake.SetMember(groupID, 3, platform.StatusMember)

	for uid, want := range map[int64]bool{1: true, 2: true, 3: false} {
		got, err := p.IsGroupAdmin(ctx, groupID, uid)
		if err != nil {
			t.Fatalf("IsGroupAdmin(%d) failed: %v", uid, err)
		}
		if got != want {
			t.Errorf("IsGroupAdmin(%d) = %v, want %v", uid, got, want)
		}
	}
}

func TestEvaluate(t *testing.T) {
	policy := &store.GroupPolicy{
		GroupID:    groupID,
		Channels:   []channel.Ref{channel.Handle("news"), channel.Handle("tech_news")},
		ChannelIDs: map[string]int64{"@news": newsID, "@tech_news": techID},
	}

	t.Run("first missing short-circuits", func(t *testing.T) {
		fake, p := setup()
		ev := p.Evaluate(context.Background(), policy, userID, FirstMissing)

		if len(ev.Checks) != 1 {
			t.Fatalf("expected 1 check, got %d", len(ev.Checks))
		}
		if len(ev.Missing()) != 1 || ev.Missing()[0].ChatID != newsID {
			t.Errorf("Missing() = %+v", ev.Missing())
		}
		if n := fake.CallCount(platformtest.MethodGetChatMember); n != 1 {
			t.Errorf("expected 1 probe, got %d", n)
		}
	})

	t.Run("all channels", func(t *testing.T) {
		fake, p := setup()
		fake.SetMember(techID, userID, platform.StatusMember)
		ev := p.Evaluate(context.Background(), policy, userID, AllChannels)

		if len(ev.Checks) != 2 {
			t.Fatalf("expected 2 checks, got %d", len(ev.Checks))
		}
		if ev.Satisfied() {
			t.Error("should not be satisfied")
		}
		if len(ev.Missing()) != 1 {
			t.Errorf("Missing() = %+v", ev.Missing())
		}
	})

	t.Run("satisfied", func(t *testing.T) {
		fake, p := setup()
		fake.SetMember(newsID, userID, platform.StatusMember)
		fake.SetMember(techID, userID, platform.StatusMember)
		ev := p.Evaluate(context.Background(), policy, userID, AllChannels)
		if !ev.Satisfied() {
			t.Errorf("expected satisfied, got %+v", ev.Checks)
		}
	})

	t.Run("indeterminate is not missing", func(t *testing.T) {
		fake, p := setup()
		fake.FailOn(platformtest.MethodGetChatMember, newsID, platformtest.NotEnoughRights(platformtest.MethodGetChatMember))
		fake.SetMember(techID, userID, platform.StatusMember)
		ev := p.Evaluate(context.Background(), policy, userID, FirstMissing)

		if len(ev.Missing()) != 0 {
			t.Errorf("indeterminate counted as missing: %+v", ev.Missing())
		}
		if len(ev.Unknown()) != 1 {
			t.Errorf("Unknown() = %+v", ev.Unknown())
		}
		if ev.Satisfied() {
			t.Error("indeterminate should not satisfy")
		}
	})
}
