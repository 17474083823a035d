package broadcast

import (
	"errors"
	"testing"
	"time"
)

func newTestSessions(timeout time.Duration) (*Sessions, *time.Time) {
	s := NewSessions(timeout)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestSessions_GroupsFlow(t *testing.T) {
	s, _ := newTestSessions(time.Minute)

	sess, err := s.Begin(1, Source{ChatID: 1, MessageID: 5})
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if sess.State != ChoosingTarget || sess.ID == "" {
		t.Fatalf("new session = %+v", sess)
	}

	sess, err = s.ChooseTarget(1, sess.ID, TargetGroups)
	if err != nil {
		t.Fatalf("ChooseTarget failed: %v", err)
	}
	if sess.State != ChoosingPin {
		t.Errorf("State = %v, want %v", sess.State, ChoosingPin)
	}

	if _, err := s.ChooseTarget(1, sess.ID, TargetUsers); !errors.Is(err, ErrWrongState) {
		t.Errorf("second ChooseTarget error = %v, want ErrWrongState", err)
	}

	sess, err = s.ChoosePin(1, sess.ID, true)
	if err != nil {
		t.Fatalf("ChoosePin failed: %v", err)
	}
	if sess.State != Sending || !sess.Pin {
		t.Errorf("session = %+v, want sending with pin", sess)
	}

	s.Finish(1, sess.ID)
	if _, ok := s.Get(1); ok {
		t.Error("finished session still present")
	}
}

func TestSessions_UsersSkipPinChoice(t *testing.T) {
	s, _ := newTestSessions(time.Minute)
	sess, _ := s.Begin(1, Source{})

	sess, err := s.ChooseTarget(1, sess.ID, TargetUsers)
	if err != nil {
		t.Fatalf("ChooseTarget failed: %v", err)
	}
	if sess.State != Sending {
		t.Errorf("State = %v, want %v", sess.State, Sending)
	}
}

func TestSessions_NewSelectionReplacesUnfinished(t *testing.T) {
	s, _ := newTestSessions(time.Minute)
	first, _ := s.Begin(1, Source{MessageID: 1})
	second, err := s.Begin(1, Source{MessageID: 2})
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("sessions share an id")
	}
	if _, err := s.ChooseTarget(1, first.ID, TargetGroups); !errors.Is(err, ErrNoSession) {
		t.Errorf("stale session accepted a choice: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestSessions_SendingIsNeverReplaced(t *testing.T) {
	s, now := newTestSessions(time.Minute)
	sess, _ := s.Begin(1, Source{})
	sess, _ = s.ChooseTarget(1, sess.ID, TargetUsers)

	if _, err := s.Begin(1, Source{}); !errors.Is(err, ErrSendInProgress) {
		t.Errorf("Begin during send error = %v, want ErrSendInProgress", err)
	}
	if err := s.Cancel(1, sess.ID); !errors.Is(err, ErrSendInProgress) {
		t.Errorf("Cancel during send error = %v, want ErrSendInProgress", err)
	}

	*now = now.Add(time.Hour)
	if _, ok := s.Get(1); !ok {
		t.Error("sending session expired")
	}

	// Other operators are unaffected.
	if _, err := s.Begin(2, Source{}); err != nil {
		t.Errorf("Begin for another operator failed: %v", err)
	}
}

func TestSessions_Expiry(t *testing.T) {
	s, now := newTestSessions(time.Minute)
	sess, _ := s.Begin(1, Source{})

	*now = now.Add(2 * time.Minute)
	if _, err := s.ChooseTarget(1, sess.ID, TargetGroups); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("ChooseTarget after timeout error = %v, want ErrSessionExpired", err)
	}

	s.Begin(2, Source{})
	*now = now.Add(2 * time.Minute)
	if n := s.Prune(); n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
}

func TestSessions_Cancel(t *testing.T) {
	s, _ := newTestSessions(time.Minute)
	sess, _ := s.Begin(1, Source{})

	if err := s.Cancel(1, "other"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Cancel with wrong id error = %v", err)
	}
	if err := s.Cancel(1, sess.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if _, ok := s.Get(1); ok {
		t.Error("cancelled session still present")
	}
}

func TestParseTarget(t *testing.T) {
	for _, name := range []string{"groups", "users", "both"} {
		if _, err := ParseTarget(name); err != nil {
			t.Errorf("ParseTarget(%q) failed: %v", name, err)
		}
	}
	if _, err := ParseTarget("everyone"); err == nil {
		t.Error("ParseTarget(everyone) should fail")
	}
}

func TestParseCallback(t *testing.T) {
	text, kb := TargetMenu("abc")
	if text == "" || len(kb) != 2 {
		t.Fatalf("TargetMenu() = %q, %+v", text, kb)
	}
	id, action, ok := ParseCallback(kb[0][0].Data)
	if !ok || id != "abc" || action != ActionGroups {
		t.Errorf("ParseCallback(%q) = %q, %q, %v", kb[0][0].Data, id, action, ok)
	}

	for _, bad := range []string{"", "bc:", "bc:abc", "bc::pin", "verify:42"} {
		if _, _, ok := ParseCallback(bad); ok {
			t.Errorf("ParseCallback(%q) accepted", bad)
		}
	}
}
