package broadcast

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a session's position in the confirmation flow.
type State int

const (
	ChoosingTarget State = iota + 1
	ChoosingPin
	Sending
	Done
)

func (s State) String() string {
	switch s {
	case ChoosingTarget:
		return "choosing_target"
	case ChoosingPin:
		return "choosing_pin"
	case Sending:
		return "sending"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Target selects the recipients of a broadcast.
type Target string

const (
	TargetGroups Target = "groups"
	TargetUsers  Target = "users"
	TargetBoth   Target = "both"
)

// ParseTarget parses a target name.
func ParseTarget(s string) (Target, error) {
	switch t := Target(s); t {
	case TargetGroups, TargetUsers, TargetBoth:
		return t, nil
	default:
		return "", fmt.Errorf("unknown broadcast target %q", s)
	}
}

// IncludesGroups reports whether groups receive the broadcast.
func (t Target) IncludesGroups() bool {
	return t == TargetGroups || t == TargetBoth
}

// IncludesUsers reports whether registered users receive the broadcast.
func (t Target) IncludesUsers() bool {
	return t == TargetUsers || t == TargetBoth
}

var (
	ErrNoSession      = errors.New("no broadcast in progress")
	ErrSessionExpired = errors.New("broadcast selection expired")
	ErrWrongState     = errors.New("broadcast is not waiting for that choice")
	ErrSendInProgress = errors.New("a broadcast is already being sent")
)

// Source identifies the message to broadcast.
type Source struct {
	ChatID    int64
	MessageID int
}

// Session is one operator's broadcast confirmation flow.
type Session struct {
	ID         string
	OperatorID int64
	Source     Source
	Target     Target
	Pin        bool
	State      State

	// MenuMessageID is the message carrying the buttons, edited as the
	// session advances.
	MenuMessageID int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sessions keeps at most one session per operator.
type Sessions struct {
	mu      sync.Mutex
	byOp    map[int64]*Session
	timeout time.Duration
	now     func() time.Time
}

// NewSessions creates a session table. timeout <= 0 means 10 minutes.
func NewSessions(timeout time.Duration) *Sessions {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Sessions{
		byOp:    make(map[int64]*Session),
		timeout: timeout,
		now:     time.Now,
	}
}

// Begin opens a session for operatorID, replacing any unfinished selection.
// It fails with ErrSendInProgress while the operator's previous broadcast is
// still sending.
func (s *Sessions) Begin(operatorID int64, src Source) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.byOp[operatorID]; ok && cur.State == Sending {
		return Session{}, ErrSendInProgress
	}

	now := s.now()
	sess := &Session{
		ID:         uuid.NewString(),
		OperatorID: operatorID,
		Source:     src,
		State:      ChoosingTarget,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.byOp[operatorID] = sess
	return *sess, nil
}

// SetMenu records the message carrying the session's buttons.
func (s *Sessions) SetMenu(operatorID int64, sessionID string, messageID int) error {
	return s.update(operatorID, sessionID, func(sess *Session) error {
		sess.MenuMessageID = messageID
		return nil
	})
}

// ChooseTarget records the target. A users-only broadcast has nothing to pin
// and moves straight to Sending.
func (s *Sessions) ChooseTarget(operatorID int64, sessionID string, target Target) (Session, error) {
	var out Session
	err := s.update(operatorID, sessionID, func(sess *Session) error {
		if sess.State != ChoosingTarget {
			return ErrWrongState
		}
		sess.Target = target
		if target.IncludesGroups() {
			sess.State = ChoosingPin
		} else {
			sess.State = Sending
		}
		out = *sess
		return nil
	})
	return out, err
}

// ChoosePin records the pin choice and moves the session to Sending.
func (s *Sessions) ChoosePin(operatorID int64, sessionID string, pin bool) (Session, error) {
	var out Session
	err := s.update(operatorID, sessionID, func(sess *Session) error {
		if sess.State != ChoosingPin {
			return ErrWrongState
		}
		sess.Pin = pin
		sess.State = Sending
		out = *sess
		return nil
	})
	return out, err
}

// Cancel drops an unfinished selection.
func (s *Sessions) Cancel(operatorID int64, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(operatorID, sessionID)
	if err != nil {
		return err
	}
	if sess.State == Sending {
		return ErrSendInProgress
	}
	delete(s.byOp, operatorID)
	return nil
}

// Finish marks a sending session Done and forgets it.
func (s *Sessions) Finish(operatorID int64, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.byOp[operatorID]; ok && sess.ID == sessionID {
		sess.State = Done
		delete(s.byOp, operatorID)
	}
}

// Get returns the operator's current session.
func (s *Sessions) Get(operatorID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byOp[operatorID]
	if !ok || s.expired(sess) {
		return Session{}, false
	}
	return *sess, true
}

// Prune drops expired selections and returns how many were dropped.
func (s *Sessions) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for op, sess := range s.byOp {
		if s.expired(sess) {
			delete(s.byOp, op)
			n++
		}
	}
	return n
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byOp)
}

func (s *Sessions) update(operatorID int64, sessionID string, fn func(*Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(operatorID, sessionID)
	if err != nil {
		return err
	}
	if err := fn(sess); err != nil {
		return err
	}
	sess.UpdatedAt = s.now()
	return nil
}

// lookup finds a live session. Caller holds mu.
func (s *Sessions) lookup(operatorID int64, sessionID string) (*Session, error) {
	sess, ok := s.byOp[operatorID]
	if !ok || sess.ID != sessionID {
		return nil, ErrNoSession
	}
	if s.expired(sess) {
		delete(s.byOp, operatorID)
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// expired reports whether a selection timed out. Sending sessions never
// expire.
func (s *Sessions) expired(sess *Session) bool {
	return sess.State != Sending && s.now().Sub(sess.UpdatedAt) > s.timeout
}
