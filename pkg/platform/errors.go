package platform

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel classifications for platform failures.
var (
	// ErrNotEnoughRights means the bot lacks the admin right the call needs.
	ErrNotEnoughRights = errors.New("bot lacks required rights")

	// ErrChatNotFound means the chat does not exist or the bot cannot see it.
	ErrChatNotFound = errors.New("chat not found")

	// ErrUserNotFound means the user is unknown to the chat.
	ErrUserNotFound = errors.New("user not found")

	// ErrMessageNotFound means the message was already deleted or is too old
	// to delete.
	ErrMessageNotFound = errors.New("message not found")

	// ErrForbidden means the bot was blocked or removed from the chat.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited means the platform asked the bot to slow down.
	ErrRateLimited = errors.New("rate limited")
)

// APIError is a failed platform call.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration

	// Kind is one of the sentinel errors above, or nil if unclassified.
	Kind error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Method, e.Code, e.Description)
}

// Unwrap returns the classification so errors.Is works against the sentinels.
func (e *APIError) Unwrap() error {
	return e.Kind
}

// IsPermanent reports whether retrying the same call cannot succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotEnoughRights) ||
		errors.Is(err, ErrChatNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrForbidden)
}
