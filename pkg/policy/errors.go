package policy

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAdmin is returned when the actor does not administer the group.
	ErrNotAdmin = errors.New("only group administrators can change the join requirement")

	// ErrNoChannels is returned when a request names no channel.
	ErrNoChannels = errors.New("name at least one channel")
)

// ValidationError rejects one channel of a request.
type ValidationError struct {
	// Channel is the reference as the user typed it.
	Channel string

	// Message describes the problem in user-facing terms.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Channel, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// IsUserError reports whether err should be shown to the requesting user
// rather than logged as a failure.
func IsUserError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrNotAdmin) || errors.Is(err, ErrNoChannels)
}
