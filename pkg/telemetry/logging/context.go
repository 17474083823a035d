package logging

import (
	"context"
)

type contextKey string

const (
	// GroupIDKey is the context key for the group being handled.
	GroupIDKey contextKey = "group_id"

	// UserIDKey is the context key for the acting user.
	UserIDKey contextKey = "user_id"

	// UpdateIDKey is the context key for the inbound update.
	UpdateIDKey contextKey = "update_id"

	// SessionKey is the context key for broadcast sessions and jobs.
	SessionKey contextKey = "session"
)

// WithGroupID adds a group id to the context.
func WithGroupID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, GroupIDKey, id)
}

// GetGroupID retrieves the group id from the context.
func GetGroupID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(GroupIDKey).(int64)
	return id, ok
}

// WithUserID adds a user id to the context.
func WithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}

// GetUserID retrieves the user id from the context.
func GetUserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserIDKey).(int64)
	return id, ok
}

// WithUpdateID adds an update id to the context.
func WithUpdateID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, UpdateIDKey, id)
}

// GetUpdateID retrieves the update id from the context.
func GetUpdateID(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(UpdateIDKey).(int)
	return id, ok
}

// WithSession adds a session identifier to the context.
func WithSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}

// GetSession retrieves the session identifier from the context.
func GetSession(ctx context.Context) string {
	if session, ok := ctx.Value(SessionKey).(string); ok {
		return session
	}
	return ""
}

// extractContextFields returns the context's fields as key-value pairs.
func extractContextFields(ctx context.Context) []any {
	var fields []any

	if id, ok := GetUpdateID(ctx); ok {
		fields = append(fields, "update_id", id)
	}
	if id, ok := GetGroupID(ctx); ok {
		fields = append(fields, "group_id", id)
	}
	if id, ok := GetUserID(ctx); ok {
		fields = append(fields, "user_id", id)
	}
	if session := GetSession(ctx); session != "" {
		fields = append(fields, "session", session)
	}

	return fields
}

// Attrs returns the context's fields for use with a plain *slog.Logger.
func Attrs(ctx context.Context) []any {
	return extractContextFields(ctx)
}
