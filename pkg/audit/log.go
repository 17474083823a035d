package audit

import (
	"context"
	"log/slog"
)

// LogSink writes events as structured log lines.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink logging through slog.Default.
func NewLogSink() *LogSink {
	return &LogSink{logger: slog.Default().With("component", "audit")}
}

// Write logs e at info level.
func (s *LogSink) Write(ctx context.Context, e Event) error {
	args := []any{
		"id", e.ID,
		"type", string(e.Type),
		"group_id", e.GroupID,
		"user_id", e.UserID,
	}
	if e.ActorID != 0 {
		args = append(args, "actor_id", e.ActorID)
	}
	for k, v := range e.Detail {
		args = append(args, k, v)
	}
	s.logger.InfoContext(ctx, "audit event", args...)
	return nil
}

// Close is a no-op.
func (s *LogSink) Close() error { return nil }

// discardSink drops every event.
type discardSink struct{}

func (discardSink) Write(context.Context, Event) error { return nil }
func (discardSink) Close() error                       { return nil }
