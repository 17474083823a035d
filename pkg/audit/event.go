package audit

import (
	"context"
	"time"
)

// Type classifies an audit event.
type Type string

// Event types.
const (
	TypeRestricted     Type = "restricted"
	TypeRestrictFailed Type = "restrict_failed"
	TypeUnmuted        Type = "unmuted"
	TypeUnmuteFailed   Type = "unmute_failed"
	TypeExpired        Type = "expired"
	TypeVerifyRejected Type = "verify_rejected"
	TypePolicySet      Type = "policy_set"
	TypePolicyDeleted  Type = "policy_deleted"
	TypeBroadcastDone  Type = "broadcast_done"
)

// Event is one audit record.
type Event struct {
	ID      string            `json:"id"`
	Type    Type              `json:"type"`
	GroupID int64             `json:"group_id,omitempty"`
	UserID  int64             `json:"user_id,omitempty"`
	ActorID int64             `json:"actor_id,omitempty"`
	Detail  map[string]string `json:"detail,omitempty"`
	Time    time.Time         `json:"time"`
}

// Sink persists or forwards events.
type Sink interface {
	Write(ctx context.Context, e Event) error
	Close() error
}

// Querier is implemented by sinks that can read events back.
type Querier interface {
	Recent(ctx context.Context, q Query) ([]Event, error)
}

// Pruner is implemented by sinks that keep events locally.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// Query filters Recent. Zero fields match everything.
type Query struct {
	GroupID int64
	UserID  int64
	Type    Type
	Limit   int
}
