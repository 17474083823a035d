package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"joinguard-hq/warden/pkg/channel"
)

// ErrNotFound is returned by GetPolicy when the group has no policy.
var ErrNotFound = errors.New("policy not found")

// StorageError wraps a backend failure.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s storage: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func newStorageError(backend, op string, err error) error {
	return &StorageError{Backend: backend, Op: op, Err: err}
}

// PolicyStore maps groups to their required channels.
type PolicyStore interface {
	// GetPolicy returns the group's policy or ErrNotFound.
	GetPolicy(ctx context.Context, groupID int64) (*GroupPolicy, error)

	// SetPolicy creates or replaces the group's policy.
	SetPolicy(ctx context.Context, policy *GroupPolicy) error

	// DeletePolicy removes the group's policy and reports whether one existed.
	DeletePolicy(ctx context.Context, groupID int64) (bool, error)

	// ListGroups returns every group with a policy, in ascending id order.
	ListGroups(ctx context.Context) ([]int64, error)
}

// UserRegistry records users who opted in to direct messages.
type UserRegistry interface {
	// RegisterUser records userID. Registering twice is a no-op.
	RegisterUser(ctx context.Context, userID int64) error

	// ListUsers returns every registered user, in ascending id order.
	ListUsers(ctx context.Context) ([]int64, error)
}

// Backend is a complete storage implementation.
type Backend interface {
	PolicyStore
	UserRegistry

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the backend.
	Close() error
}

// GroupPolicy is one group's join requirement.
type GroupPolicy struct {
	// GroupID is the platform id of the enforced group.
	GroupID int64

	// Channels is the ordered set of channels members must join.
	Channels []channel.Ref

	// ChannelIDs caches the platform id each handle resolved to, keyed by
	// channel.Ref.Key. Id refs need no entry.
	ChannelIDs map[string]int64

	// MuteDuration overrides the default restriction length. Zero uses the default.
	MuteDuration time.Duration

	// UpdatedBy is the admin who last wrote the policy.
	UpdatedBy int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the policy is storable.
func (p *GroupPolicy) Validate() error {
	if p == nil {
		return errors.New("policy cannot be nil")
	}
	if p.GroupID == 0 {
		return errors.New("group id cannot be zero")
	}
	if len(p.Channels) == 0 {
		return errors.New("policy must name at least one channel")
	}
	for i, ref := range p.Channels {
		if !ref.IsValid() {
			return fmt.Errorf("channel %d is invalid", i)
		}
	}
	if p.MuteDuration < 0 {
		return errors.New("mute duration cannot be negative")
	}
	return nil
}

// ResolvedID returns the platform id for ref, from the ref itself or from the
// cached resolution.
func (p *GroupPolicy) ResolvedID(ref channel.Ref) (int64, bool) {
	if id, ok := ref.ID(); ok {
		return id, true
	}
	id, ok := p.ChannelIDs[ref.Key()]
	return id, ok && id != 0
}

// Clone returns a deep copy.
func (p *GroupPolicy) Clone() *GroupPolicy {
	if p == nil {
		return nil
	}
	c := *p
	c.Channels = slices.Clone(p.Channels)
	c.ChannelIDs = maps.Clone(p.ChannelIDs)
	return &c
}

// policyRecord is the serialized shape shared by the SQL and document backends.
type policyRecord struct {
	Channels   []string
	ChannelIDs map[string]int64
}

func encodePolicy(p *GroupPolicy) policyRecord {
	return policyRecord{
		Channels:   channel.Strings(p.Channels),
		ChannelIDs: p.ChannelIDs,
	}
}

func decodeChannels(items []string) ([]channel.Ref, error) {
	refs := make([]channel.Ref, 0, len(items))
	for _, item := range items {
		ref, err := channel.Parse(item)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func touch(p *GroupPolicy, now time.Time) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
}
