// Package store persists group policies and the registry of users who
// started a private chat with the bot.
//
// # Overview
//
// A GroupPolicy maps one group to the ordered list of channels its members
// must join, plus the platform ids those channels resolved to when the policy
// was written. The Backend interface has three implementations:
//
//   - Memory: in-process maps, no persistence (tests, single-shot runs)
//   - SQLite: file-based persistence, the default
//   - Mongo: the fsub_settings collection layout used by earlier deployments
//
// CachedBackend wraps any Backend with a TTL read-through cache, since the
// policy is read on every group message but written only by admin commands.
//
// # Usage
//
//	backend, err := store.NewSQLiteBackend("data/warden.db")
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
//
//	policies := store.NewCachedBackend(backend, store.CacheConfig{TTL: time.Minute})
//	err = policies.SetPolicy(ctx, &store.GroupPolicy{
//	    GroupID:  -1001,
//	    Channels: []channel.Ref{channel.Handle("news")},
//	})
//
//	policy, err := policies.GetPolicy(ctx, -1001)
//	if errors.Is(err, store.ErrNotFound) {
//	    // group is not enforced
//	}
//
// # Thread Safety
//
// All backends are safe for concurrent use. Every write is a single-record
// upsert or delete; no operation spans more than one group.
package store
