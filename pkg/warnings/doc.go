// Package warnings tracks per-user mute state and the prompt messages posted
// for it, so stale prompts can be removed.
//
// # Overview
//
// A mute is keyed by (group, user) and holds the time the restriction lapses
// plus the ids of prompt messages still visible in the group. The Store
// interface keeps that state; MemoryStore serves a single process and
// RedisStore lets several instances share it. RedisStore also keeps a
// sorted-set index of expiry times so lapsed mutes can be found without
// scanning.
//
// Manager pairs the store with the platform: Purge takes every recorded id
// out of the store and deletes the messages one by one. A failed deletion
// never stops the others and never puts the id back, so the store cannot
// keep pointing at a message forever.
//
// # Thread Safety
//
// Stores are safe for concurrent use. Callers serialize operations on the
// same key themselves when they need read-modify-write sequences.
package warnings
