// Package enforcement decides, for every message posted in a group with a
// join requirement, whether the author must be muted until they join the
// required channels, and lifts those mutes again.
//
// # Overview
//
// Engine.HandleMessage runs the message path:
//
//  1. Ignore anything that is not a plain group message from a human.
//  2. Load the group's policy. No policy means no work at all.
//  3. Exempt group owners and administrators.
//  4. Probe the required channels in order, stopping at the first one the
//     author has not joined.
//  5. Delete the author's previous prompts, restrict them with a deny-all
//     permission set for the group's mute duration, and post a new prompt
//     with a join button per channel and a verify button.
//
// An Indeterminate probe never mutes anyone. The engine skips the message and
// raises an operational warning in the group, rate limited per warning class.
//
// A mute ends in one of two ways. HandleVerify re-probes every required
// channel when the muted user presses the verify button and restores their
// permissions once all of them are joined. Expire runs when the mute lapses,
// from an in-process timer or from the Sweeper, and restores permissions
// explicitly as a correction step. Both paths delete outstanding prompts and
// clear the mute state.
//
// Restoring permissions tries an ordered list of strategies: full
// permissions, full permissions with a short expiry, then send-only. The first
// that succeeds decides whether the user sees a full or degraded restore.
//
// # Thread Safety
//
// Engine is safe for concurrent use. Operations on the same (group, user)
// pair are serialized with a keyed lock; different pairs run concurrently.
package enforcement
