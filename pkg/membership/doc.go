// Package membership answers whether a user belongs to a required channel.
//
// # Overview
//
// Probe returns one of three outcomes:
//
//   - Member: the user is in the channel
//   - NotMember: the user definitely is not (left, kicked, never joined)
//   - Indeterminate: the answer could not be obtained, because the bot is not
//     an administrator of the channel, the channel lookup failed, or the
//     platform errored
//
// Indeterminate is never a reason to restrict anyone. Callers skip
// enforcement and raise an operational warning instead.
//
// IsGroupAdmin checks the author's role in the group itself. Group owners and
// administrators are exempt and the check runs before any channel probe.
//
// Evaluate probes every required channel of a policy, either stopping at the
// first NotMember (the per-message path) or probing all of them (the
// verification path).
package membership
