// Package platform defines the chat-platform boundary the enforcement engine
// consumes.
//
// # Overview
//
// The engine never talks to a chat API directly. Everything it needs (member
// lookups, restrictions, message send/copy/delete, invite links) goes through
// the Client interface, and inbound events arrive as platform-neutral Update
// values. The telegram subpackage implements Client against the Telegram Bot
// API; platformtest provides an in-memory fake for tests.
//
// # Errors
//
// Implementations classify API failures into the sentinel errors declared in
// errors.go (ErrNotEnoughRights, ErrChatNotFound, ...). Callers use errors.Is to
// tell the bot's own misconfiguration apart from a definite answer.
//
// # Thread Safety
//
// Client implementations must be safe for concurrent use.
package platform
