// Package secrets resolves ${secret:name} references in configuration values.
//
// # Overview
//
// Credentials such as the bot token or the Redis password can be written in
// the config file as references instead of literals:
//
//	telegram:
//	  token: ${secret:bot-token}
//
// A Resolver asks its providers in order. Two providers exist:
//
//   - FileProvider reads one file per secret from a directory, the layout
//     used by Docker and Kubernetes secret mounts. "bot-token" is read from
//     <dir>/bot-token with surrounding whitespace trimmed. Files writable by
//     group or others are refused.
//   - EnvProvider reads an environment variable: with prefix
//     "WARDEN_SECRET_", "bot-token" is read from WARDEN_SECRET_BOT_TOKEN.
//
// Values without a reference pass through unchanged.
//
// # Thread Safety
//
// Providers and Resolver hold no mutable state and are safe for concurrent use.
package secrets
