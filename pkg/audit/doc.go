// Package audit records enforcement decisions as an append-only event trail.
//
// # Overview
//
// The Recorder accepts events without blocking the message path and writes
// them to a Sink from a background worker. Three sinks are provided:
//
//   - LogSink: structured log lines through slog
//   - SQLiteSink: an audit_events table queried by "warden audit recent"
//   - NATSSink: JSON published to <prefix>.<type> for downstream consumers
//
// Events are best effort. A full queue drops the event and counts it; sink
// failures are logged and never reach the caller.
//
// # Usage
//
//	sink, err := audit.Open(cfg.Audit)
//	rec := audit.NewRecorder(sink, cfg.Audit.BufferSize)
//	defer rec.Close()
//
//	rec.Record(audit.Event{Type: audit.TypeRestricted, GroupID: g, UserID: u})
//
// # Thread Safety
//
// Recorder methods are safe for concurrent use. Record on a nil *Recorder
// is a no-op.
package audit
