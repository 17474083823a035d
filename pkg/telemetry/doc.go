// Package telemetry groups warden's observability packages.
//
// # Components
//
//   - logging: structured slog logging with secret redaction
//   - metrics: Prometheus metrics for enforcement, broadcast and dispatch
//   - health: liveness, readiness and version endpoints
package telemetry
