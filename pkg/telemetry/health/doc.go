// Package health provides liveness, readiness and version endpoints.
//
// # Overview
//
// A Checker holds named readiness checks. Liveness always succeeds while the
// process runs; readiness runs every check concurrently with a per-check
// timeout and reports "degraded" when any of them fails. The enforcement
// engine never consults these endpoints; they exist for orchestrators.
//
// # Usage
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("store", health.PingCheck(backend))
//	checker.RegisterCheck("telegram", health.BotCheck(client))
//
//	mux := http.NewServeMux()
//	health.Register(mux, checker, health.VersionInfo{Version: version.Version})
//
// # Endpoints
//
//   - /health: liveness, always 200
//   - /ready: readiness, 200 when every check passes, 503 otherwise
//   - /version: build information
package health
