// Package server exposes the operational HTTP endpoint.
//
// The endpoint serves liveness, readiness, build information and Prometheus
// metrics. Bot traffic never passes through it: updates arrive over long
// polling in package bot.
//
// # Routes
//
//   - GET /health: liveness, always 200 while the process runs
//   - GET /ready: readiness, 503 when the store or the Bot API is unreachable
//   - GET /version: build information
//   - GET /metrics: Prometheus exposition (path configurable)
//
// Every response carries an X-Request-ID header. A client-supplied id is
// echoed back; otherwise a UUID is generated.
//
// # Usage
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterCheck("store", health.PingCheck(backend))
//
//	srv := server.New(cfg.Server, server.Options{
//	    Checker:     checker,
//	    Metrics:     collector,
//	    MetricsPath: cfg.Telemetry.Metrics.Path,
//	})
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//
// Start blocks until ctx is cancelled and then shuts down gracefully,
// bounded by ServerConfig.ShutdownTimeout.
//
// # Thread Safety
//
// Start, Shutdown, IsRunning and Addr are safe for concurrent use. Shutdown
// is idempotent.
package server
