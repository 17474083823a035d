// Package metrics provides Prometheus metrics collection for warden.
//
// # Overview
//
// The metrics package exposes counters, gauges and histograms describing what
// the enforcement engine does to group members, how membership probes resolve,
// how broadcasts fare and how the update dispatcher keeps up.
//
// # Metrics Categories
//
//   - Enforcement: mutes, unmutes by path and outcome, verification rejections,
//     operational warnings emitted or suppressed, prompt deletions, active mutes
//   - Membership: probe outcomes by reason
//   - Broadcast: jobs, per-recipient deliveries, job duration
//   - Dispatch: updates handled by kind, handling duration, recovered panics
//   - Cache: policy and directory cache hits, misses and size
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
//	collector.RecordMute("applied")
//	http.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// All recording methods are safe to call on a nil *Collector, which lets
// components take an optional collector without guarding every call.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
package metrics
