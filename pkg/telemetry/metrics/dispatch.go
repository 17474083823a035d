package metrics

import (
	"joinguard-hq/warden/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics tracks the update worker pool.
//
// Metrics:
//   - warden_dispatch_updates_total{kind,status}
//   - warden_dispatch_update_duration_seconds{kind}
//   - warden_dispatch_panics_total
//   - warden_dispatch_queue_depth
type DispatchMetrics struct {
	updatesTotal   *prometheus.CounterVec
	updateDuration *prometheus.HistogramVec
	panicsTotal    prometheus.Counter
	queueDepth     prometheus.Gauge
}

// NewDispatchMetrics creates and registers dispatch metrics.
func NewDispatchMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *DispatchMetrics {
	dm := &DispatchMetrics{
		updatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "dispatch",
				Name:      "updates_total",
				Help:      "Updates handled by kind and status",
			},
			[]string{"kind", "status"},
		),

		// Handling is dominated by Bot API round trips (50ms - 5s).
		updateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "dispatch",
				Name:      "update_duration_seconds",
				Help:      "Time spent handling one update",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"kind"},
		),

		panicsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "dispatch",
				Name:      "panics_total",
				Help:      "Handler panics recovered by the dispatcher",
			},
		),

		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "dispatch",
				Name:      "queue_depth",
				Help:      "Updates waiting in worker lanes",
			},
		),
	}

	registry.MustRegister(dm.updatesTotal, dm.updateDuration, dm.panicsTotal, dm.queueDepth)

	return dm
}
