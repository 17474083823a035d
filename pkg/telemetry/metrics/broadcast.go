package metrics

import (
	"joinguard-hq/warden/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// BroadcastMetrics tracks operator broadcasts.
//
// Metrics:
//   - warden_broadcast_jobs_total{target}
//   - warden_broadcast_deliveries_total{kind,result}
//   - warden_broadcast_job_duration_seconds
type BroadcastMetrics struct {
	jobsTotal       *prometheus.CounterVec
	deliveriesTotal *prometheus.CounterVec
	jobDuration     prometheus.Histogram
}

// NewBroadcastMetrics creates and registers broadcast metrics.
func NewBroadcastMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *BroadcastMetrics {
	bm := &BroadcastMetrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "broadcast",
				Name:      "jobs_total",
				Help:      "Completed broadcast jobs by target set",
			},
			[]string{"target"},
		),

		deliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "broadcast",
				Name:      "deliveries_total",
				Help:      "Broadcast copies by recipient kind and result",
			},
			[]string{"kind", "result"},
		),

		jobDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "broadcast",
				Name:      "job_duration_seconds",
				Help:      "Wall time of broadcast jobs",
				Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
			},
		),
	}

	registry.MustRegister(bm.jobsTotal, bm.deliveriesTotal, bm.jobDuration)

	return bm
}
