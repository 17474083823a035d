package metrics

import (
	"joinguard-hq/warden/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// EnforcementMetrics tracks restriction and membership activity.
//
// Metrics:
//   - warden_enforcement_mutes_total{outcome}
//   - warden_enforcement_unmutes_total{path,outcome}
//   - warden_enforcement_verify_rejected_total{reason}
//   - warden_membership_probes_total{outcome,reason}
//   - warden_enforcement_warnings_emitted_total{class}
//   - warden_enforcement_warnings_suppressed_total{class}
//   - warden_enforcement_prompts_deleted_total{result}
//   - warden_enforcement_active_mutes
type EnforcementMetrics struct {
	mutesTotal              *prometheus.CounterVec
	unmutesTotal            *prometheus.CounterVec
	verifyRejectedTotal     *prometheus.CounterVec
	probesTotal             *prometheus.CounterVec
	warningsEmittedTotal    *prometheus.CounterVec
	warningsSuppressedTotal *prometheus.CounterVec
	promptsDeletedTotal     *prometheus.CounterVec
	activeMutes             prometheus.Gauge
}

// NewEnforcementMetrics creates and registers enforcement metrics.
func NewEnforcementMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *EnforcementMetrics {
	em := &EnforcementMetrics{
		mutesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "enforcement",
				Name:      "mutes_total",
				Help:      "Restrictions applied to non-members",
			},
			[]string{"outcome"},
		),

		unmutesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "enforcement",
				Name:      "unmutes_total",
				Help:      "Restrictions lifted by verification or expiry",
			},
			[]string{"path", "outcome"},
		),

		verifyRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "enforcement",
				Name:      "verify_rejected_total",
				Help:      "Verification presses that did not lift a restriction",
			},
			[]string{"reason"},
		),

		probesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "membership",
				Name:      "probes_total",
				Help:      "Channel membership probes by outcome",
			},
			[]string{"outcome", "reason"},
		),

		warningsEmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "enforcement",
				Name:      "warnings_emitted_total",
				Help:      "Operational warnings posted to groups",
			},
			[]string{"class"},
		),

		warningsSuppressedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "enforcement",
				Name:      "warnings_suppressed_total",
				Help:      "Operational warnings withheld by the cool-down",
			},
			[]string{"class"},
		),

		promptsDeletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "enforcement",
				Name:      "prompts_deleted_total",
				Help:      "Join prompt deletions by result",
			},
			[]string{"result"},
		),

		activeMutes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "enforcement",
				Name:      "active_mutes",
				Help:      "Mute states currently tracked",
			},
		),
	}

	registry.MustRegister(
		em.mutesTotal,
		em.unmutesTotal,
		em.verifyRejectedTotal,
		em.probesTotal,
		em.warningsEmittedTotal,
		em.warningsSuppressedTotal,
		em.promptsDeletedTotal,
		em.activeMutes,
	)

	return em
}
