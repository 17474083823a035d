package metrics

import (
	"time"

	"joinguard-hq/warden/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector owns the registry and every metric family.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	enforcementMetrics *EnforcementMetrics
	broadcastMetrics   *BroadcastMetrics
	dispatchMetrics    *DispatchMetrics
	cacheMetrics       *CacheMetrics
}

// NewCollector creates a collector registering into registry. A nil registry
// gets a fresh one with Go runtime and process collectors attached.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		enforcementMetrics: NewEnforcementMetrics(cfg, registry),
		broadcastMetrics:   NewBroadcastMetrics(cfg, registry),
		dispatchMetrics:    NewDispatchMetrics(cfg, registry),
		cacheMetrics:       NewCacheMetrics(cfg, registry),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && !c.config.Disabled
}

// RecordMute records a restriction attempt. outcome is "applied" or "failed".
func (c *Collector) RecordMute(outcome string) {
	if !c.enabled() {
		return
	}
	c.enforcementMetrics.mutesTotal.WithLabelValues(outcome).Inc()
}

// RecordUnmute records a restriction lift.
//
// Parameters:
//   - path: "verify" or "expiry"
//   - outcome: "restored", "degraded" or "failed"
func (c *Collector) RecordUnmute(path, outcome string) {
	if !c.enabled() {
		return
	}
	c.enforcementMetrics.unmutesTotal.WithLabelValues(path, outcome).Inc()
}

// RecordVerifyRejected records a verification press that changed nothing.
// reason is "other_user", "not_joined" or "not_muted".
func (c *Collector) RecordVerifyRejected(reason string) {
	if !c.enabled() {
		return
	}
	c.enforcementMetrics.verifyRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordProbe records one membership probe.
func (c *Collector) RecordProbe(outcome, reason string) {
	if !c.enabled() {
		return
	}
	if reason == "" {
		reason = "none"
	}
	c.enforcementMetrics.probesTotal.WithLabelValues(outcome, reason).Inc()
}

// RecordWarning records an operational warning decision for an error class.
func (c *Collector) RecordWarning(class string, emitted bool) {
	if !c.enabled() {
		return
	}
	if emitted {
		c.enforcementMetrics.warningsEmittedTotal.WithLabelValues(class).Inc()
		return
	}
	c.enforcementMetrics.warningsSuppressedTotal.WithLabelValues(class).Inc()
}

// RecordPromptDeletions records the result of a prompt cleanup.
func (c *Collector) RecordPromptDeletions(deleted, failed int) {
	if !c.enabled() {
		return
	}
	c.enforcementMetrics.promptsDeletedTotal.WithLabelValues("deleted").Add(float64(deleted))
	c.enforcementMetrics.promptsDeletedTotal.WithLabelValues("failed").Add(float64(failed))
}

// SetActiveMutes sets the number of tracked mute states.
func (c *Collector) SetActiveMutes(n int) {
	if !c.enabled() {
		return
	}
	c.enforcementMetrics.activeMutes.Set(float64(n))
}

// RecordBroadcastDelivery records one recipient of a broadcast.
// kind is "group" or "user".
func (c *Collector) RecordBroadcastDelivery(kind string, ok bool) {
	if !c.enabled() {
		return
	}
	result := "sent"
	if !ok {
		result = "failed"
	}
	c.broadcastMetrics.deliveriesTotal.WithLabelValues(kind, result).Inc()
}

// RecordBroadcastJob records a finished broadcast job.
func (c *Collector) RecordBroadcastJob(target string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.broadcastMetrics.jobsTotal.WithLabelValues(target).Inc()
	c.broadcastMetrics.jobDuration.Observe(duration.Seconds())
}

// RecordUpdate records one handled update.
//
// Parameters:
//   - kind: "message", "command", "callback" or "other"
//   - duration: handling time
//   - failed: whether the handler returned an error
func (c *Collector) RecordUpdate(kind string, duration time.Duration, failed bool) {
	if !c.enabled() {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	c.dispatchMetrics.updatesTotal.WithLabelValues(kind, status).Inc()
	c.dispatchMetrics.updateDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordPanic records a recovered handler panic.
func (c *Collector) RecordPanic() {
	if !c.enabled() {
		return
	}
	c.dispatchMetrics.panicsTotal.Inc()
}

// SetQueueDepth sets the number of updates waiting across all lanes.
func (c *Collector) SetQueueDepth(n int) {
	if !c.enabled() {
		return
	}
	c.dispatchMetrics.queueDepth.Set(float64(n))
}

// RecordCacheHit records a cache hit.
func (c *Collector) RecordCacheHit(cacheName string) {
	if !c.enabled() {
		return
	}
	c.cacheMetrics.RecordHit(cacheName)
}

// RecordCacheMiss records a cache miss.
func (c *Collector) RecordCacheMiss(cacheName string) {
	if !c.enabled() {
		return
	}
	c.cacheMetrics.RecordMiss(cacheName)
}

// UpdateCacheSize updates the current size of a cache.
func (c *Collector) UpdateCacheSize(cacheName string, size int) {
	if !c.enabled() {
		return
	}
	c.cacheMetrics.UpdateSize(cacheName, size)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
