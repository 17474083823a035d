package enforcement

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"joinguard-hq/warden/pkg/audit"
)

// SweeperConfig configures the Sweeper.
type SweeperConfig struct {
	// Schedule is the cron expression for the expiry sweep. Empty disables it.
	// Default: "@every 1m"
	Schedule string

	// SweepTimeout bounds one sweep, including the one Start runs inline.
	// Default: 2m
	SweepTimeout time.Duration

	// AuditPruner, if set, drops audit events older than AuditRetention on
	// PruneSchedule.
	AuditPruner    audit.Pruner
	AuditRetention time.Duration
	PruneSchedule  string
}

// Sweeper runs periodic maintenance: releasing mutes whose timer was lost and
// pruning the audit trail.
type Sweeper struct {
	engine  *Engine
	config  SweeperConfig
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewSweeper creates a Sweeper for engine.
func NewSweeper(engine *Engine, cfg SweeperConfig) *Sweeper {
	if cfg.SweepTimeout <= 0 {
		cfg.SweepTimeout = 2 * time.Minute
	}
	return &Sweeper{
		engine: engine,
		config: cfg,
		cron:   cron.New(),
		logger: slog.Default().With("component", "enforcement.sweeper"),
	}
}

// Start runs one sweep immediately, then schedules the jobs. The jobs stop
// when ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	jobs := 0
	if s.config.Schedule != "" {
		if _, err := s.cron.AddFunc(s.config.Schedule, func() { s.runSweep(ctx) }); err != nil {
			return fmt.Errorf("invalid sweep schedule %q: %w", s.config.Schedule, err)
		}
		jobs++
	}
	if s.config.AuditPruner != nil && s.config.PruneSchedule != "" && s.config.AuditRetention > 0 {
		if _, err := s.cron.AddFunc(s.config.PruneSchedule, func() { s.runPrune(ctx) }); err != nil {
			return fmt.Errorf("invalid prune schedule %q: %w", s.config.PruneSchedule, err)
		}
		jobs++
	}
	if jobs == 0 {
		s.logger.Info("no maintenance schedules configured, skipping sweeper")
		return nil
	}

	s.runSweep(ctx)

	s.cron.Start()
	s.running = true
	s.logger.Info("sweeper started",
		"sweep_schedule", s.config.Schedule,
		"prune_schedule", s.config.PruneSchedule,
		"audit_retention", s.config.AuditRetention,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Sweeper) runSweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.config.SweepTimeout)
	defer cancel()

	n, err := s.engine.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed",
			"processed", n,
			"error", err,
		)
		return
	}
	if n > 0 {
		s.logger.Info("expiry sweep completed", "released", n)
	}
}

func (s *Sweeper) runPrune(ctx context.Context) {
	cutoff := s.engine.now().Add(-s.config.AuditRetention)
	deleted, err := s.config.AuditPruner.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Error("audit pruning failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("audit pruning completed",
			"deleted_count", deleted,
			"cutoff", cutoff,
		)
	}
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("sweeper stopped")
	}
}

// IsRunning reports whether the sweeper is scheduled.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled run of any job, or nil.
func (s *Sweeper) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next *time.Time
	for _, entry := range s.cron.Entries() {
		if entry.Next.IsZero() {
			continue
		}
		if next == nil || entry.Next.Before(*next) {
			t := entry.Next
			next = &t
		}
	}
	return next
}
