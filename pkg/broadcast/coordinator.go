package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"joinguard-hq/warden/pkg/audit"
	"joinguard-hq/warden/pkg/config"
	"joinguard-hq/warden/pkg/platform"
	"joinguard-hq/warden/pkg/store"
	"joinguard-hq/warden/pkg/telemetry/metrics"
)

// Kind is the type of a recipient.
type Kind string

const (
	KindGroup Kind = "group"
	KindUser  Kind = "user"
)

// Recipient is one destination of a broadcast.
type Recipient struct {
	Kind Kind
	ID   int64
}

// Job is a resolved broadcast, ready to run.
type Job struct {
	ID         string
	OperatorID int64
	Source     Source
	Target     Target
	Pin        bool
	Recipients []Recipient
}

// Config configures a Coordinator.
type Config struct {
	// RatePerSecond is the sustained send rate.
	// Default: 20
	RatePerSecond float64

	// ProgressEvery is how many recipients pass between progress callbacks.
	// Default: 10
	ProgressEvery int

	// FailedDisplayLimit caps the failed ids listed by Report.Summary.
	// Default: 15
	FailedDisplayLimit int
}

// ConfigFrom converts the broadcast section of the service config.
func ConfigFrom(cfg config.BroadcastConfig) Config {
	return Config{
		RatePerSecond:      cfg.RatePerSecond,
		ProgressEvery:      cfg.ProgressEvery,
		FailedDisplayLimit: cfg.FailedDisplayLimit,
	}
}

func (c *Config) applyDefaults() {
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 20
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = 10
	}
	if c.FailedDisplayLimit <= 0 {
		c.FailedDisplayLimit = 15
	}
}

// Directory lists broadcast recipients.
type Directory interface {
	ListGroups(ctx context.Context) ([]int64, error)
	ListUsers(ctx context.Context) ([]int64, error)
}

var _ Directory = (store.Backend)(nil)

// Coordinator runs broadcast jobs.
type Coordinator struct {
	client  platform.Client
	dir     Directory
	config  Config
	limiter *rate.Limiter
	metrics *metrics.Collector
	audit   *audit.Recorder
	logger  *slog.Logger
}

// NewCoordinator creates a Coordinator. collector and recorder may be nil.
func NewCoordinator(client platform.Client, dir Directory, cfg Config, collector *metrics.Collector, recorder *audit.Recorder) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		client:  client,
		dir:     dir,
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		metrics: collector,
		audit:   recorder,
		logger:  slog.Default().With("component", "broadcast.coordinator"),
	}
}

// Start resolves the recipients of a confirmed session. Groups come first,
// then users, each in ascending id order.
func (c *Coordinator) Start(ctx context.Context, sess Session) (*Job, error) {
	if sess.State != Sending {
		return nil, ErrWrongState
	}

	job := &Job{
		ID:         uuid.NewString(),
		OperatorID: sess.OperatorID,
		Source:     sess.Source,
		Target:     sess.Target,
		Pin:        sess.Pin && sess.Target.IncludesGroups(),
	}
	if sess.Target.IncludesGroups() {
		groups, err := c.dir.ListGroups(ctx)
		if err != nil {
			return nil, fmt.Errorf("list groups: %w", err)
		}
		for _, id := range groups {
			job.Recipients = append(job.Recipients, Recipient{Kind: KindGroup, ID: id})
		}
	}
	if sess.Target.IncludesUsers() {
		users, err := c.dir.ListUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		for _, id := range users {
			job.Recipients = append(job.Recipients, Recipient{Kind: KindUser, ID: id})
		}
	}
	return job, nil
}

// ProgressFunc receives running counts. It is called every ProgressEvery
// recipients and once at completion.
type ProgressFunc func(Report)

// Run delivers the job. If ctx is cancelled the remaining recipients are
// counted as failed, so the report always accounts for every recipient.
func (c *Coordinator) Run(ctx context.Context, job *Job, progress ProgressFunc) Report {
	started := time.Now()
	rep := Report{
		JobID:        job.ID,
		Target:       job.Target,
		Total:        len(job.Recipients),
		displayLimit: c.config.FailedDisplayLimit,
	}

	c.logger.Info("broadcast started",
		"job_id", job.ID,
		"operator_id", job.OperatorID,
		"target", job.Target,
		"recipients", rep.Total,
		"pin", job.Pin,
	)

	for i, r := range job.Recipients {
		if ctx.Err() != nil {
			rep.Cancelled = true
			for _, rest := range job.Recipients[i:] {
				rep.fail(rest)
			}
			break
		}

		if err := c.deliver(ctx, job, r, &rep); err != nil {
			rep.fail(r)
			c.metrics.RecordBroadcastDelivery(string(r.Kind), false)
			c.logger.Debug("broadcast delivery failed",
				"job_id", job.ID,
				"kind", r.Kind,
				"recipient", r.ID,
				"error", err,
			)
		} else {
			rep.Sent++
			c.metrics.RecordBroadcastDelivery(string(r.Kind), true)
		}

		done := rep.Sent + rep.Failed
		if progress != nil && done%c.config.ProgressEvery == 0 && done < rep.Total {
			progress(rep)
		}
	}

	rep.Duration = time.Since(started)
	if progress != nil {
		progress(rep)
	}

	c.metrics.RecordBroadcastJob(string(job.Target), rep.Duration)
	c.logger.Info("broadcast finished",
		"job_id", job.ID,
		"sent", rep.Sent,
		"failed", rep.Failed,
		"pin_failed", rep.PinFailed,
		"cancelled", rep.Cancelled,
		"duration", rep.Duration,
	)
	c.audit.Record(audit.Event{
		Type:    audit.TypeBroadcastDone,
		ActorID: job.OperatorID,
		Detail: map[string]string{
			"job_id":    job.ID,
			"target":    string(job.Target),
			"total":     strconv.Itoa(rep.Total),
			"sent":      strconv.Itoa(rep.Sent),
			"failed":    strconv.Itoa(rep.Failed),
			"cancelled": strconv.FormatBool(rep.Cancelled),
		},
	})
	return rep
}

// deliver copies the source to r, retrying once when the platform asks to
// back off, and pins group copies when requested.
func (c *Coordinator) deliver(ctx context.Context, job *Job, r Recipient, rep *Report) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	id, err := c.client.CopyMessage(ctx, r.ID, job.Source.ChatID, job.Source.MessageID)
	var apiErr *platform.APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(apiErr.RetryAfter):
		}
		id, err = c.client.CopyMessage(ctx, r.ID, job.Source.ChatID, job.Source.MessageID)
	}
	if err != nil {
		return err
	}

	if job.Pin && r.Kind == KindGroup {
		if err := c.client.PinMessage(ctx, r.ID, id, true); err != nil {
			rep.PinFailed++
			c.logger.Warn("failed to pin broadcast",
				"job_id", job.ID,
				"group_id", r.ID,
				"error", err,
			)
		} else {
			rep.Pinned++
		}
	}
	return nil
}
