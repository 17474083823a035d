package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"joinguard-hq/warden/pkg/config"
	"joinguard-hq/warden/pkg/platform"
	"joinguard-hq/warden/pkg/telemetry/logging"
	"joinguard-hq/warden/pkg/telemetry/metrics"
)

// Handler processes one update.
type Handler interface {
	Handle(ctx context.Context, u platform.Update) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, u platform.Update) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, u platform.Update) error {
	return f(ctx, u)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Workers is the number of ordered lanes.
	// Default: 8
	Workers int

	// QueueSize is the buffered depth of each lane.
	// Default: 64
	QueueSize int

	// UpdateTimeout bounds the handling of one update.
	// Default: 30 seconds
	UpdateTimeout time.Duration
}

// DispatcherConfigFrom converts the dispatch section of the service config.
func DispatcherConfigFrom(cfg config.DispatchConfig) DispatcherConfig {
	return DispatcherConfig{
		Workers:       cfg.Workers,
		QueueSize:     cfg.QueueSize,
		UpdateTimeout: cfg.UpdateTimeout,
	}
}

func (c *DispatcherConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.UpdateTimeout <= 0 {
		c.UpdateTimeout = 30 * time.Second
	}
}

// Dispatcher fans updates out over ordered lanes.
type Dispatcher struct {
	handler Handler
	config  DispatcherConfig
	metrics *metrics.Collector
	logger  *slog.Logger
	depth   atomic.Int64
}

// NewDispatcher creates a Dispatcher. collector may be nil.
func NewDispatcher(handler Handler, cfg DispatcherConfig, collector *metrics.Collector) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		handler: handler,
		config:  cfg,
		metrics: collector,
		logger:  slog.Default().With("component", "bot.dispatcher"),
	}
}

// Run consumes src until ctx is cancelled or the source closes. Updates
// already queued are still handled before Run returns.
func (d *Dispatcher) Run(ctx context.Context, src platform.Source) error {
	updates, err := src.Updates(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to updates: %w", err)
	}

	lanes := make([]chan platform.Update, d.config.Workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan platform.Update, d.config.QueueSize)
		wg.Add(1)
		go d.worker(ctx, lanes[i], &wg)
	}

	d.logger.Info("dispatcher started",
		"workers", d.config.Workers,
		"queue_size", d.config.QueueSize,
	)

	defer func() {
		for _, lane := range lanes {
			close(lane)
		}
		wg.Wait()
		d.logger.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			lane := lanes[laneIndex(laneKey(u), len(lanes))]
			d.metrics.SetQueueDepth(int(d.depth.Add(1)))
			select {
			case lane <- u:
			case <-ctx.Done():
				d.depth.Add(-1)
				return nil
			}
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context, lane <-chan platform.Update, wg *sync.WaitGroup) {
	defer wg.Done()
	// In-flight updates finish even when the dispatcher is shutting down.
	base := context.WithoutCancel(ctx)
	for u := range lane {
		d.metrics.SetQueueDepth(int(d.depth.Add(-1)))
		d.dispatch(base, u)
	}
}

// dispatch handles one update with a timeout and panic recovery.
func (d *Dispatcher) dispatch(ctx context.Context, u platform.Update) {
	ctx, cancel := context.WithTimeout(ctx, d.config.UpdateTimeout)
	defer cancel()
	ctx = logging.WithUpdateID(ctx, u.ID)

	kind := updateKind(u)
	start := time.Now()
	failed := false

	defer func() {
		if r := recover(); r != nil {
			failed = true
			d.metrics.RecordPanic()
			d.logger.Error("handler panic",
				"update_id", u.ID,
				"kind", kind,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
		d.metrics.RecordUpdate(kind, time.Since(start), failed)
	}()

	if err := d.handler.Handle(ctx, u); err != nil {
		failed = true
		d.logger.Error("update handling failed",
			"update_id", u.ID,
			"kind", kind,
			"error", err,
		)
	}
}

// laneKey is the chat an update belongs to: the group for group traffic and
// the user for private chats.
func laneKey(u platform.Update) int64 {
	switch {
	case u.Message != nil:
		if u.Message.Chat.ID != 0 {
			return u.Message.Chat.ID
		}
		return u.Message.From.ID
	case u.Callback != nil:
		if u.Callback.ChatID != 0 {
			return u.Callback.ChatID
		}
		return u.Callback.From.ID
	default:
		return 0
	}
}

func laneIndex(key int64, n int) int {
	k := uint64(key)
	k ^= k >> 33
	k *= 0xff51afd7ed558ccd
	k ^= k >> 33
	return int(k % uint64(n))
}

func updateKind(u platform.Update) string {
	switch {
	case u.Message != nil && u.Message.IsCommand():
		return "command"
	case u.Message != nil:
		return "message"
	case u.Callback != nil:
		return "callback"
	default:
		return "other"
	}
}
