package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const writeTimeout = 5 * time.Second

// Recorder writes events to a Sink asynchronously.
type Recorder struct {
	sink   Sink
	queue  chan Event
	done   chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger

	closeOnce sync.Once
	closed    atomic.Bool
	dropped   atomic.Int64

	now func() time.Time
}

// NewRecorder starts a recorder draining into sink. bufferSize <= 0 means 256.
func NewRecorder(sink Sink, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 256
	}

	r := &Recorder{
		sink:   sink,
		queue:  make(chan Event, bufferSize),
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "audit.recorder"),
		now:    time.Now,
	}

	r.wg.Add(1)
	go r.worker()

	return r
}

// Record enqueues e, assigning an id and timestamp when missing. It never
// blocks; when the queue is full the event is dropped.
func (r *Recorder) Record(e Event) {
	if r == nil || r.closed.Load() {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = r.now().UTC()
	}

	select {
	case r.queue <- e:
	default:
		n := r.dropped.Add(1)
		r.logger.Warn("audit queue full, dropping event",
			"type", e.Type,
			"group_id", e.GroupID,
			"dropped_total", n,
		)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (r *Recorder) Dropped() int64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

// Close drains queued events, stops the worker and closes the sink.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	var err error
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.done)
		r.wg.Wait()
		err = r.sink.Close()
	})
	return err
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case e := <-r.queue:
			r.write(e)
		case <-r.done:
			for {
				select {
				case e := <-r.queue:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.sink.Write(ctx, e); err != nil {
		r.logger.Error("failed to write audit event",
			"id", e.ID,
			"type", e.Type,
			"error", err,
		)
	}
}
