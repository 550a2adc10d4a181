package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// ErrQueueFull is returned by Queue.Append when the buffer is saturated.
var ErrQueueFull = errors.New("audit queue full")

// Queue is a Store that buffers events in a channel so slow sinks (Kafka) do
// not block session transitions. A Worker drains it.
type Queue struct {
	inbox   chan Event
	dropped atomic.Int64
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{inbox: make(chan Event, size)}
}

// Append enqueues without blocking; a full buffer drops the event.
func (q *Queue) Append(_ context.Context, event Event) error {
	select {
	case q.inbox <- event:
		return nil
	default:
		q.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dropped reports how many events were discarded on a full buffer.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Worker consumes audit events from a queue and persists them.
type Worker struct {
	store   Store
	inbox   <-chan Event
	logger  *slog.Logger
	breaker *Breaker
}

type WorkerOption func(*Worker)

// WithBreaker skips the sink while b is open. Skipped events are written to
// the log instead.
func WithBreaker(b *Breaker) WorkerOption {
	return func(w *Worker) {
		w.breaker = b
	}
}

func NewWorker(store Store, queue *Queue, logger *slog.Logger, opts ...WorkerOption) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{store: store, inbox: queue.inbox, logger: logger}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run persists events until ctx is done, then drains what is already queued.
// Sink failures are logged and do not stop the worker.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event := <-w.inbox:
			w.append(ctx, event)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case event := <-w.inbox:
			w.append(context.Background(), event)
		default:
			return
		}
	}
}

func (w *Worker) append(ctx context.Context, event Event) {
	if w.breaker != nil && !w.breaker.Allow() {
		w.fallback(ctx, event)
		return
	}
	err := w.store.Append(ctx, event)
	if err == nil {
		if w.breaker != nil {
			w.breaker.RecordSuccess()
		}
		return
	}
	w.logger.WarnContext(ctx, "audit sink append failed", "action", event.Action, "error", err)
	if w.breaker != nil && w.breaker.RecordFailure() {
		w.logger.ErrorContext(ctx, "audit sink circuit opened")
	}
	w.fallback(ctx, event)
}

func (w *Worker) fallback(ctx context.Context, event Event) {
	w.logger.InfoContext(ctx, event.Action,
		"log_type", "audit",
		"audit_sink", "unavailable",
		"email", event.Email,
		"wallet_address", event.WalletAddress,
		"reason", event.Reason,
	)
}
