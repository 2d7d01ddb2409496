package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unityvault/ticketflow/internal/events"
	"github.com/unityvault/ticketflow/internal/observability"
)

var (
	// ErrQueueFull is returned when the delivery queue has no room.
	ErrQueueFull = errors.New("notification queue full")
	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("notification worker stopped")
)

const deliveryTimeout = 10 * time.Second

// NotificationWorker delivers events to a sink on a background goroutine so
// slow sinks never hold up workflow operations. It implements events.Sink.
type NotificationWorker struct {
	sink    events.Sink
	logger  *zap.Logger
	metrics *observability.Metrics

	mu      sync.RWMutex
	queue   chan events.Event
	stopped bool
	done    chan struct{}
	start   sync.Once
}

// NewNotificationWorker builds a worker with the given queue capacity.
func NewNotificationWorker(sink events.Sink, queueSize int, logger *zap.Logger, metrics *observability.Metrics) *NotificationWorker {
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{
		sink:    sink,
		logger:  logger,
		metrics: metrics,
		queue:   make(chan events.Event, queueSize),
		done:    make(chan struct{}),
	}
}

// Start launches the delivery goroutine. Calling it more than once is a no-op.
func (w *NotificationWorker) Start() {
	w.start.Do(func() {
		go w.run()
	})
}

// Notify enqueues event without blocking.
func (w *NotificationWorker) Notify(_ context.Context, event events.Event) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return ErrStopped
	}
	select {
	case w.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop rejects new events, drains the queue and waits for the goroutine to exit
// or ctx to expire.
func (w *NotificationWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.queue)
	}
	w.mu.Unlock()

	// make sure a never-started worker still drains and closes done
	w.Start()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *NotificationWorker) run() {
	defer close(w.done)
	for event := range w.queue {
		w.deliver(event)
	}
}

func (w *NotificationWorker) deliver(event events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	err := w.sink.Notify(ctx, event)
	w.metrics.RecordNotification("worker", err)
	if err != nil {
		w.logger.Warn("notification delivery failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err),
		)
	}
}
