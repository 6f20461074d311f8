package notify

import (
	"context"
	"log/slog"

	"luggo/internal/domain"
	"luggo/internal/metrics"
)

// Handler consumes one event.
type Handler interface {
	Handle(ctx context.Context, evt domain.Event) *domain.Notification
}

// Dispatcher queues events for a single background worker so request handlers
// return as soon as their transaction commits.
type Dispatcher struct {
	handler Handler
	queue   chan domain.Event
	logger  *slog.Logger
}

func NewDispatcher(h Handler, size int, logger *slog.Logger) *Dispatcher {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{handler: h, queue: make(chan domain.Event, size), logger: logger}
}

// Publish enqueues evt without blocking. A full queue drops the event.
func (d *Dispatcher) Publish(_ context.Context, evt domain.Event) {
	select {
	case d.queue <- evt:
	default:
		metrics.NotificationQueueDropped.Inc()
		d.logger.Warn("notification queue full, dropping event", "event", evt.Type, "event_id", evt.ID)
	}
}

// Run handles queued events until ctx is done, then drains what is left.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-d.queue:
			d.handler.Handle(ctx, evt)
		case <-ctx.Done():
			d.drain(context.WithoutCancel(ctx))
			return nil
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case evt := <-d.queue:
			d.handler.Handle(ctx, evt)
		default:
			return
		}
	}
}

// Pending reports queued events.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}
