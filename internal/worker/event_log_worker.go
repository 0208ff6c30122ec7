package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/it-request-service/internal/events"
)

const appendTimeout = 2 * time.Second

// ErrQueueFull is returned to the publisher when the worker is saturated.
var ErrQueueFull = errors.New("event log queue full")

// EventLogWorker copies published events into the event log off the request path.
type EventLogWorker struct {
	log    events.EventLog
	logger *zap.Logger
	queue  chan events.Event
	wg     sync.WaitGroup
}

// NewEventLogWorker creates a worker with a queue of the given size.
func NewEventLogWorker(log events.EventLog, logger *zap.Logger, buffer int) *EventLogWorker {
	if buffer <= 0 {
		buffer = 256
	}
	return &EventLogWorker{
		log:    log,
		logger: logger,
		queue:  make(chan events.Event, buffer),
	}
}

// StartEventLogWorker subscribes a worker to every event type and starts it.
// It stops when ctx is done, after draining queued events.
func StartEventLogWorker(ctx context.Context, dispatcher events.Dispatcher, log events.EventLog, logger *zap.Logger) *EventLogWorker {
	w := NewEventLogWorker(log, logger, 0)
	w.Register(dispatcher)
	w.Start(ctx)
	return w
}

// Register subscribes the worker to every event type.
func (w *EventLogWorker) Register(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.SubscribeAll(w.enqueue)
}

func (w *EventLogWorker) enqueue(ctx context.Context, event events.Event) error {
	select {
	case w.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the consumer goroutine.
func (w *EventLogWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case event := <-w.queue:
				w.append(event)
			case <-ctx.Done():
				w.drain()
				return
			}
		}
	}()
}

// Wait blocks until the consumer has exited.
func (w *EventLogWorker) Wait() {
	w.wg.Wait()
}

func (w *EventLogWorker) drain() {
	for {
		select {
		case event := <-w.queue:
			w.append(event)
		default:
			return
		}
	}
}

func (w *EventLogWorker) append(event events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	if err := w.log.Append(ctx, event); err != nil {
		w.logger.Warn("failed to append event",
			zap.String("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		return
	}
	w.logger.Debug("event appended",
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
