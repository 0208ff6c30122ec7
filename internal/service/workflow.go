package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/spec-kit/it-request-service/internal/domain"
	"github.com/spec-kit/it-request-service/internal/events"
	"github.com/spec-kit/it-request-service/internal/observability"
	"github.com/spec-kit/it-request-service/internal/repository"
	apperrors "github.com/spec-kit/it-request-service/pkg/util/errorutil"
)

// workflow holds what the orchestrator and the approval service share:
// committing tickets, publishing events and recording best-effort failures.
type workflow struct {
	tickets     repository.TicketRepository
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
	saveRetries int
	newBackOff  func() backoff.BackOff
}

func newWorkflow(tickets repository.TicketRepository, dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics, now func() time.Time, saveRetries int) workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	if saveRetries < 0 {
		saveRetries = 0
	}
	return workflow{
		tickets:     tickets,
		dispatcher:  dispatcher,
		logger:      logger,
		metrics:     metrics,
		now:         now,
		saveRetries: saveRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = time.Second
			return b
		},
	}
}

// save commits the ticket, retrying transient store failures. Conflicts and
// cancellation are not retried. Pending mutations stay on the ticket when
// every attempt fails.
func (w *workflow) save(ctx context.Context, ticket *domain.Ticket) error {
	attempt := 0
	op := func() error {
		attempt++
		err := w.tickets.Save(ctx, ticket)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || apperrors.IsCode(err, apperrors.CodeConflict) || errors.Is(err, repository.ErrNotAdded) {
			return backoff.Permanent(err)
		}
		w.logger.Warn("ticket save failed; retrying",
			zap.String("ticket_id", ticket.ID()),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(w.newBackOff(), uint64(w.saveRetries)), ctx)
	err := backoff.Retry(op, b)
	if err == nil {
		return nil
	}
	details := map[string]any{"ticket_id": ticket.ID(), "attempts": attempt}
	switch {
	case ctx.Err() != nil:
		return apperrors.NewCancelled(err, details)
	case apperrors.IsCode(err, apperrors.CodeConflict):
		return err
	default:
		return apperrors.NewPersistenceError(err, details)
	}
}

func (w *workflow) publish(ctx context.Context, event events.Event) {
	w.metrics.RecordEvent(string(event.Type))
	if w.dispatcher == nil {
		return
	}
	if err := w.dispatcher.Publish(ctx, event); err != nil {
		w.logger.Warn("event handlers failed",
			zap.String("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}

func (w *workflow) publishStatusChange(ctx context.Context, ticket *domain.Ticket, actor string, from domain.TicketStatus, comment string) {
	w.publish(ctx, events.NewEvent(events.EventTicketStatusChanged, ticket.ID(), actor, w.now(), events.TicketStatusChangedPayload{
		OldStatus: from,
		NewStatus: ticket.Status(),
		Comment:   comment,
	}))
}

// bestEffort runs a side step. A failure is returned as a StepFailure
// value; only cancellation of ctx stops the caller.
func (w *workflow) bestEffort(ctx context.Context, ticket *domain.Ticket, step string, call func() error) (*domain.StepFailure, error) {
	err := call()
	if err == nil {
		return nil, nil
	}
	if ctx.Err() != nil {
		return nil, apperrors.NewCancelled(err, map[string]any{"ticket_id": ticket.ID(), "step": step})
	}
	w.logger.Warn("best-effort step failed",
		zap.String("ticket_id", ticket.ID()),
		zap.String("step", step),
		zap.Error(err))
	w.metrics.RecordStepFailure(step)
	w.publish(ctx, events.NewEvent(events.EventStepFailed, ticket.ID(), "", w.now(), events.StepFailedPayload{
		Step:  step,
		Error: err.Error(),
	}))
	return &domain.StepFailure{Step: step, Error: err.Error()}, nil
}
