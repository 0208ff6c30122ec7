package service

import (
	"context"

	"github.com/spec-kit/it-request-service/internal/domain"
	"github.com/spec-kit/it-request-service/internal/events"
	"github.com/spec-kit/it-request-service/internal/repository"
)

// TicketQueryService serves read-only ticket views.
type TicketQueryService struct {
	tickets repository.TicketRepository
	log     events.EventLog
}

// NewTicketQueryService constructs the service. log may be nil.
func NewTicketQueryService(tickets repository.TicketRepository, log events.EventLog) *TicketQueryService {
	return &TicketQueryService{tickets: tickets, log: log}
}

// List returns tickets most recently created first.
func (s *TicketQueryService) List(ctx context.Context, opts repository.ListOptions) ([]*domain.Ticket, error) {
	return s.tickets.List(ctx, opts)
}

// Get returns a ticket with its history.
func (s *TicketQueryService) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	return s.tickets.Get(ctx, id)
}

// Timeline returns the events published for a ticket, oldest first.
func (s *TicketQueryService) Timeline(ctx context.Context, id string, limit int64) ([]events.Event, error) {
	if _, err := s.tickets.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.log == nil {
		return []events.Event{}, nil
	}
	return s.log.Timeline(ctx, id, limit)
}
