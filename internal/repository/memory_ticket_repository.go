package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/it-request-service/internal/domain"
	apperrors "github.com/spec-kit/it-request-service/pkg/util/errorutil"
)

type storedTicket struct {
	snap domain.TicketSnapshot
	seq  int
}

// memoryTicketRepository keeps committed snapshots in process memory. It is
// used when no database is configured and in tests.
type memoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]storedTicket
	nextSeq int
	staging staging
}

// NewMemoryTicketRepository returns an empty in-memory repository.
func NewMemoryTicketRepository() TicketRepository {
	return &memoryTicketRepository{
		tickets: make(map[string]storedTicket),
		staging: newStaging(),
	}
}

func (r *memoryTicketRepository) Add(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.RLock()
	_, exists := r.tickets[ticket.ID()]
	r.mu.RUnlock()
	if exists {
		return apperrors.NewConflict("ticket already stored", map[string]any{"ticket_id": ticket.ID()})
	}
	return r.staging.stage(ticket)
}

func (r *memoryTicketRepository) Discard(ctx context.Context, ticket *domain.Ticket) {
	if ticket.IsNew() {
		r.staging.unstage(ticket.ID())
	}
}

func (r *memoryTicketRepository) Save(ctx context.Context, ticket *domain.Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ticket.Dirty() {
		return nil
	}
	if ticket.IsNew() && !r.staging.isStaged(ticket.ID()) {
		return ErrNotAdded
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snap := ticket.Snapshot()
	current, exists := r.tickets[snap.ID]
	seq := current.seq
	switch {
	case ticket.IsNew():
		if exists {
			return staleTicket(ticket)
		}
		r.nextSeq++
		seq = r.nextSeq
	case !exists || current.snap.Version != snap.Version:
		return staleTicket(ticket)
	}

	snap.Version++
	r.tickets[snap.ID] = storedTicket{snap: snap, seq: seq}
	ticket.MarkCommitted()
	r.staging.unstage(snap.ID)
	return nil
}

func (r *memoryTicketRepository) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.tickets[id]
	if !ok {
		return nil, ticketNotFound(id)
	}
	return domain.RehydrateTicket(stored.snap), nil
}

func (r *memoryTicketRepository) List(ctx context.Context, opts ListOptions) ([]*domain.Ticket, error) {
	opts = opts.normalized()

	r.mu.RLock()
	all := make([]storedTicket, 0, len(r.tickets))
	for _, stored := range r.tickets {
		all = append(all, stored)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].snap.CreatedAt.Equal(all[j].snap.CreatedAt) {
			return all[i].snap.CreatedAt.After(all[j].snap.CreatedAt)
		}
		return all[i].seq > all[j].seq
	})

	if opts.Offset >= len(all) {
		return []*domain.Ticket{}, nil
	}
	end := opts.Offset + opts.Limit
	if end > len(all) {
		end = len(all)
	}
	tickets := make([]*domain.Ticket, 0, end-opts.Offset)
	for _, stored := range all[opts.Offset:end] {
		tickets = append(tickets, domain.RehydrateTicket(stored.snap))
	}
	return tickets, nil
}
