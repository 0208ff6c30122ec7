package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/it-request-service/internal/domain"
	apperrors "github.com/spec-kit/it-request-service/pkg/util/errorutil"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ErrNotAdded is returned when saving a new ticket that was never added.
var ErrNotAdded = errors.New("ticket must be added before it is saved")

// ListOptions paginates ticket listings.
type ListOptions struct {
	Limit  int
	Offset int
}

func (o ListOptions) normalized() ListOptions {
	if o.Limit <= 0 {
		o.Limit = defaultListLimit
	}
	if o.Limit > maxListLimit {
		o.Limit = maxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// TicketRepository is the durable store for ticket aggregates.
//
// Add registers a new ticket; nothing is durable until Save returns nil.
// Discard drops an added ticket that will never be saved.
// Save commits the ticket row and its pending history in one transaction.
// A failed Save leaves the pending mutations on the ticket so it can be
// retried. Concurrent writers are detected through the ticket version and
// reported as CONFLICT; the repository does not lock across processes.
type TicketRepository interface {
	Add(ctx context.Context, ticket *domain.Ticket) error
	Discard(ctx context.Context, ticket *domain.Ticket)
	Get(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, opts ListOptions) ([]*domain.Ticket, error)
	Save(ctx context.Context, ticket *domain.Ticket) error
}

// staging tracks tickets between Add and their first Save.
type staging struct {
	mu    sync.Mutex
	added map[string]struct{}
}

func newStaging() staging {
	return staging{added: make(map[string]struct{})}
}

func (s *staging) stage(ticket *domain.Ticket) error {
	if !ticket.IsNew() {
		return apperrors.NewConflict("ticket already stored", map[string]any{"ticket_id": ticket.ID()})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.added[ticket.ID()]; ok {
		return apperrors.NewConflict("ticket already added", map[string]any{"ticket_id": ticket.ID()})
	}
	s.added[ticket.ID()] = struct{}{}
	return nil
}

func (s *staging) isStaged(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.added[id]
	return ok
}

func (s *staging) unstage(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.added, id)
}

func ticketNotFound(id string) error {
	return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
}

func staleTicket(ticket *domain.Ticket) error {
	return apperrors.NewConflict("ticket modified concurrently", map[string]any{
		"ticket_id": ticket.ID(),
		"version":   ticket.Version(),
	})
}

// DB is the part of *pgxpool.Pool the repository needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type ticketRepository struct {
	db      DB
	staging staging
}

// NewTicketRepository instantiates the Postgres repository.
func NewTicketRepository(db DB) TicketRepository {
	return &ticketRepository{db: db, staging: newStaging()}
}

func (r *ticketRepository) Add(ctx context.Context, ticket *domain.Ticket) error {
	return r.staging.stage(ticket)
}

func (r *ticketRepository) Discard(ctx context.Context, ticket *domain.Ticket) {
	if ticket.IsNew() {
		r.staging.unstage(ticket.ID())
	}
}

func (r *ticketRepository) Save(ctx context.Context, ticket *domain.Ticket) error {
	if !ticket.Dirty() {
		return nil
	}
	if ticket.IsNew() && !r.staging.isStaged(ticket.ID()) {
		return ErrNotAdded
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	snap := ticket.Snapshot()
	if ticket.IsNew() {
		const insert = `
            INSERT INTO tickets (id, title, description, requester_email, priority, status, external_issue_key, version, created_at, updated_at)
            VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),1,$8,$9)`
		if _, err := tx.Exec(ctx, insert,
			snap.ID,
			snap.Title,
			snap.Description,
			snap.RequesterEmail,
			snap.Priority,
			snap.Status,
			snap.ExternalIssueKey,
			snap.CreatedAt,
			snap.UpdatedAt,
		); err != nil {
			return err
		}
	} else {
		const update = `
            UPDATE tickets SET status=$1, external_issue_key=NULLIF($2,''), updated_at=$3, version=version+1
            WHERE id=$4 AND version=$5`
		cmd, err := tx.Exec(ctx, update,
			snap.Status,
			snap.ExternalIssueKey,
			snap.UpdatedAt,
			snap.ID,
			snap.Version,
		)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return staleTicket(ticket)
		}
	}

	pending := ticket.PendingHistory()
	firstSeq := len(snap.History) - len(pending)
	for i, entry := range pending {
		if _, err := tx.Exec(ctx,
			`INSERT INTO ticket_history (ticket_id, seq, event, notes, created_at) VALUES ($1,$2,$3,$4,$5)`,
			snap.ID, firstSeq+i, entry.Event, entry.Notes, entry.Timestamp,
		); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	ticket.MarkCommitted()
	r.staging.unstage(ticket.ID())
	return nil
}

const selectTicketColumns = `
        SELECT id::text, title, description, requester_email, priority, status,
               COALESCE(external_issue_key, ''), version, created_at, updated_at
        FROM tickets`

// Get looks a ticket up by id. Ids that are not UUIDs cannot exist.
func (r *ticketRepository) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	key, err := uuid.Parse(id)
	if err != nil {
		return nil, ticketNotFound(id)
	}
	rows, err := r.db.Query(ctx, selectTicketColumns+` WHERE id=$1::uuid`, key.String())
	if err != nil {
		return nil, err
	}
	snaps, err := scanTickets(rows)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ticketNotFound(id)
	}
	if err := r.loadHistory(ctx, snaps); err != nil {
		return nil, err
	}
	return domain.RehydrateTicket(snaps[0]), nil
}

func (r *ticketRepository) List(ctx context.Context, opts ListOptions) ([]*domain.Ticket, error) {
	opts = opts.normalized()
	rows, err := r.db.Query(ctx, selectTicketColumns+` ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	snaps, err := scanTickets(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadHistory(ctx, snaps); err != nil {
		return nil, err
	}
	tickets := make([]*domain.Ticket, 0, len(snaps))
	for _, snap := range snaps {
		tickets = append(tickets, domain.RehydrateTicket(snap))
	}
	return tickets, nil
}

func (r *ticketRepository) loadHistory(ctx context.Context, snaps []domain.TicketSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	ids := make([]string, 0, len(snaps))
	index := make(map[string]int, len(snaps))
	for i, snap := range snaps {
		ids = append(ids, snap.ID)
		index[snap.ID] = i
	}

	const query = `
        SELECT ticket_id::text, event, notes, created_at
        FROM ticket_history WHERE ticket_id = ANY($1::uuid[]) ORDER BY ticket_id, seq ASC`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ticketID string
			entry    domain.TicketHistoryEntry
		)
		if err := rows.Scan(&ticketID, &entry.Event, &entry.Notes, &entry.Timestamp); err != nil {
			return err
		}
		entry.Timestamp = entry.Timestamp.UTC()
		if i, ok := index[ticketID]; ok {
			snaps[i].History = append(snaps[i].History, entry)
		}
	}
	return rows.Err()
}

func scanTickets(rows pgx.Rows) ([]domain.TicketSnapshot, error) {
	defer rows.Close()
	var result []domain.TicketSnapshot
	for rows.Next() {
		var snap domain.TicketSnapshot
		if err := rows.Scan(
			&snap.ID,
			&snap.Title,
			&snap.Description,
			&snap.RequesterEmail,
			&snap.Priority,
			&snap.Status,
			&snap.ExternalIssueKey,
			&snap.Version,
			&snap.CreatedAt,
			&snap.UpdatedAt,
		); err != nil {
			return nil, err
		}
		snap.CreatedAt = snap.CreatedAt.UTC()
		snap.UpdatedAt = snap.UpdatedAt.UTC()
		result = append(result, snap)
	}
	return result, rows.Err()
}
