package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/it-request-service/internal/domain"
	apperrors "github.com/spec-kit/it-request-service/pkg/util/errorutil"
)

func newMockRepository(t *testing.T) (pgxmock.PgxPoolIface, TicketRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewTicketRepository(mock)
}

// storedTicketAt rebuilds a committed ticket at the given version.
func storedTicketAt(version int, status domain.TicketStatus, history ...domain.HistoryEvent) *domain.Ticket {
	entries := make([]domain.TicketHistoryEntry, 0, len(history))
	for i, event := range history {
		entries = append(entries, domain.TicketHistoryEntry{Timestamp: t0.Add(time.Duration(i) * time.Second), Event: event})
	}
	return domain.RehydrateTicket(domain.TicketSnapshot{
		ID:             uuid.NewString(),
		Title:          "VPN access",
		Description:    "details",
		RequesterEmail: "user@corp.com",
		Priority:       domain.TicketPriorityNormal,
		Status:         status,
		History:        entries,
		CreatedAt:      t0,
		UpdatedAt:      t0,
		Version:        version,
	})
}

func TestPostgresSaveInsertsNewTicket(t *testing.T) {
	ctx := context.Background()
	mock, repo := newMockRepository(t)
	ticket := newTicket(t, "VPN access", t0)
	require.NoError(t, repo.Add(ctx, ticket))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO tickets").
		WithArgs(ticket.ID(), "VPN access", "details", "user@corp.com",
			domain.TicketPriorityNormal, domain.TicketStatusNew, "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO ticket_history").
		WithArgs(ticket.ID(), 0, domain.EventCreated, "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Save(ctx, ticket))
	assert.Equal(t, 1, ticket.Version())
	assert.False(t, ticket.Dirty())
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.True(t, apperrors.IsCode(repo.Add(ctx, ticket), apperrors.CodeConflict))
}

func TestPostgresSaveAppendsHistoryAfterCommittedEntries(t *testing.T) {
	ctx := context.Background()
	mock, repo := newMockRepository(t)
	ticket := storedTicketAt(2, domain.TicketStatusInProgress, domain.EventCreated, domain.EventInProgress)
	require.NoError(t, ticket.AttachIssue("IT-7", "priority=High", t0.Add(time.Minute)))
	require.NoError(t, ticket.AwaitApproval("boss@corp.com", t0.Add(time.Minute)))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE tickets SET").
		WithArgs(domain.TicketStatusInProgress, "IT-7", pgxmock.AnyArg(), ticket.ID(), 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO ticket_history").
		WithArgs(ticket.ID(), 2, domain.EventIssueAttached, "priority=High", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO ticket_history").
		WithArgs(ticket.ID(), 3, domain.EventNote, "Awaiting approval from boss@corp.com", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Save(ctx, ticket))
	assert.Equal(t, 3, ticket.Version())
	assert.Empty(t, ticket.PendingHistory())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveStaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	mock, repo := newMockRepository(t)
	ticket := storedTicketAt(3, domain.TicketStatusNew, domain.EventCreated)
	require.NoError(t, ticket.Start(t0.Add(time.Minute)))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE tickets SET").
		WithArgs(domain.TicketStatusInProgress, "", pgxmock.AnyArg(), ticket.ID(), 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := repo.Save(ctx, ticket)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
	assert.Equal(t, 3, ticket.Version())
	assert.Len(t, ticket.PendingHistory(), 1, "pending history survives a failed save")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveRequiresAdd(t *testing.T) {
	mock, repo := newMockRepository(t)
	ticket := newTicket(t, "VPN access", t0)

	assert.ErrorIs(t, repo.Save(context.Background(), ticket), ErrNotAdded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDiscardReleasesStagedTicket(t *testing.T) {
	ctx := context.Background()
	mock, repo := newMockRepository(t)
	ticket := newTicket(t, "VPN access", t0)

	require.NoError(t, repo.Add(ctx, ticket))
	repo.Discard(ctx, ticket)
	assert.ErrorIs(t, repo.Save(ctx, ticket), ErrNotAdded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetRejectsMalformedID(t *testing.T) {
	mock, repo := newMockRepository(t)

	_, err := repo.Get(context.Background(), "not-a-uuid")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetMissingTicket(t *testing.T) {
	mock, repo := newMockRepository(t)
	id := uuid.NewString()

	mock.ExpectQuery(`FROM tickets WHERE id=\$1::uuid`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "title", "description", "requester_email", "priority", "status",
			"external_issue_key", "version", "created_at", "updated_at",
		}))

	_, err := repo.Get(context.Background(), id)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
