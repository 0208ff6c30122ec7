package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/it-request-service/internal/domain"
	apperrors "github.com/spec-kit/it-request-service/pkg/util/errorutil"
)

// awaitingApproval runs a request that stops for approval and returns its id.
func awaitingApproval(t *testing.T) (*harness, *ApprovalService, string) {
	t.Helper()
	h := newHarness(domain.DecisionRequiresApproval)
	resp, err := h.orchestrator.Handle(context.Background(), printerJam())
	require.NoError(t, err)
	return h, newApprovalService(h), resp.TicketID
}

func newApprovalService(h *harness) *ApprovalService {
	svc := NewApprovalService(ApprovalDependencies{
		Tickets:     h.repo,
		Tracker:     h.tracker,
		Logger:      zap.NewNop(),
		Metrics:     h.metrics,
		SaveRetries: 1,
		Now:         testClock(),
	})
	svc.newBackOff = zeroBackOff
	return svc
}

func TestApproveResolvesTicket(t *testing.T) {
	h, svc, id := awaitingApproval(t)

	result, err := svc.Decide(context.Background(), id, ApprovalDecision{Approver: "Boss@Corp.com", Approved: true, Comment: "ok"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, result.Status)
	assert.Empty(t, result.BestEffortFailures)
	assert.Equal(t, []string{"IT-42:Approved by boss@corp.com: ok"}, h.tracker.comments)
	assert.Equal(t, []string{"IT-42:Resolve Issue"}, h.tracker.transitions)

	stored, err := h.repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, stored.Status())
	last := stored.History()[len(stored.History())-1]
	assert.Equal(t, domain.EventResolved, last.Event)
	assert.Equal(t, "Approved by boss@corp.com: ok", last.Notes)
}

func TestRejectClosesTicket(t *testing.T) {
	h, svc, id := awaitingApproval(t)

	result, err := svc.Decide(context.Background(), id, ApprovalDecision{Approver: "boss@corp.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, result.Status)
	assert.Equal(t, []string{"IT-42:Close Issue"}, h.tracker.transitions)
}

func TestApprovalTrackerFailuresAreBestEffort(t *testing.T) {
	h, svc, id := awaitingApproval(t)
	h.tracker.commentErr = errors.New("comment failed")
	h.tracker.transitionErr = errors.New("transition failed")

	result, err := svc.Decide(context.Background(), id, ApprovalDecision{Approver: "boss@corp.com", Approved: true})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, result.Status)
	assert.Equal(t, []domain.StepFailure{
		{Step: domain.StepIssueComment, Error: "comment failed"},
		{Step: domain.StepIssueTransition, Error: "transition failed"},
	}, result.BestEffortFailures)
}

func TestApprovalRequiresPendingTicket(t *testing.T) {
	_, svc, id := awaitingApproval(t)

	_, err := svc.Decide(context.Background(), id, ApprovalDecision{Approver: "boss@corp.com", Approved: true})
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), id, ApprovalDecision{Approver: "boss@corp.com", Approved: false})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	_, err = svc.Decide(context.Background(), id, ApprovalDecision{})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	_, err = svc.Decide(context.Background(), "missing", ApprovalDecision{Approver: "boss@corp.com"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestApprovalRefusesInterruptedDeniedTicket(t *testing.T) {
	h := newHarness(domain.DecisionDenied)
	ctx, cancel := context.WithCancel(context.Background())
	h.tracker.commentHook = cancel
	h.tracker.commentErr = context.Canceled

	_, err := h.orchestrator.Handle(ctx, printerJam())
	require.True(t, apperrors.IsCode(err, apperrors.CodeCancelled))
	stored := h.onlyTicket(t)
	require.Equal(t, domain.TicketStatusInProgress, stored.Status())
	require.Equal(t, "IT-42", stored.ExternalIssueKey())

	_, err = newApprovalService(h).Decide(context.Background(), stored.ID(), ApprovalDecision{Approver: "boss@corp.com", Approved: true})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	after, err := h.repo.Get(context.Background(), stored.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, after.Status())
	assert.Empty(t, h.tracker.transitions)
}
