package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/it-request-service/internal/domain"
	"github.com/spec-kit/it-request-service/internal/events"
	"github.com/spec-kit/it-request-service/internal/observability"
	"github.com/spec-kit/it-request-service/internal/repository"
	apperrors "github.com/spec-kit/it-request-service/pkg/util/errorutil"
)

type harness struct {
	orchestrator *RequestOrchestrator
	repo         *flakyRepo
	classifier   *fakeClassifier
	planner      *fakePlanner
	tracker      *fakeTracker
	notifier     *fakeNotifier
	log          *events.MemoryEventLog
	metrics      *observability.Metrics
}

func newHarness(decision domain.Decision) *harness {
	h := &harness{
		repo: &flakyRepo{TicketRepository: repository.NewMemoryTicketRepository()},
		classifier: &fakeClassifier{result: domain.Classification{
			Decision:  decision,
			Citations: []domain.Citation{{RuleID: "HW-1", Title: "Hardware"}},
		}},
		planner: &fakePlanner{result: domain.Plan{
			Steps:     []string{"Open tray", "Clear jam"},
			Citations: []domain.Citation{{RuleID: "KB-7", Title: "Printers", URL: "https://kb/7"}},
		}},
		tracker:  &fakeTracker{key: "IT-42"},
		notifier: &fakeNotifier{},
		log:      events.NewMemoryEventLog(0),
		metrics:  observability.NewMetrics(),
	}
	dispatcher := events.NewInMemoryDispatcher()
	dispatcher.SubscribeAll(h.log.Append)
	h.orchestrator = NewRequestOrchestrator(OrchestratorDependencies{
		Tickets:         h.repo,
		Classifier:      h.classifier,
		Planner:         h.planner,
		Tracker:         h.tracker,
		Notifier:        h.notifier,
		Dispatcher:      dispatcher,
		Logger:          zap.NewNop(),
		Metrics:         h.metrics,
		ApproverAddress: "approvals@corp.com",
		SaveRetries:     2,
		Now:             testClock(),
	})
	h.orchestrator.newBackOff = zeroBackOff
	return h
}

func printerJam() SubmitRequest {
	return SubmitRequest{
		RequesterEmail: "A@Corp.com",
		Title:          "Printer jam",
		Description:    "Tray 2 stuck",
	}
}

func historyEvents(ticket *domain.Ticket) []domain.HistoryEvent {
	var out []domain.HistoryEvent
	for _, entry := range ticket.History() {
		out = append(out, entry.Event)
	}
	return out
}

func (h *harness) onlyTicket(t *testing.T) *domain.Ticket {
	t.Helper()
	tickets, err := h.repo.List(context.Background(), repository.ListOptions{})
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	return tickets[0]
}

func TestHandleAllowedResolvesTicket(t *testing.T) {
	h := newHarness(domain.DecisionAllowed)

	resp, err := h.orchestrator.Handle(context.Background(), printerJam())
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusResolved, resp.Status)
	assert.Equal(t, "IT-42", resp.ExternalIssueKey)
	assert.Equal(t, domain.DecisionAllowed, resp.Decision)
	assert.Equal(t, []string{"Open tray", "Clear jam"}, resp.Checklist)
	assert.Equal(t, []domain.Citation{
		{RuleID: "HW-1", Title: "Hardware"},
		{RuleID: "KB-7", Title: "Printers", URL: "https://kb/7"},
	}, resp.Citations)
	assert.Empty(t, resp.BestEffortFailures)

	stored, err := h.repo.Get(context.Background(), resp.TicketID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, stored.Status())
	assert.Equal(t, "a@corp.com", stored.RequesterEmail())
	assert.Equal(t, domain.TicketPriorityNormal, stored.Priority())
	assert.Equal(t, "IT-42", stored.ExternalIssueKey())
	assert.Equal(t, []domain.HistoryEvent{
		domain.EventCreated, domain.EventInProgress, domain.EventIssueAttached, domain.EventResolved,
	}, historyEvents(stored))
	assert.Equal(t, "priority=Medium", stored.History()[2].Notes)

	require.Len(t, h.tracker.creates, 1)
	assert.Equal(t, createCall{"Printer jam", "Tray 2 stuck", "Medium"}, h.tracker.creates[0])
	assert.Equal(t, []string{"IT-42:Resolve Issue"}, h.tracker.transitions)
	assert.Equal(t, 1, h.notifier.checklistCalls())
	assert.Equal(t, []string{"Open tray", "Clear jam"}, h.notifier.checklists["a@corp.com"])
	assert.Equal(t, int64(1), h.metrics.Snapshot().SagaOutcomes["Allowed|completed"])
}

func TestHandleDeniedClosesTicket(t *testing.T) {
	h := newHarness(domain.DecisionDenied)

	resp, err := h.orchestrator.Handle(context.Background(), printerJam())
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusClosed, resp.Status)
	assert.Equal(t, []string{"IT-42:Denied per policy"}, h.tracker.comments)
	assert.Equal(t, []string{"IT-42:Close Issue"}, h.tracker.transitions)
	assert.Equal(t, "Low", h.tracker.creates[0].priority)
	assert.Zero(t, h.notifier.checklistCalls())

	stored := h.onlyTicket(t)
	assert.Equal(t, domain.TicketStatusClosed, stored.Status())
	assert.True(t, stored.IsTerminal())
}

func TestHandleRequiresApprovalStaysInProgress(t *testing.T) {
	h := newHarness(domain.DecisionRequiresApproval)

	resp, err := h.orchestrator.Handle(context.Background(), printerJam())
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusInProgress, resp.Status)
	assert.Equal(t, []string{"approvals@corp.com|IT-42|Printer jam"}, h.notifier.approvals)
	assert.Equal(t, "High", h.tracker.creates[0].priority)
	assert.Empty(t, h.tracker.transitions)

	stored := h.onlyTicket(t)
	assert.Equal(t, domain.TicketStatusInProgress, stored.Status())
	assert.True(t, stored.AwaitingApproval())
	last := stored.History()[len(stored.History())-1]
	assert.Equal(t, domain.EventNote, last.Event)
	assert.Equal(t, "Awaiting approval from approvals@corp.com", last.Notes)
}

func TestHandleClassificationTimeoutHaltsBeforeIssue(t *testing.T) {
	h := newHarness(domain.DecisionAllowed)
	h.classifier.err = context.DeadlineExceeded

	resp, err := h.orchestrator.Handle(context.Background(), printerJam())
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUpstreamFailure))
	assert.True(t, apperrors.IsRetryable(err))

	stored := h.onlyTicket(t)
	assert.Equal(t, domain.TicketStatusInProgress, stored.Status())
	assert.False(t, stored.HasExternalIssue())
	assert.Empty(t, h.tracker.creates)
	last := stored.History()[len(stored.History())-1]
	assert.Equal(t, domain.EventNote, last.Event)
	assert.Contains(t, last.Notes, "classification")

	timeline, err := h.log.Timeline(context.Background(), stored.ID(), 0)
	require.NoError(t, err)
	assert.Equal(t, events.EventWorkflowFailed, timeline[len(timeline)-1].Type)
}

func TestHandleReportsBothUpstreamFailures(t *testing.T) {
	h := newHarness(domain.DecisionAllowed)
	h.classifier.err = errors.New("classifier down")
	h.planner.err = errors.New("planner down")

	_, err := h.orchestrator.Handle(context.Background(), printerJam())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUpstreamFailure))
	assert.ErrorContains(t, err, "classifier down")
	assert.ErrorContains(t, err, "planner down")
	assert.Empty(t, h.tracker.creates)
}

func TestHandleRunsClassificationAndPlanningConcurrently(t *testing.T) {
	h := newHarness(domain.DecisionAllowed)
	classifying := make(chan struct{})
	planning := make(chan struct{})
	waitFor := func(started, other chan struct{}) func(context.Context) error {
		return func(ctx context.Context) error {
			close(started)
			select {
			case <-other:
				return nil
			case <-time.After(2 * time.Second):
				return errors.New("calls were not concurrent")
			}
		}
	}
	h.classifier.hook = waitFor(classifying, planning)
	h.planner.hook = waitFor(planning, classifying)

	_, err := h.orchestrator.Handle(context.Background(), printerJam())
	require.NoError(t, err)
}

func TestHandleTransitionFailureIsBestEffort(t *testing.T) {
	h := newHarness(domain.DecisionAllowed)
	h.tracker.transitionErr = errors.New("jira 500")

	resp, err := h.orchestrator.Handle(context.Background(), printerJam())
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, resp.Status)
	assert.True(t, resp.HasBestEffortFailures())
	assert.Equal(t, []domain.StepFailure{{Step: domain.StepIssueTransition, Error: "jira 500"}}, resp.BestEffortFailures)
	assert.Equal(t, domain.TicketStatusResolved, h.onlyTicket(t).Status())
	assert.Equal(t, int64(1), h.metrics.Snapshot().StepFailures[domain.StepIssueTransition])
}

func TestHandleNotificationFailureIsBestEffort(t *testing.T) {
	h := newHarness(domain.DecisionRequiresApproval)
	h.notifier.err = errors.New("smtp down")

	resp, err := h.orchestrator.Handle(context.Background(), printerJam())
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, resp.Status)
	require.Len(t, resp.BestEffortFailures, 1)
	assert.Equal(t, domain.StepNotifyApproval, resp.BestEffortFailures[0].Step)
}

func TestHandleIssueTrackerFailureThenResume(t *testing.T) {
	h := newHarness(domain.DecisionAllowed)
	h.tracker.createErr = errors.New("jira unavailable")

	_, err := h.orchestrator.Handle(context.Background(), printerJam())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeIssueTracker))

	stored := h.onlyTicket(t)
	assert.Equal(t, domain.TicketStatusInProgress, stored.Status())
	assert.False(t, stored.HasExternalIssue())

	h.tracker.createErr = nil
	resp, err := h.orchestrator.Resume(context.Background(), stored.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, resp.Status)
	assert.Equal(t, "IT-42", resp.ExternalIssueKey)
	assert.Len(t, h.tracker.creates, 2)
}

func TestResumeNeverCreatesSecondIssue(t *testing.T) {
	h := newHarness(domain.DecisionRequiresApproval)
	ctx, cancel := context.WithCancel(context.Background())
	h.notifier.hook = cancel
	h.notifier.err = context.Canceled

	_, err := h.orchestrator.Handle(ctx, printerJam())
	require.True(t, apperrors.IsCode(err, apperrors.CodeCancelled))
	stored := h.onlyTicket(t)
	assert.False(t, stored.AwaitingApproval())

	h.notifier.hook = nil
	h.notifier.err = nil
	resp, err := h.orchestrator.Resume(context.Background(), stored.ID())
	require.NoError(t, err)
	assert.Equal(t, "IT-42", resp.ExternalIssueKey)
	assert.True(t, h.onlyTicket(t).AwaitingApproval())

	for i := 0; i < 2; i++ {
		_, err = h.orchestrator.Resume(context.Background(), stored.ID())
		assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
	}
	assert.Len(t, h.tracker.creates, 1)
	assert.Len(t, h.notifier.approvals, 2)
}

func TestResumeRefusesFinishedTickets(t *testing.T) {
	h := newHarness(domain.DecisionAllowed)
	resp, err := h.orchestrator.Handle(context.Background(), printerJam())
	require.NoError(t, err)

	_, err = h.orchestrator.Resume(context.Background(), resp.TicketID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
	assert.Len(t, h.tracker.creates, 1)

	_, err = h.orchestrator.Resume(context.Background(), "missing")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestResumeAfterCancellationKeepsAttachedIssue(t *testing.T) {
	h := newHarness(domain.DecisionAllowed)
	ctx, cancel := context.WithCancel(context.Background())
	h.notifier.hook = cancel
	h.notifier.err = context.Canceled

	_, err := h.orchestrator.Handle(ctx, printerJam())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeCancelled))

	stored := h.onlyTicket(t)
	assert.Equal(t, domain.TicketStatusInProgress, stored.Status())
	assert.Equal(t, "IT-42", stored.ExternalIssueKey())

	h.notifier.hook = nil
	h.notifier.err = nil
	resp, err := h.orchestrator.Resume(context.Background(), stored.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, resp.Status)
	assert.Len(t, h.tracker.creates, 1)
}

func TestHandleCancelledDuringClassification(t *testing.T) {
	h := newHarness(domain.DecisionAllowed)
	ctx, cancel := context.WithCancel(context.Background())
	h.classifier.hook = func(context.Context) error {
		cancel()
		return context.Canceled
	}

	_, err := h.orchestrator.Handle(ctx, printerJam())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeCancelled))

	stored := h.onlyTicket(t)
	assert.Equal(t, domain.TicketStatusInProgress, stored.Status())
	assert.Equal(t, []domain.HistoryEvent{domain.EventCreated, domain.EventInProgress}, historyEvents(stored))
	assert.Empty(t, h.tracker.creates)
}

func TestHandleRejectsInvalidInput(t *testing.T) {
	h := newHarness(domain.DecisionAllowed)

	_, err := h.orchestrator.Handle(context.Background(), SubmitRequest{RequesterEmail: "a@corp.com", Description: "x"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	_, err = h.orchestrator.Handle(context.Background(), SubmitRequest{RequesterEmail: "a@corp.com", Title: "t", Description: "x", Priority: "urgent"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	tickets, err := h.repo.List(context.Background(), repository.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, tickets)
	assert.Zero(t, h.classifier.calls)
}

func TestHandleKeepsRequesterPriority(t *testing.T) {
	h := newHarness(domain.DecisionDenied)
	req := printerJam()
	req.Priority = "high"

	_, err := h.orchestrator.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityHigh, h.onlyTicket(t).Priority())
	assert.Equal(t, "Low", h.tracker.creates[0].priority)
}

func TestHandleRetriesTransientSaveFailures(t *testing.T) {
	h := newHarness(domain.DecisionAllowed)
	h.repo.failNext(2, errors.New("connection reset"))

	resp, err := h.orchestrator.Handle(context.Background(), printerJam())
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, h.onlyTicket(t).Status())
	assert.Equal(t, resp.TicketID, h.onlyTicket(t).ID())
	assert.Empty(t, h.repo.discards)
}

func TestHandleSurfacesPersistenceError(t *testing.T) {
	h := newHarness(domain.DecisionAllowed)
	h.repo.failNext(10, errors.New("disk full"))

	_, err := h.orchestrator.Handle(context.Background(), printerJam())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodePersistence))
	assert.Equal(t, 3, h.repo.saves)
	assert.Zero(t, h.classifier.calls)
	assert.Len(t, h.repo.discards, 1)
}

func TestHandleEmptyCitationsStillMerge(t *testing.T) {
	h := newHarness(domain.DecisionAllowed)
	h.classifier.result.Citations = nil

	resp, err := h.orchestrator.Handle(context.Background(), printerJam())
	require.NoError(t, err)
	assert.Equal(t, []domain.Citation{{RuleID: "KB-7", Title: "Printers", URL: "https://kb/7"}}, resp.Citations)
}

func TestHandlePublishesTimeline(t *testing.T) {
	h := newHarness(domain.DecisionAllowed)

	resp, err := h.orchestrator.Handle(context.Background(), printerJam())
	require.NoError(t, err)

	timeline, err := h.log.Timeline(context.Background(), resp.TicketID, 0)
	require.NoError(t, err)
	var types []events.EventType
	for _, e := range timeline {
		types = append(types, e.Type)
	}
	assert.Equal(t, []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventRequestClassified,
		events.EventIssueAttached,
		events.EventTicketStatusChanged,
	}, types)
}
