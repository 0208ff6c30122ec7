package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/it-request-service/internal/domain"
	"github.com/spec-kit/it-request-service/internal/events"
	"github.com/spec-kit/it-request-service/internal/issuetracker"
	"github.com/spec-kit/it-request-service/internal/observability"
	"github.com/spec-kit/it-request-service/internal/repository"
	apperrors "github.com/spec-kit/it-request-service/pkg/util/errorutil"
)

// ApprovalDependencies bundles what the approval callback needs.
type ApprovalDependencies struct {
	Tickets     repository.TicketRepository
	Tracker     issuetracker.Tracker
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	SaveRetries int
	Now         func() time.Time
}

// ApprovalDecision is an approver's verdict on a ticket awaiting approval.
type ApprovalDecision struct {
	Approver string
	Approved bool
	Comment  string
}

// ApprovalResult reports the ticket state after a decision.
type ApprovalResult struct {
	TicketID           string
	ExternalIssueKey   string
	Status             domain.TicketStatus
	Approved           bool
	BestEffortFailures []domain.StepFailure
}

// ApprovalService completes tickets the workflow left awaiting approval.
type ApprovalService struct {
	workflow
	tracker issuetracker.Tracker
}

// NewApprovalService constructs the service.
func NewApprovalService(deps ApprovalDependencies) *ApprovalService {
	return &ApprovalService{
		workflow: newWorkflow(deps.Tickets, deps.Dispatcher, deps.Logger, deps.Metrics, deps.Now, deps.SaveRetries),
		tracker:  deps.Tracker,
	}
}

// Decide resolves an approved ticket or closes a rejected one. Tracker calls
// are best-effort; the ticket status change is always committed.
func (s *ApprovalService) Decide(ctx context.Context, ticketID string, decision ApprovalDecision) (*ApprovalResult, error) {
	approver := domain.NormalizeEmail(decision.Approver)
	if approver == "" {
		return nil, apperrors.NewValidationError("approver required", nil)
	}
	ticket, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.AwaitingApproval() {
		return nil, apperrors.NewConflict("ticket is not awaiting approval", map[string]any{
			"ticket_id": ticket.ID(),
			"status":    ticket.Status(),
		})
	}

	verdict, transition := "Rejected", issuetracker.TransitionClose
	if decision.Approved {
		verdict, transition = "Approved", issuetracker.TransitionResolve
	}
	note := verdict + " by " + approver
	if comment := strings.TrimSpace(decision.Comment); comment != "" {
		note += ": " + comment
	}

	var failures []domain.StepFailure
	issueKey := ticket.ExternalIssueKey()
	for _, step := range []struct {
		name string
		call func() error
	}{
		{domain.StepIssueComment, func() error { return s.tracker.AddComment(ctx, issueKey, note) }},
		{domain.StepIssueTransition, func() error { return s.tracker.Transition(ctx, issueKey, transition) }},
	} {
		failure, err := s.bestEffort(ctx, ticket, step.name, step.call)
		if err != nil {
			return nil, err
		}
		if failure != nil {
			failures = append(failures, *failure)
		}
	}

	from := ticket.Status()
	if decision.Approved {
		err = ticket.Resolve(s.now(), note)
	} else {
		err = ticket.Close(s.now(), note)
	}
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, ticket); err != nil {
		return nil, err
	}

	s.logger.Info("approval decided",
		zap.String("ticket_id", ticket.ID()),
		zap.String("approver", approver),
		zap.Bool("approved", decision.Approved),
		zap.Int("best_effort_failures", len(failures)))
	s.publish(ctx, events.NewEvent(events.EventApprovalDecided, ticket.ID(), approver, s.now(), events.ApprovalDecidedPayload{
		Approved: decision.Approved,
		Comment:  strings.TrimSpace(decision.Comment),
	}))
	s.publishStatusChange(ctx, ticket, approver, from, strings.ToLower(verdict))

	if failures == nil {
		failures = []domain.StepFailure{}
	}
	return &ApprovalResult{
		TicketID:           ticket.ID(),
		ExternalIssueKey:   issueKey,
		Status:             ticket.Status(),
		Approved:           decision.Approved,
		BestEffortFailures: failures,
	}, nil
}
