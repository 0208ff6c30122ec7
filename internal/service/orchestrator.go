package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/it-request-service/internal/agent"
	"github.com/spec-kit/it-request-service/internal/domain"
	"github.com/spec-kit/it-request-service/internal/events"
	"github.com/spec-kit/it-request-service/internal/issuetracker"
	"github.com/spec-kit/it-request-service/internal/notify"
	"github.com/spec-kit/it-request-service/internal/observability"
	"github.com/spec-kit/it-request-service/internal/repository"
	apperrors "github.com/spec-kit/it-request-service/pkg/util/errorutil"
)

const deniedComment = "Denied per policy"

// SubmitRequest is an incoming IT request. Priority is optional.
type SubmitRequest struct {
	RequesterEmail string
	Title          string
	Description    string
	Priority       string
}

// OrchestratorDependencies bundles the ports driven by the request workflow.
type OrchestratorDependencies struct {
	Tickets         repository.TicketRepository
	Classifier      agent.Classifier
	Planner         agent.Planner
	Tracker         issuetracker.Tracker
	Notifier        notify.Notifier
	Dispatcher      events.Dispatcher
	Logger          *zap.Logger
	Metrics         *observability.Metrics
	ApproverAddress string
	SaveRetries     int
	Now             func() time.Time
}

// RequestOrchestrator runs the request workflow for one ticket at a time:
// classify and plan, mirror into the issue tracker, then act on the decision.
type RequestOrchestrator struct {
	workflow
	classifier agent.Classifier
	planner    agent.Planner
	tracker    issuetracker.Tracker
	notifier   notify.Notifier
	approver   string
}

// NewRequestOrchestrator constructs the orchestrator.
func NewRequestOrchestrator(deps OrchestratorDependencies) *RequestOrchestrator {
	return &RequestOrchestrator{
		workflow:   newWorkflow(deps.Tickets, deps.Dispatcher, deps.Logger, deps.Metrics, deps.Now, deps.SaveRetries),
		classifier: deps.Classifier,
		planner:    deps.Planner,
		tracker:    deps.Tracker,
		notifier:   deps.Notifier,
		approver:   deps.ApproverAddress,
	}
}

// Handle creates a ticket for req and drives it as far as its decision allows.
// On error the ticket keeps the state it had reached, recorded in its history.
func (o *RequestOrchestrator) Handle(ctx context.Context, req SubmitRequest) (*domain.AgentResponse, error) {
	priority, err := domain.ParsePriority(req.Priority)
	if err != nil {
		return nil, err
	}
	ticket, err := domain.NewTicket(domain.NewTicketInput{
		Title:          req.Title,
		Description:    req.Description,
		RequesterEmail: req.RequesterEmail,
		Priority:       priority,
	}, o.now())
	if err != nil {
		return nil, err
	}

	log := o.logger.With(zap.String("ticket_id", ticket.ID()))
	if err := o.tickets.Add(ctx, ticket); err != nil {
		return nil, err
	}
	if err := o.save(ctx, ticket); err != nil {
		o.tickets.Discard(ctx, ticket)
		return nil, o.abort(ctx, ticket, "", err)
	}
	log.Info("ticket created", zap.String("requester", ticket.RequesterEmail()))
	o.publish(ctx, events.NewEvent(events.EventTicketCreated, ticket.ID(), "", o.now(), events.TicketCreatedPayload{
		Title:          ticket.Title(),
		RequesterEmail: ticket.RequesterEmail(),
		Priority:       ticket.Priority(),
	}))

	if err := o.start(ctx, ticket); err != nil {
		return nil, o.abort(ctx, ticket, "", err)
	}
	return o.run(ctx, ticket)
}

// Resume re-drives a ticket whose workflow stopped early. Classification and
// planning run again; the issue is only created when none is attached yet.
// Tickets parked for an approver are left to the approval callback.
func (o *RequestOrchestrator) Resume(ctx context.Context, ticketID string) (*domain.AgentResponse, error) {
	ticket, err := o.tickets.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	switch ticket.Status() {
	case domain.TicketStatusResolved, domain.TicketStatusClosed:
		return nil, apperrors.NewConflict("ticket workflow already finished", map[string]any{
			"ticket_id": ticket.ID(),
			"status":    ticket.Status(),
		})
	case domain.TicketStatusInProgress:
		if ticket.AwaitingApproval() {
			return nil, apperrors.NewConflict("ticket is awaiting approval", map[string]any{
				"ticket_id": ticket.ID(),
				"issue_key": ticket.ExternalIssueKey(),
			})
		}
	case domain.TicketStatusNew:
		if err := o.start(ctx, ticket); err != nil {
			return nil, o.abort(ctx, ticket, "", err)
		}
	}
	o.logger.Info("resuming ticket workflow",
		zap.String("ticket_id", ticket.ID()),
		zap.Bool("has_issue", ticket.HasExternalIssue()))
	return o.run(ctx, ticket)
}

func (o *RequestOrchestrator) start(ctx context.Context, ticket *domain.Ticket) error {
	from := ticket.Status()
	if err := ticket.Start(o.now()); err != nil {
		return err
	}
	if err := o.save(ctx, ticket); err != nil {
		return err
	}
	o.publishStatusChange(ctx, ticket, "", from, "")
	return nil
}

// run executes the workflow from an InProgress ticket onwards.
func (o *RequestOrchestrator) run(ctx context.Context, ticket *domain.Ticket) (*domain.AgentResponse, error) {
	log := o.logger.With(zap.String("ticket_id", ticket.ID()))

	classification, plan, err := o.consult(ctx, ticket.Description())
	if err != nil {
		if ctx.Err() != nil {
			return nil, o.abort(ctx, ticket, "", apperrors.NewCancelled(err, map[string]any{"ticket_id": ticket.ID()}))
		}
		return nil, o.haltWithNote(ctx, ticket, "",
			fmt.Sprintf("classification/planning failed: %v", err),
			apperrors.NewUpstreamFailure(err, map[string]any{"ticket_id": ticket.ID()}))
	}
	decision := classification.Decision
	log.Info("request classified",
		zap.String("decision", string(decision)),
		zap.Int("steps", len(plan.Steps)))
	o.publish(ctx, events.NewEvent(events.EventRequestClassified, ticket.ID(), "", o.now(), events.RequestClassifiedPayload{
		Decision:  decision,
		Steps:     len(plan.Steps),
		Citations: len(classification.Citations) + len(plan.Citations),
	}))

	if !ticket.HasExternalIssue() {
		if err := o.attachIssue(ctx, ticket, decision); err != nil {
			return nil, err
		}
	}

	var failures []domain.StepFailure
	collect := func(step string, call func() error) error {
		failure, err := o.bestEffort(ctx, ticket, step, call)
		if err != nil {
			return err
		}
		if failure != nil {
			failures = append(failures, *failure)
		}
		return nil
	}

	issueKey := ticket.ExternalIssueKey()
	from := ticket.Status()
	switch decision {
	case domain.DecisionAllowed:
		if err := collect(domain.StepNotifyChecklist, func() error {
			return o.notifier.NotifyChecklist(ctx, ticket.RequesterEmail(), plan.Steps)
		}); err != nil {
			return nil, o.abort(ctx, ticket, decision, err)
		}
		if err := collect(domain.StepIssueTransition, func() error {
			return o.tracker.Transition(ctx, issueKey, issuetracker.TransitionResolve)
		}); err != nil {
			return nil, o.abort(ctx, ticket, decision, err)
		}
		if err := ticket.Resolve(o.now(), "Allowed per policy"); err != nil {
			return nil, o.abort(ctx, ticket, decision, err)
		}
	case domain.DecisionDenied:
		if err := collect(domain.StepIssueComment, func() error {
			return o.tracker.AddComment(ctx, issueKey, deniedComment)
		}); err != nil {
			return nil, o.abort(ctx, ticket, decision, err)
		}
		if err := collect(domain.StepIssueTransition, func() error {
			return o.tracker.Transition(ctx, issueKey, issuetracker.TransitionClose)
		}); err != nil {
			return nil, o.abort(ctx, ticket, decision, err)
		}
		if err := ticket.Close(o.now(), deniedComment); err != nil {
			return nil, o.abort(ctx, ticket, decision, err)
		}
	case domain.DecisionRequiresApproval:
		if err := collect(domain.StepNotifyApproval, func() error {
			return o.notifier.NotifyApproval(ctx, o.approver, issueKey, ticket.Title())
		}); err != nil {
			return nil, o.abort(ctx, ticket, decision, err)
		}
		if err := ticket.AwaitApproval(o.approver, o.now()); err != nil {
			return nil, o.abort(ctx, ticket, decision, err)
		}
	default:
		return nil, o.abort(ctx, ticket, decision,
			apperrors.NewUpstreamFailure(fmt.Errorf("unsupported decision %q", decision), map[string]any{"ticket_id": ticket.ID()}))
	}

	if err := o.save(ctx, ticket); err != nil {
		return nil, o.abort(ctx, ticket, decision, err)
	}
	if ticket.Status() != from {
		o.publishStatusChange(ctx, ticket, "", from, string(decision))
	}

	outcome := "completed"
	if len(failures) > 0 {
		outcome = "completed_with_failures"
	}
	o.metrics.RecordSagaOutcome(string(decision), outcome)
	log.Info("request workflow finished",
		zap.String("decision", string(decision)),
		zap.String("status", string(ticket.Status())),
		zap.String("issue_key", issueKey),
		zap.Int("best_effort_failures", len(failures)))

	if failures == nil {
		failures = []domain.StepFailure{}
	}
	checklist := append([]string{}, plan.Steps...)
	return &domain.AgentResponse{
		TicketID:           ticket.ID(),
		ExternalIssueKey:   issueKey,
		Status:             ticket.Status(),
		Decision:           decision,
		Checklist:          checklist,
		Citations:          domain.MergeCitations(classification.Citations, plan.Citations),
		BestEffortFailures: failures,
	}, nil
}

// consult runs classification and planning concurrently and waits for both.
// Errors from either side are joined.
func (o *RequestOrchestrator) consult(ctx context.Context, text string) (domain.Classification, domain.Plan, error) {
	var (
		classification domain.Classification
		plan           domain.Plan
		classifyErr    error
		planErr        error
		g              errgroup.Group
	)
	g.Go(func() error {
		classification, classifyErr = o.classifier.Classify(ctx, text)
		if classifyErr != nil {
			classifyErr = fmt.Errorf("classification: %w", classifyErr)
		}
		return classifyErr
	})
	g.Go(func() error {
		plan, planErr = o.planner.Plan(ctx, text)
		if planErr != nil {
			planErr = fmt.Errorf("planning: %w", planErr)
		}
		return planErr
	})
	_ = g.Wait()

	if err := errors.Join(classifyErr, planErr); err != nil {
		return domain.Classification{}, domain.Plan{}, err
	}
	return classification, plan, nil
}

// attachIssue creates the mirrored issue and commits its key. It is only
// reached while the ticket has no key.
func (o *RequestOrchestrator) attachIssue(ctx context.Context, ticket *domain.Ticket, decision domain.Decision) error {
	priority := issuetracker.PriorityName(decision.EffectivePriority())
	key, err := o.tracker.CreateOrAttach(ctx, ticket.Title(), ticket.Description(), priority)
	if err != nil {
		if ctx.Err() != nil {
			return o.abort(ctx, ticket, decision, apperrors.NewCancelled(err, map[string]any{"ticket_id": ticket.ID()}))
		}
		return o.haltWithNote(ctx, ticket, decision,
			fmt.Sprintf("issue creation failed: %v", err),
			apperrors.NewIssueTrackerFailure(err, map[string]any{"ticket_id": ticket.ID(), "priority": priority}))
	}

	if err := ticket.AttachIssue(key, "priority="+priority, o.now()); err != nil {
		return o.abort(ctx, ticket, decision, err)
	}
	if err := o.save(ctx, ticket); err != nil {
		return o.abort(ctx, ticket, decision, err)
	}
	o.logger.Info("issue attached",
		zap.String("ticket_id", ticket.ID()),
		zap.String("issue_key", key),
		zap.String("priority", priority))
	o.publish(ctx, events.NewEvent(events.EventIssueAttached, ticket.ID(), "", o.now(), events.IssueAttachedPayload{
		IssueKey: key,
		Priority: priority,
	}))
	return nil
}

// haltWithNote records why the workflow stopped and returns cause. A failed
// save of the note takes precedence since it must not be lost.
func (o *RequestOrchestrator) haltWithNote(ctx context.Context, ticket *domain.Ticket, decision domain.Decision, note string, cause error) error {
	ticket.AddNote(note, o.now())
	if err := o.save(ctx, ticket); err != nil {
		return o.abort(ctx, ticket, decision, errors.Join(err, cause))
	}
	return o.abort(ctx, ticket, decision, cause)
}

// abort logs and reports a workflow that stopped before its terminal step.
func (o *RequestOrchestrator) abort(ctx context.Context, ticket *domain.Ticket, decision domain.Decision, err error) error {
	domainErr := apperrors.ToDomainError(err)
	o.metrics.RecordSagaOutcome(string(decision), domainErr.Code)
	fields := []zap.Field{
		zap.String("ticket_id", ticket.ID()),
		zap.String("status", string(ticket.Status())),
		zap.String("code", domainErr.Code),
		zap.Error(err),
	}
	if domainErr.Code == apperrors.CodeCancelled {
		o.logger.Warn("request workflow cancelled", fields...)
		return err
	}
	o.logger.Error("request workflow failed", fields...)
	o.publish(ctx, events.NewEvent(events.EventWorkflowFailed, ticket.ID(), "", o.now(), events.WorkflowFailedPayload{
		Code:    domainErr.Code,
		Message: err.Error(),
	}))
	return err
}
