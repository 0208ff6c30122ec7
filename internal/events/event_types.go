package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/it-request-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventIssueAttached       EventType = "issue_attached"
	EventRequestClassified   EventType = "request_classified"
	EventStepFailed          EventType = "step_failed"
	EventWorkflowFailed      EventType = "workflow_failed"
	EventApprovalDecided     EventType = "approval_decided"
)

// ActorSystem marks events emitted by the workflow itself.
const ActorSystem = "system"

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// NewEvent stamps an event with a fresh id.
func NewEvent(eventType EventType, ticketID, actor string, at time.Time, payload any) Event {
	if actor == "" {
		actor = ActorSystem
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     actor,
		Timestamp: at.UTC(),
		Payload:   payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title          string                `json:"title"`
	RequesterEmail string                `json:"requester_email"`
	Priority       domain.TicketPriority `json:"priority"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// IssueAttachedPayload payload.
type IssueAttachedPayload struct {
	IssueKey string `json:"issue_key"`
	Priority string `json:"priority"`
}

// RequestClassifiedPayload payload.
type RequestClassifiedPayload struct {
	Decision  domain.Decision `json:"decision"`
	Steps     int             `json:"steps"`
	Citations int             `json:"citations"`
}

// StepFailedPayload payload.
type StepFailedPayload struct {
	Step  string `json:"step"`
	Error string `json:"error"`
}

// WorkflowFailedPayload payload.
type WorkflowFailedPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ApprovalDecidedPayload payload.
type ApprovalDecidedPayload struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment,omitempty"`
}
