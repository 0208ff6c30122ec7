package dto

import (
	"time"

	"github.com/spec-kit/it-request-service/internal/domain"
	"github.com/spec-kit/it-request-service/internal/events"
	"github.com/spec-kit/it-request-service/internal/service"
)

// SubmitRequest payload for POST /requests.
type SubmitRequest struct {
	RequesterEmail string `json:"requesterEmail" validate:"required,email"`
	Title          string `json:"title" validate:"required,max=200"`
	Description    string `json:"description" validate:"required,max=10000"`
	Priority       string `json:"priority,omitempty" validate:"omitempty,oneof=low normal high LOW NORMAL HIGH"`
}

// ToService converts the payload to a workflow request.
func (r SubmitRequest) ToService() service.SubmitRequest {
	return service.SubmitRequest{
		RequesterEmail: r.RequesterEmail,
		Title:          r.Title,
		Description:    r.Description,
		Priority:       r.Priority,
	}
}

// Citation response.
type Citation struct {
	RuleID string `json:"ruleId"`
	Title  string `json:"title"`
	URL    string `json:"url,omitempty"`
}

// StepFailure response.
type StepFailure struct {
	Step  string `json:"step"`
	Error string `json:"error"`
}

// AgentResponse is the workflow outcome.
type AgentResponse struct {
	TicketID           string              `json:"ticketId"`
	ExternalIssueKey   string              `json:"externalIssueKey"`
	Status             domain.TicketStatus `json:"status"`
	Decision           domain.Decision     `json:"decision"`
	Checklist          []string            `json:"checklist"`
	Citations          []Citation          `json:"citations"`
	BestEffortFailures []StepFailure       `json:"bestEffortFailures"`
}

// NewAgentResponse maps the domain response.
func NewAgentResponse(resp *domain.AgentResponse) AgentResponse {
	citations := make([]Citation, 0, len(resp.Citations))
	for _, c := range resp.Citations {
		citations = append(citations, Citation{RuleID: c.RuleID, Title: c.Title, URL: c.URL})
	}
	checklist := resp.Checklist
	if checklist == nil {
		checklist = []string{}
	}
	return AgentResponse{
		TicketID:           resp.TicketID,
		ExternalIssueKey:   resp.ExternalIssueKey,
		Status:             resp.Status,
		Decision:           resp.Decision,
		Checklist:          checklist,
		Citations:          citations,
		BestEffortFailures: stepFailures(resp.BestEffortFailures),
	}
}

func stepFailures(in []domain.StepFailure) []StepFailure {
	out := make([]StepFailure, 0, len(in))
	for _, f := range in {
		out = append(out, StepFailure{Step: f.Step, Error: f.Error})
	}
	return out
}

// TicketSummary response.
type TicketSummary struct {
	ID               string                `json:"id"`
	Title            string                `json:"title"`
	Description      string                `json:"description"`
	Status           domain.TicketStatus   `json:"status"`
	ExternalIssueKey string                `json:"externalIssueKey"`
	RequesterEmail   string                `json:"requesterEmail"`
	Priority         domain.TicketPriority `json:"priority"`
	CreatedAt        time.Time             `json:"createdAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
}

// HistoryEntry response.
type HistoryEntry struct {
	Timestamp time.Time           `json:"timestamp"`
	Event     domain.HistoryEvent `json:"event"`
	Notes     string              `json:"notes,omitempty"`
}

// TicketDetail provides full ticket info.
type TicketDetail struct {
	TicketSummary
	History []HistoryEntry `json:"history"`
}

// NewTicketSummary maps a ticket.
func NewTicketSummary(t *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:               t.ID(),
		Title:            t.Title(),
		Description:      t.Description(),
		Status:           t.Status(),
		ExternalIssueKey: t.ExternalIssueKey(),
		RequesterEmail:   t.RequesterEmail(),
		Priority:         t.Priority(),
		CreatedAt:        t.CreatedAt(),
		UpdatedAt:        t.UpdatedAt(),
	}
}

// NewTicketDetail maps a ticket with its history.
func NewTicketDetail(t *domain.Ticket) TicketDetail {
	history := t.History()
	entries := make([]HistoryEntry, 0, len(history))
	for _, h := range history {
		entries = append(entries, HistoryEntry{Timestamp: h.Timestamp, Event: h.Event, Notes: h.Notes})
	}
	return TicketDetail{TicketSummary: NewTicketSummary(t), History: entries}
}

// TicketListQuery captures pagination for GET /tickets.
type TicketListQuery struct {
	Limit  int `query:"limit" validate:"omitempty,min=1,max=100"`
	Offset int `query:"offset" validate:"omitempty,min=0"`
}

// Event response.
type Event struct {
	ID        string           `json:"id"`
	Type      events.EventType `json:"type"`
	Actor     string           `json:"actor"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   any              `json:"payload,omitempty"`
}

// NewEvents maps a timeline.
func NewEvents(in []events.Event) []Event {
	out := make([]Event, 0, len(in))
	for _, e := range in {
		out = append(out, Event{ID: e.ID, Type: e.Type, Actor: e.Actor, Timestamp: e.Timestamp, Payload: e.Payload})
	}
	return out
}
