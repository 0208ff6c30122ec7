package domain

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/spec-kit/it-request-service/pkg/util/errorutil"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "NEW"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// TicketPriority enumerates requester urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityNormal TicketPriority = "NORMAL"
	TicketPriorityHigh   TicketPriority = "HIGH"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityNormal, TicketPriorityHigh:
		return true
	}
	return false
}

// ParsePriority accepts any casing and maps the empty string to normal.
func ParsePriority(raw string) (TicketPriority, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return TicketPriorityNormal, nil
	}
	p := TicketPriority(strings.ToUpper(raw))
	if !p.Valid() {
		return "", apperrors.NewValidationError("invalid priority", map[string]any{"priority": raw})
	}
	return p, nil
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusNew:        {TicketStatusInProgress},
	TicketStatusInProgress: {TicketStatusResolved, TicketStatusClosed},
	TicketStatusResolved:   {TicketStatusClosed},
	TicketStatusClosed:     {},
}

// CanTransition reports whether current -> next is a legal edge.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// NewTicketInput carries the requester supplied fields.
type NewTicketInput struct {
	Title          string
	Description    string
	RequesterEmail string
	Priority       TicketPriority
}

// Ticket is the aggregate for support requests. Fields are only changed
// through its methods so the status machine and history stay consistent.
type Ticket struct {
	id               string
	title            string
	description      string
	requesterEmail   string
	priority         TicketPriority
	status           TicketStatus
	externalIssueKey string
	history          []TicketHistoryEntry
	createdAt        time.Time
	updatedAt        time.Time

	version   int
	committed int
}

// NewTicket validates input and creates a ticket in the NEW state.
func NewTicket(input NewTicketInput, at time.Time) (*Ticket, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	email := NormalizeEmail(input.RequesterEmail)

	details := map[string]any{}
	if title == "" {
		details["title"] = "required"
	}
	if description == "" {
		details["description"] = "required"
	}
	if email == "" {
		details["requester_email"] = "required"
	} else if _, err := mail.ParseAddress(email); err != nil {
		details["requester_email"] = "invalid"
	}
	priority := input.Priority
	if priority == "" {
		priority = TicketPriorityNormal
	}
	if !priority.Valid() {
		details["priority"] = "invalid"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket request", details)
	}

	at = at.UTC()
	t := &Ticket{
		id:             uuid.NewString(),
		title:          title,
		description:    description,
		requesterEmail: email,
		priority:       priority,
		status:         TicketStatusNew,
		createdAt:      at,
		updatedAt:      at,
	}
	t.record(EventCreated, "", at)
	return t, nil
}

// NormalizeEmail trims and lower-cases a contact address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (t *Ticket) ID() string                    { return t.id }
func (t *Ticket) Title() string                 { return t.title }
func (t *Ticket) Description() string           { return t.description }
func (t *Ticket) RequesterEmail() string        { return t.requesterEmail }
func (t *Ticket) Priority() TicketPriority      { return t.priority }
func (t *Ticket) Status() TicketStatus          { return t.status }
func (t *Ticket) ExternalIssueKey() string      { return t.externalIssueKey }
func (t *Ticket) HasExternalIssue() bool        { return t.externalIssueKey != "" }
func (t *Ticket) CreatedAt() time.Time          { return t.createdAt }
func (t *Ticket) UpdatedAt() time.Time          { return t.updatedAt }
func (t *Ticket) IsTerminal() bool              { return t.status == TicketStatusClosed }
func (t *Ticket) History() []TicketHistoryEntry { return append([]TicketHistoryEntry(nil), t.history...) }

// Start moves a new ticket into progress.
func (t *Ticket) Start(at time.Time) error {
	return t.transition(TicketStatusInProgress, EventInProgress, "", at)
}

// Resolve marks the request fulfilled.
func (t *Ticket) Resolve(at time.Time, notes string) error {
	return t.transition(TicketStatusResolved, EventResolved, notes, at)
}

// Close ends the ticket lifecycle, with or without a prior resolution.
func (t *Ticket) Close(at time.Time, notes string) error {
	return t.transition(TicketStatusClosed, EventClosed, notes, at)
}

// AttachIssue links the mirrored issue. The key is set at most once.
func (t *Ticket) AttachIssue(key, notes string, at time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return apperrors.NewValidationError("issue key required", nil)
	}
	if t.IsTerminal() {
		return apperrors.NewInvalidTransition(string(t.status), string(t.status))
	}
	if t.externalIssueKey != "" {
		return apperrors.NewConflict("external issue already attached", map[string]any{
			"ticket_id":    t.id,
			"existing_key": t.externalIssueKey,
			"key":          key,
		})
	}
	t.externalIssueKey = key
	if notes == "" {
		notes = key
	}
	t.record(EventIssueAttached, notes, at)
	return nil
}

// AddNote appends a free-text entry without touching status.
func (t *Ticket) AddNote(notes string, at time.Time) {
	t.record(EventNote, strings.TrimSpace(notes), at)
}

const awaitingApprovalPrefix = "Awaiting approval from "

// AwaitApproval parks an in-progress ticket with an attached issue until an
// approver decides. It is recorded as a NOTE naming the approver.
func (t *Ticket) AwaitApproval(approver string, at time.Time) error {
	if t.status != TicketStatusInProgress {
		return apperrors.NewInvalidTransition(string(t.status), string(t.status))
	}
	if t.externalIssueKey == "" {
		return apperrors.NewConflict("approval needs an attached issue", map[string]any{"ticket_id": t.id})
	}
	t.record(EventNote, awaitingApprovalPrefix+strings.TrimSpace(approver), at)
	return nil
}

// AwaitingApproval reports whether the ticket is parked for an approver.
// Only the latest history entry counts.
func (t *Ticket) AwaitingApproval() bool {
	n := len(t.history)
	if t.status != TicketStatusInProgress || t.externalIssueKey == "" || n == 0 {
		return false
	}
	last := t.history[n-1]
	return last.Event == EventNote && strings.HasPrefix(last.Notes, awaitingApprovalPrefix)
}

func (t *Ticket) transition(next TicketStatus, event HistoryEvent, notes string, at time.Time) error {
	if !CanTransition(t.status, next) {
		return apperrors.NewInvalidTransition(string(t.status), string(next))
	}
	t.status = next
	t.record(event, notes, at)
	return nil
}

// record appends a history entry; timestamps never go backwards.
func (t *Ticket) record(event HistoryEvent, notes string, at time.Time) {
	at = at.UTC()
	if n := len(t.history); n > 0 && at.Before(t.history[n-1].Timestamp) {
		at = t.history[n-1].Timestamp
	}
	t.history = append(t.history, TicketHistoryEntry{
		Timestamp: at,
		Event:     event,
		Notes:     notes,
	})
	t.updatedAt = at
}
