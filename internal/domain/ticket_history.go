package domain

import "time"

// HistoryEvent tags what a history entry records.
type HistoryEvent string

const (
	EventCreated       HistoryEvent = "CREATED"
	EventIssueAttached HistoryEvent = "ISSUE_ATTACHED"
	EventInProgress    HistoryEvent = "IN_PROGRESS"
	EventResolved      HistoryEvent = "RESOLVED"
	EventClosed        HistoryEvent = "CLOSED"
	EventNote          HistoryEvent = "NOTE"
)

// TicketHistoryEntry is an immutable audit trail entry owned by its ticket.
type TicketHistoryEntry struct {
	Timestamp time.Time
	Event     HistoryEvent
	Notes     string
}
