package domain

import "time"

// TicketSnapshot is the storage representation of a ticket.
type TicketSnapshot struct {
	ID               string
	Title            string
	Description      string
	RequesterEmail   string
	Priority         TicketPriority
	Status           TicketStatus
	ExternalIssueKey string
	History          []TicketHistoryEntry
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Version          int
}

// Snapshot copies the current state, including uncommitted history.
func (t *Ticket) Snapshot() TicketSnapshot {
	return TicketSnapshot{
		ID:               t.id,
		Title:            t.title,
		Description:      t.description,
		RequesterEmail:   t.requesterEmail,
		Priority:         t.priority,
		Status:           t.status,
		ExternalIssueKey: t.externalIssueKey,
		History:          t.History(),
		CreatedAt:        t.createdAt,
		UpdatedAt:        t.updatedAt,
		Version:          t.version,
	}
}

// RehydrateTicket rebuilds a committed ticket loaded from storage.
func RehydrateTicket(s TicketSnapshot) *Ticket {
	history := append([]TicketHistoryEntry(nil), s.History...)
	return &Ticket{
		id:               s.ID,
		title:            s.Title,
		description:      s.Description,
		requesterEmail:   s.RequesterEmail,
		priority:         s.Priority,
		status:           s.Status,
		externalIssueKey: s.ExternalIssueKey,
		history:          history,
		createdAt:        s.CreatedAt,
		updatedAt:        s.UpdatedAt,
		version:          s.Version,
		committed:        len(history),
	}
}

// Version is the number of successful commits; zero means never stored.
func (t *Ticket) Version() int { return t.version }

// IsNew reports whether the ticket has never been committed.
func (t *Ticket) IsNew() bool { return t.version == 0 }

// PendingHistory returns the entries appended since the last commit.
func (t *Ticket) PendingHistory() []TicketHistoryEntry {
	return append([]TicketHistoryEntry(nil), t.history[t.committed:]...)
}

// Dirty reports whether the ticket has mutations not yet committed.
func (t *Ticket) Dirty() bool {
	return t.version == 0 || t.committed < len(t.history)
}

// MarkCommitted is called by repositories after a successful commit.
func (t *Ticket) MarkCommitted() {
	t.version++
	t.committed = len(t.history)
}
