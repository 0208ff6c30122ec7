// Package issuetracker mirrors tickets into the external issue tracker.
package issuetracker

import (
	"context"
	"errors"

	"github.com/spec-kit/it-request-service/internal/domain"
)

// Transition names agreed with the tracker workflow.
const (
	TransitionResolve = "Resolve Issue"
	TransitionClose   = "Close Issue"
)

// ErrUnknownTransition is returned when the issue has no transition with the requested name.
var ErrUnknownTransition = errors.New("unknown transition")

// Tracker is the issue-tracker port.
//
// CreateOrAttach is not safe to repeat for the same ticket; callers check
// the ticket's external key before invoking it.
type Tracker interface {
	CreateOrAttach(ctx context.Context, summary, description, priority string) (string, error)
	Transition(ctx context.Context, issueKey, transitionName string) error
	AddComment(ctx context.Context, issueKey, text string) error
}

// PriorityName maps a ticket priority to the tracker's priority names.
func PriorityName(p domain.TicketPriority) string {
	switch p {
	case domain.TicketPriorityLow:
		return "Low"
	case domain.TicketPriorityHigh:
		return "High"
	default:
		return "Medium"
	}
}
