package domain

import (
	"strings"

	apperrors "github.com/spec-kit/it-request-service/pkg/util/errorutil"
)

// Decision is the classification outcome for a request.
type Decision string

const (
	DecisionAllowed          Decision = "Allowed"
	DecisionDenied           Decision = "Denied"
	DecisionRequiresApproval Decision = "RequiresApproval"
)

// ParseDecision accepts both "RequiresApproval" and "requires_approval" spellings.
func ParseDecision(raw string) (Decision, error) {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), "_", ""))
	switch normalized {
	case "allowed":
		return DecisionAllowed, nil
	case "denied":
		return DecisionDenied, nil
	case "requiresapproval":
		return DecisionRequiresApproval, nil
	}
	return "", apperrors.NewValidationError("unknown decision", map[string]any{"decision": raw})
}

// EffectivePriority is the priority used for issue-tracker triage. It does
// not change the requester's own priority on the ticket.
func (d Decision) EffectivePriority() TicketPriority {
	switch d {
	case DecisionDenied:
		return TicketPriorityLow
	case DecisionRequiresApproval:
		return TicketPriorityHigh
	default:
		return TicketPriorityNormal
	}
}

// Citation references the policy rule backing a decision or plan step.
type Citation struct {
	RuleID string
	Title  string
	URL    string
}

// Classification is the answer of the classification service. Citations may be empty.
type Classification struct {
	Decision  Decision
	Citations []Citation
}

// Plan is an ordered checklist with its own citations.
type Plan struct {
	Steps     []string
	Citations []Citation
}

// MergeCitations returns classification citations followed by planning
// citations. Order and duplicates are preserved.
func MergeCitations(classification, plan []Citation) []Citation {
	merged := make([]Citation, 0, len(classification)+len(plan))
	merged = append(merged, classification...)
	return append(merged, plan...)
}

// Saga steps whose failure never blocks ticket progression.
const (
	StepNotifyChecklist = "notify_checklist"
	StepNotifyApproval  = "notify_approval"
	StepIssueTransition = "issue_transition"
	StepIssueComment    = "issue_comment"
)

// StepFailure records a best-effort step that failed.
type StepFailure struct {
	Step  string
	Error string
}

// AgentResponse is the terminal output of the request workflow.
type AgentResponse struct {
	TicketID           string
	ExternalIssueKey   string
	Status             TicketStatus
	Decision           Decision
	Checklist          []string
	Citations          []Citation
	BestEffortFailures []StepFailure
}

// HasBestEffortFailures reports whether any side step failed.
func (r *AgentResponse) HasBestEffortFailures() bool {
	return r != nil && len(r.BestEffortFailures) > 0
}
