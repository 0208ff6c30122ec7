package dto

import (
	"github.com/spec-kit/it-request-service/internal/domain"
	"github.com/spec-kit/it-request-service/internal/service"
)

// ApprovalRequest payload for POST /tickets/:id/approval.
type ApprovalRequest struct {
	Approved *bool  `json:"approved" validate:"required"`
	Comment  string `json:"comment" validate:"max=2000"`
}

// ApprovalResponse reports the decided ticket.
type ApprovalResponse struct {
	TicketID           string              `json:"ticketId"`
	ExternalIssueKey   string              `json:"externalIssueKey"`
	Status             domain.TicketStatus `json:"status"`
	Approved           bool                `json:"approved"`
	BestEffortFailures []StepFailure       `json:"bestEffortFailures"`
}

// NewApprovalResponse maps the service result.
func NewApprovalResponse(r *service.ApprovalResult) ApprovalResponse {
	return ApprovalResponse{
		TicketID:           r.TicketID,
		ExternalIssueKey:   r.ExternalIssueKey,
		Status:             r.Status,
		Approved:           r.Approved,
		BestEffortFailures: stepFailures(r.BestEffortFailures),
	}
}
