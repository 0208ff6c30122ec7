// Package notify delivers checklists and approval requests to people.
package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spec-kit/it-request-service/internal/remote"
)

// ErrNoRecipient is returned when a notification has nobody to go to.
var ErrNoRecipient = errors.New("notification recipient required")

// Notifier is the execution/notification port.
type Notifier interface {
	NotifyChecklist(ctx context.Context, recipient string, steps []string) error
	NotifyApproval(ctx context.Context, approver, issueKey, summary string) error
}

type checklistRequest struct {
	To    string   `json:"to"`
	Steps []string `json:"steps"`
}

type approvalRequest struct {
	ApproverEmail string `json:"approverEmail"`
	TicketKey     string `json:"ticketKey"`
	Summary       string `json:"summary"`
}

// HTTPNotifier calls the execution service.
type HTTPNotifier struct {
	client *remote.Client
}

// NewHTTPNotifier builds a notifier for the service at baseURL.
func NewHTTPNotifier(baseURL, apiKey string, timeout time.Duration) *HTTPNotifier {
	return &HTTPNotifier{client: remote.NewClient("notify", baseURL, apiKey, timeout)}
}

func (n *HTTPNotifier) NotifyChecklist(ctx context.Context, recipient string, steps []string) error {
	if strings.TrimSpace(recipient) == "" {
		return ErrNoRecipient
	}
	if steps == nil {
		steps = []string{}
	}
	return n.client.PostJSON(ctx, "/notify/checklist", checklistRequest{To: recipient, Steps: steps}, nil)
}

func (n *HTTPNotifier) NotifyApproval(ctx context.Context, approver, issueKey, summary string) error {
	if strings.TrimSpace(approver) == "" {
		return ErrNoRecipient
	}
	return n.client.PostJSON(ctx, "/notify/approval", approvalRequest{
		ApproverEmail: approver,
		TicketKey:     issueKey,
		Summary:       summary,
	}, nil)
}
