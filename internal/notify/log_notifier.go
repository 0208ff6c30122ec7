package notify

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// LogNotifier writes notifications to the log. It backs dry-run mode and
// deployments without an execution service.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyChecklist(ctx context.Context, recipient string, steps []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(recipient) == "" {
		return ErrNoRecipient
	}
	n.logger.Info("[dry-run] checklist notification",
		zap.String("to", recipient),
		zap.Strings("steps", steps))
	return nil
}

func (n *LogNotifier) NotifyApproval(ctx context.Context, approver, issueKey, summary string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(approver) == "" {
		return ErrNoRecipient
	}
	n.logger.Info("[dry-run] approval notification",
		zap.String("approver", approver),
		zap.String("issue_key", issueKey),
		zap.String("summary", summary))
	return nil
}
