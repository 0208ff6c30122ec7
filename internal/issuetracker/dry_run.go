package issuetracker

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DryRun logs tracker calls instead of performing them.
type DryRun struct {
	projectKey string
	logger     *zap.Logger
}

// NewDryRun returns a tracker that fabricates issue keys for projectKey.
// Keys carry a random suffix so they stay unique across restarts.
func NewDryRun(projectKey string, logger *zap.Logger) *DryRun {
	if projectKey == "" {
		projectKey = "IT"
	}
	return &DryRun{projectKey: projectKey, logger: logger}
}

func (d *DryRun) CreateOrAttach(ctx context.Context, summary, description, priority string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := d.projectKey + "-DRY-" + dryRunSuffix()
	d.logger.Info("[dry-run] create issue",
		zap.String("issue_key", key),
		zap.String("summary", summary),
		zap.String("priority", priority))
	return key, nil
}

func (d *DryRun) Transition(ctx context.Context, issueKey, transitionName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !strings.EqualFold(transitionName, TransitionResolve) && !strings.EqualFold(transitionName, TransitionClose) {
		return fmt.Errorf("%w: %q on %s", ErrUnknownTransition, transitionName, issueKey)
	}
	d.logger.Info("[dry-run] transition issue", zap.String("issue_key", issueKey), zap.String("transition", transitionName))
	return nil
}

func (d *DryRun) AddComment(ctx context.Context, issueKey, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.logger.Info("[dry-run] comment on issue", zap.String("issue_key", issueKey), zap.String("comment", text))
	return nil
}

func dryRunSuffix() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(id[:12])
}
