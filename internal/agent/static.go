package agent

import (
	"context"

	"github.com/spec-kit/it-request-service/internal/domain"
)

// StaticClassifier answers every request with the same decision. It stands
// in for the classification service when none is configured.
type StaticClassifier struct {
	Decision  domain.Decision
	Citations []domain.Citation
}

func (s StaticClassifier) Classify(ctx context.Context, text string) (domain.Classification, error) {
	if text == "" {
		return domain.Classification{}, ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return domain.Classification{}, err
	}
	decision := s.Decision
	if decision == "" {
		decision = domain.DecisionRequiresApproval
	}
	return domain.Classification{
		Decision:  decision,
		Citations: append([]domain.Citation{}, s.Citations...),
	}, nil
}

// StaticPlanner returns a fixed checklist.
type StaticPlanner struct {
	Steps     []string
	Citations []domain.Citation
}

func (s StaticPlanner) Plan(ctx context.Context, text string) (domain.Plan, error) {
	if text == "" {
		return domain.Plan{}, ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return domain.Plan{}, err
	}
	steps := s.Steps
	if len(steps) == 0 {
		steps = []string{"Review the request with the IT service desk"}
	}
	return domain.Plan{
		Steps:     append([]string{}, steps...),
		Citations: append([]domain.Citation{}, s.Citations...),
	}, nil
}
