// Package agent holds the classification and planning ports. Both are pure
// queries over the request text and may be called concurrently.
package agent

import (
	"context"

	"github.com/spec-kit/it-request-service/internal/domain"
)

// Classifier maps request text to a decision with supporting citations.
type Classifier interface {
	Classify(ctx context.Context, text string) (domain.Classification, error)
}

// Planner maps request text to an ordered checklist with citations.
type Planner interface {
	Plan(ctx context.Context, text string) (domain.Plan, error)
}

type citationDTO struct {
	RuleID string `json:"rule_id"`
	Title  string `json:"title"`
	URL    string `json:"url,omitempty"`
}

func toCitations(in []citationDTO) []domain.Citation {
	out := make([]domain.Citation, 0, len(in))
	for _, c := range in {
		out = append(out, domain.Citation{RuleID: c.RuleID, Title: c.Title, URL: c.URL})
	}
	return out
}
