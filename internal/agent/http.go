package agent

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/it-request-service/internal/domain"
	"github.com/spec-kit/it-request-service/internal/remote"
)

// ErrEmptyText is returned before any remote call when the text is blank.
var ErrEmptyText = errors.New("request text is empty")

type textRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Decision  string        `json:"decision"`
	Citations []citationDTO `json:"citations"`
}

type planResponse struct {
	Steps     []string      `json:"steps"`
	Citations []citationDTO `json:"citations"`
}

// HTTPClassifier calls the classification service at POST /classify.
type HTTPClassifier struct {
	client *remote.Client
}

// NewHTTPClassifier builds a classifier for baseURL.
func NewHTTPClassifier(baseURL, apiKey string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{client: remote.NewClient("classifier", baseURL, apiKey, timeout)}
}

func (h *HTTPClassifier) Classify(ctx context.Context, text string) (domain.Classification, error) {
	if text == "" {
		return domain.Classification{}, ErrEmptyText
	}
	var resp classifyResponse
	if err := h.client.PostJSON(ctx, "/classify", textRequest{Text: text}, &resp); err != nil {
		return domain.Classification{}, err
	}
	decision, err := domain.ParseDecision(resp.Decision)
	if err != nil {
		return domain.Classification{}, err
	}
	return domain.Classification{Decision: decision, Citations: toCitations(resp.Citations)}, nil
}

// HTTPPlanner calls the planning service at POST /plan.
type HTTPPlanner struct {
	client *remote.Client
}

// NewHTTPPlanner builds a planner for baseURL.
func NewHTTPPlanner(baseURL, apiKey string, timeout time.Duration) *HTTPPlanner {
	return &HTTPPlanner{client: remote.NewClient("planner", baseURL, apiKey, timeout)}
}

func (h *HTTPPlanner) Plan(ctx context.Context, text string) (domain.Plan, error) {
	if text == "" {
		return domain.Plan{}, ErrEmptyText
	}
	var resp planResponse
	if err := h.client.PostJSON(ctx, "/plan", textRequest{Text: text}, &resp); err != nil {
		return domain.Plan{}, err
	}
	steps := resp.Steps
	if steps == nil {
		steps = []string{}
	}
	return domain.Plan{Steps: steps, Citations: toCitations(resp.Citations)}, nil
}
