package issuetracker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/spec-kit/it-request-service/internal/remote"
)

// JiraConfig configures the Jira REST client.
type JiraConfig struct {
	BaseURL    string
	User       string
	Token      string
	ProjectKey string
	IssueType  string
	Timeout    time.Duration
	MaxRetries int
}

// Jira talks to the Jira Cloud REST API v3.
type Jira struct {
	client     *remote.Client
	projectKey string
	issueType  string
	maxRetries int
	newBackOff func() backoff.BackOff
	logger     *zap.Logger
}

// NewJira builds a Jira tracker using basic auth with an API token.
func NewJira(cfg JiraConfig, logger *zap.Logger) *Jira {
	client := remote.NewClient("jira", cfg.BaseURL, "", cfg.Timeout)
	client.Authorize = func(req *http.Request) {
		req.SetBasicAuth(cfg.User, cfg.Token)
	}
	issueType := cfg.IssueType
	if issueType == "" {
		issueType = "Task"
	}
	return &Jira{
		client:     client,
		projectKey: cfg.ProjectKey,
		issueType:  issueType,
		maxRetries: cfg.MaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
		logger: logger,
	}
}

type adfDoc struct {
	Type    string    `json:"type"`
	Version int       `json:"version"`
	Content []adfNode `json:"content"`
}

type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text,omitempty"`
	Content []adfNode `json:"content,omitempty"`
}

// plainDoc wraps text into an Atlassian document, one paragraph per line.
func plainDoc(text string) adfDoc {
	doc := adfDoc{Type: "doc", Version: 1}
	for _, line := range strings.Split(text, "\n") {
		paragraph := adfNode{Type: "paragraph"}
		if line != "" {
			paragraph.Content = []adfNode{{Type: "text", Text: line}}
		}
		doc.Content = append(doc.Content, paragraph)
	}
	return doc
}

type keyRef struct {
	Key string `json:"key,omitempty"`
}

type nameRef struct {
	Name string `json:"name"`
}

type createIssueRequest struct {
	Fields struct {
		Project     keyRef   `json:"project"`
		Summary     string   `json:"summary"`
		Description adfDoc   `json:"description"`
		IssueType   nameRef  `json:"issuetype"`
		Priority    nameRef  `json:"priority"`
		Labels      []string `json:"labels"`
	} `json:"fields"`
}

type createIssueResponse struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

type transitionsResponse struct {
	Transitions []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"transitions"`
}

type doTransitionRequest struct {
	Transition struct {
		ID string `json:"id"`
	} `json:"transition"`
}

type commentRequest struct {
	Body adfDoc `json:"body"`
}

// CreateOrAttach creates the mirrored issue. It is attempted once; a lost
// response could otherwise create duplicate issues.
func (j *Jira) CreateOrAttach(ctx context.Context, summary, description, priority string) (string, error) {
	var req createIssueRequest
	req.Fields.Project = keyRef{Key: j.projectKey}
	req.Fields.Summary = summary
	req.Fields.Description = plainDoc(description)
	req.Fields.IssueType = nameRef{Name: j.issueType}
	req.Fields.Priority = nameRef{Name: priority}
	req.Fields.Labels = []string{"it-support", "auto-generated"}

	var resp createIssueResponse
	if err := j.client.PostJSON(ctx, "/rest/api/3/issue", req, &resp); err != nil {
		return "", err
	}
	if resp.Key == "" {
		return "", fmt.Errorf("jira: create issue returned no key")
	}
	j.logger.Info("jira issue created", zap.String("issue_key", resp.Key), zap.String("priority", priority))
	return resp.Key, nil
}

// Transition moves the issue through the transition with the given name.
func (j *Jira) Transition(ctx context.Context, issueKey, transitionName string) error {
	path := "/rest/api/3/issue/" + url.PathEscape(issueKey) + "/transitions"
	return j.retry(ctx, "transition", func() error {
		var available transitionsResponse
		if err := j.client.GetJSON(ctx, path, &available); err != nil {
			return err
		}
		var req doTransitionRequest
		for _, tr := range available.Transitions {
			if strings.EqualFold(tr.Name, transitionName) {
				req.Transition.ID = tr.ID
				break
			}
		}
		if req.Transition.ID == "" {
			return backoff.Permanent(fmt.Errorf("%w: %q on %s", ErrUnknownTransition, transitionName, issueKey))
		}
		return j.client.PostJSON(ctx, path, req, nil)
	})
}

// AddComment annotates the issue.
func (j *Jira) AddComment(ctx context.Context, issueKey, text string) error {
	path := "/rest/api/3/issue/" + url.PathEscape(issueKey) + "/comment"
	return j.retry(ctx, "comment", func() error {
		return j.client.PostJSON(ctx, path, commentRequest{Body: plainDoc(text)}, nil)
	})
}

// retry repeats op on transport failures and 429/5xx gateway answers.
func (j *Jira) retry(ctx context.Context, name string, op func() error) error {
	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !remote.IsTemporary(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		j.logger.Warn("jira call failed; retrying", zap.String("op", name), zap.Int("attempt", attempt), zap.Error(err))
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(j.newBackOff(), uint64(max(j.maxRetries, 0))), ctx)
	return backoff.Retry(wrapped, b)
}
