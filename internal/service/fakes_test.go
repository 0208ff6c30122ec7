package service

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/spec-kit/it-request-service/internal/domain"
	"github.com/spec-kit/it-request-service/internal/issuetracker"
	"github.com/spec-kit/it-request-service/internal/repository"
)

type fakeClassifier struct {
	mu     sync.Mutex
	result domain.Classification
	err    error
	hook   func(ctx context.Context) error
	calls  int
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (domain.Classification, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.hook != nil {
		if err := f.hook(ctx); err != nil {
			return domain.Classification{}, err
		}
	}
	if f.err != nil {
		return domain.Classification{}, f.err
	}
	return f.result, nil
}

type fakePlanner struct {
	mu     sync.Mutex
	result domain.Plan
	err    error
	hook   func(ctx context.Context) error
	calls  int
}

func (f *fakePlanner) Plan(ctx context.Context, text string) (domain.Plan, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.hook != nil {
		if err := f.hook(ctx); err != nil {
			return domain.Plan{}, err
		}
	}
	if f.err != nil {
		return domain.Plan{}, f.err
	}
	return f.result, nil
}

type createCall struct {
	summary, description, priority string
}

type fakeTracker struct {
	mu            sync.Mutex
	key           string
	createErr     error
	transitionErr error
	commentErr    error
	commentHook   func()
	creates       []createCall
	transitions   []string
	comments      []string
}

func (f *fakeTracker) CreateOrAttach(ctx context.Context, summary, description, priority string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, createCall{summary, description, priority})
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.key, nil
}

func (f *fakeTracker) Transition(ctx context.Context, issueKey, transitionName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, issueKey+":"+transitionName)
	return f.transitionErr
}

func (f *fakeTracker) AddComment(ctx context.Context, issueKey, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, issueKey+":"+text)
	if f.commentHook != nil {
		f.commentHook()
	}
	return f.commentErr
}

type fakeNotifier struct {
	mu         sync.Mutex
	err        error
	hook       func()
	checklists map[string][]string
	approvals  []string
}

func (f *fakeNotifier) NotifyChecklist(ctx context.Context, recipient string, steps []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checklists == nil {
		f.checklists = make(map[string][]string)
	}
	f.checklists[recipient] = append(f.checklists[recipient], steps...)
	if f.hook != nil {
		f.hook()
	}
	return f.err
}

func (f *fakeNotifier) NotifyApproval(ctx context.Context, approver, issueKey, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approvals = append(f.approvals, approver+"|"+issueKey+"|"+summary)
	if f.hook != nil {
		f.hook()
	}
	return f.err
}

func (f *fakeNotifier) checklistCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.checklists)
}

// flakyRepo fails the next failures saves with err.
type flakyRepo struct {
	repository.TicketRepository
	mu       sync.Mutex
	failures int
	err      error
	saves    int
	discards []string
}

func (r *flakyRepo) Discard(ctx context.Context, ticket *domain.Ticket) {
	r.mu.Lock()
	r.discards = append(r.discards, ticket.ID())
	r.mu.Unlock()
	r.TicketRepository.Discard(ctx, ticket)
}

func (r *flakyRepo) Save(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	r.saves++
	if r.failures > 0 {
		r.failures--
		r.mu.Unlock()
		return r.err
	}
	r.mu.Unlock()
	return r.TicketRepository.Save(ctx, ticket)
}

func (r *flakyRepo) failNext(n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures, r.err = n, err
}

// testClock advances one second per reading.
func testClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func zeroBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }

var _ issuetracker.Tracker = (*fakeTracker)(nil)
