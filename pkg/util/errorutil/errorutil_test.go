package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToDomainError(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))

	validation := NewValidationError("bad", map[string]any{"title": "required"})
	assert.Same(t, validation, ToDomainError(fmt.Errorf("wrapped: %w", validation)))

	cancelled := ToDomainError(fmt.Errorf("call: %w", context.Canceled))
	assert.Equal(t, CodeCancelled, cancelled.Code)
	assert.Equal(t, StatusClientClosedRequest, cancelled.HTTPStatus)

	internal := ToDomainError(errors.New("boom"))
	assert.Equal(t, CodeInternal, internal.Code)
	assert.Equal(t, http.StatusInternalServerError, internal.HTTPStatus)
}

func TestTaxonomy(t *testing.T) {
	cause := errors.New("remote 503")
	cases := []struct {
		err       error
		code      string
		status    int
		retryable bool
	}{
		{NewValidationError("x", nil), CodeValidation, http.StatusBadRequest, false},
		{NewNotFound("ticket", nil), CodeNotFound, http.StatusNotFound, false},
		{NewConflict("x", nil), CodeConflict, http.StatusConflict, false},
		{NewInvalidTransition("NEW", "CLOSED"), CodeInvalidTransition, http.StatusConflict, false},
		{NewUpstreamFailure(cause, nil), CodeUpstreamFailure, http.StatusBadGateway, true},
		{NewIssueTrackerFailure(cause, nil), CodeIssueTracker, http.StatusBadGateway, true},
		{NewPersistenceError(cause, nil), CodePersistence, http.StatusInternalServerError, true},
	}
	for _, tc := range cases {
		domainErr := ToDomainError(tc.err)
		assert.Equal(t, tc.code, domainErr.Code)
		assert.Equal(t, tc.status, domainErr.HTTPStatus, tc.code)
		assert.Equal(t, tc.retryable, IsRetryable(tc.err), tc.code)
		assert.True(t, IsCode(tc.err, tc.code))
	}
	assert.ErrorIs(t, NewUpstreamFailure(cause, nil), cause)
	assert.False(t, IsCode(cause, CodeInternal))
}

func TestInvalidTransitionDetails(t *testing.T) {
	domainErr := ToDomainError(NewInvalidTransition("NEW", "RESOLVED"))
	assert.Equal(t, map[string]any{"current": "NEW", "requested": "RESOLVED"}, domainErr.Details)
	assert.Equal(t, "invalid transition from NEW to RESOLVED", domainErr.Error())
}
