package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by every layer of the service.
const (
	CodeValidation        = "VALIDATION_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeConflict          = "CONFLICT"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeUpstreamFailure   = "UPSTREAM_FAILURE"
	CodeIssueTracker      = "ISSUE_TRACKER_FAILURE"
	CodePersistence       = "PERSISTENCE_ERROR"
	CodeCancelled         = "CANCELLED"
	CodeInternal          = "INTERNAL_ERROR"
)

// StatusClientClosedRequest is reported when the caller abandoned the request.
const StatusClientClosedRequest = 499

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Retryable  bool
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewInvalidTransition reports a state machine edge that does not exist.
func NewInvalidTransition(from, to string) error {
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("invalid transition from %s to %s", from, to),
		http.StatusConflict,
		map[string]any{"current": from, "requested": to})
}

// NewUpstreamFailure wraps a classification or planning failure.
func NewUpstreamFailure(err error, details map[string]any) error {
	return &DomainError{
		Code:       CodeUpstreamFailure,
		Message:    "upstream service failed",
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
		Details:    details,
		Err:        err,
	}
}

// NewIssueTrackerFailure wraps a failed issue creation.
func NewIssueTrackerFailure(err error, details map[string]any) error {
	return &DomainError{
		Code:       CodeIssueTracker,
		Message:    "issue tracker failed",
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
		Details:    details,
		Err:        err,
	}
}

// NewPersistenceError wraps a failed commit of ticket state.
func NewPersistenceError(err error, details map[string]any) error {
	return &DomainError{
		Code:       CodePersistence,
		Message:    "failed to persist ticket",
		HTTPStatus: http.StatusInternalServerError,
		Retryable:  true,
		Details:    details,
		Err:        err,
	}
}

// NewCancelled reports a workflow stopped by its caller.
func NewCancelled(err error, details map[string]any) error {
	return &DomainError{
		Code:       CodeCancelled,
		Message:    "request cancelled",
		HTTPStatus: StatusClientClosedRequest,
		Retryable:  true,
		Details:    details,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, context.Canceled) {
		return NewCancelled(err, nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

func MapError(err error) error {
	return ToDomainError(err)
}

// IsCode reports whether err carries the given DomainError code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == code
}

// IsRetryable reports whether the caller may safely retry the operation.
func IsRetryable(err error) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Retryable
}
