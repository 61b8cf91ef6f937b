package errx

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure category of the query pipeline. Codes are part of
// the HTTP API surface and must stay stable.
type Code string

const (
	CodeUnauthenticated       Code = "unauthenticated"
	CodeRateLimited           Code = "rate_limited"
	CodeMalformedInput        Code = "malformed_input"
	CodeClassificationFailure Code = "classification_failure"
	CodeExecutionFailure      Code = "execution_failure"
	CodeUpstreamFailure       Code = "upstream_failure"
	CodeInternal              Code = "internal"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
)

// AppError wraps an underlying error with a failure code, HTTP status and a
// message that is safe to show to callers.
type AppError struct {
	Err     error
	Code    Code
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Code:    CodeInternal,
		Status:  status,
		Message: message,
	}
}

// Unauthenticated marks a request whose caller identity could not be resolved.
func Unauthenticated(err error) *AppError {
	return &AppError{Err: err, Code: CodeUnauthenticated, Status: http.StatusUnauthorized, Message: "authentication required"}
}

// RateLimited marks a request rejected by the sliding-window limiter.
func RateLimited(bucket string) *AppError {
	return &AppError{
		Code:    CodeRateLimited,
		Status:  http.StatusTooManyRequests,
		Message: fmt.Sprintf("rate limit exceeded (%s)", bucket),
	}
}

// MalformedInput marks a request body that could not be normalized into
// conversation messages. The turn is rejected before any model call.
func MalformedInput(err error, message string) *AppError {
	return &AppError{Err: err, Code: CodeMalformedInput, Status: http.StatusBadRequest, Message: message}
}

// Upstream marks a failed generation call.
func Upstream(err error) *AppError {
	return &AppError{Err: err, Code: CodeUpstreamFailure, Status: http.StatusBadGateway, Message: "the assistant is temporarily unavailable"}
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Code == t.Code
	}
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return errors.As(e.Err, target)
}

// CodeOf extracts the failure code from an error chain, or CodeInternal.
func CodeOf(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// StatusOf extracts the HTTP status from an error chain, or 500.
func StatusOf(err error) int {
	var ae *AppError
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}
