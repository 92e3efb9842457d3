package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when attempting to claim a job that's already claimed
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in waiting state")

	// ErrJobHeld is returned when claiming an active job whose owner is still heartbeating
	ErrJobHeld = errors.New("job is held by a live worker")

	// ErrInvalidPayload is returned when stored job data cannot be decoded
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrUnknownJobKind is returned when a job carries a kind no processor handles
	ErrUnknownJobKind = errors.New("unknown job kind")

	// ErrJobNotActive is returned when a terminal transition targets a job that is not active
	ErrJobNotActive = errors.New("job is not active")
)

// ValidationError reports a job request rejected before it reaches the queue.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new validation error for field
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is (or wraps) a ValidationError
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// UnknownJobKindError carries the kind that could not be dispatched.
type UnknownJobKindError struct {
	Kind Kind
}

func (e *UnknownJobKindError) Error() string {
	return fmt.Sprintf("unknown job type: %s", e.Kind)
}

func (e *UnknownJobKindError) Is(target error) bool {
	return target == ErrUnknownJobKind
}

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
