package saga

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoActivities is returned when a saga is executed without activities.
	ErrNoActivities = errors.New("saga: no activities to execute")

	// ErrInvalidActivity is returned when an activity has no forward step.
	ErrInvalidActivity = errors.New("saga: invalid activity")
)

// RejectionError is an explicit business-rule failure, such as insufficient
// stock or funds. It is never retried.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return e.Reason
}

// Reject builds a RejectionError.
func Reject(format string, args ...any) error {
	return &RejectionError{Reason: fmt.Sprintf(format, args...)}
}

// IsRejection reports whether err is, or wraps, a business rejection.
func IsRejection(err error) bool {
	var rejection *RejectionError
	return errors.As(err, &rejection)
}

type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string {
	return e.err.Error()
}

func (e *nonRetryableError) Unwrap() error {
	return e.err
}

// NonRetryable marks an infrastructure failure that must not be retried.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}

// IsTransient reports whether err should be retried: anything that is not a
// business rejection, not explicitly non-retryable and not a context error.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsRejection(err) {
		return false
	}
	var nonRetryable *nonRetryableError
	if errors.As(err, &nonRetryable) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
