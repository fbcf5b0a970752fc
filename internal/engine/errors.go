package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/resmodel/internal/ir"
)

// RuntimeError represents a failure outside the resource model itself:
// a builder rejecting a model or the store refusing a commit. Model errors
// are *ir.Error.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Address is the resource concerned, when there is one.
	Address string

	// Builder names the builder that failed.
	Builder string

	// Err is the underlying failure.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeBuilderFailed indicates a builder rejected a model.
	ErrCodeBuilderFailed RuntimeErrorCode = "BUILDER_FAILED"

	// ErrCodeCommitFailed indicates the store could not journal an operation.
	ErrCodeCommitFailed RuntimeErrorCode = "COMMIT_FAILED"

	// ErrCodeStepsExceeded indicates a composite exceeded the step limit.
	ErrCodeStepsExceeded RuntimeErrorCode = "STEPS_EXCEEDED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Builder != "" {
		msg += fmt.Sprintf(" (builder=%s)", e.Builder)
	}
	if e.Address != "" {
		msg += fmt.Sprintf(" (address=%s)", e.Address)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying failure.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsBuilderError returns true if the error is a builder failure.
// Uses errors.As to handle wrapped errors.
func IsBuilderError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeBuilderFailed
	}
	return false
}

// IsCommitError returns true if the error is a store commit failure.
func IsCommitError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeCommitFailed
	}
	return false
}

// IsStepsError returns true if a composite exceeded the step limit.
func IsStepsError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStepsExceeded
	}
	return false
}

// NewBuilderError creates a RuntimeError for a failing builder.
func NewBuilderError(builder string, addr ir.Address, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeBuilderFailed,
		Message: "builder rejected the model",
		Address: addr.String(),
		Builder: builder,
		Err:     err,
	}
}

// NewCommitError creates a RuntimeError for a failed journal commit.
func NewCommitError(seq int64, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeCommitFailed,
		Message: fmt.Sprintf("could not journal operation seq %d", seq),
		Err:     err,
	}
}

// NewStepsError creates a RuntimeError for an oversized composite.
func NewStepsError(steps, maxSteps int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeStepsExceeded,
		Message: fmt.Sprintf("composite has %d steps, limit is %d", steps, maxSteps),
	}
}
