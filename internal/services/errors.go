package services

import (
	"context"
	"errors"
	"fmt"
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

// AIError is any failure of a model call that could not be turned into a
// result. Cause is safe to show to the caller.
type AIError struct {
	Cause string
	Err   error
}

func (e *AIError) Error() string { return e.Cause }

func (e *AIError) Unwrap() error { return e.Err }

func newAIError(err error) *AIError {
	cause := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		cause = fmt.Sprintf("model call timed out: %v", err)
	}
	return &AIError{Cause: cause, Err: err}
}
