package orchestrator

import (
	"context"
	"errors"

	"ai-agent/internal/llm"
)

// Code is a stable, client-facing error category.
type Code string

const (
	CodeInvalidRequest     Code = "INVALID_REQUEST"
	CodeBackendUnavailable Code = "BACKEND_UNAVAILABLE"
	CodeBackendRejected    Code = "BACKEND_REJECTED"
	CodeCancelled          Code = "CANCELLED"
	CodeDeadlineExceeded   Code = "DEADLINE_EXCEEDED"
	CodeInternal           Code = "INTERNAL"
)

// Error is the only error type Generate returns. Message is safe to show to
// clients; Err keeps the cause for logs and errors.Is.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf extracts the Code of err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// classify maps an LLM failure to a client-facing Error. The request
// context decides between caller-side and backend-side failures.
func classify(ctx context.Context, err error) *Error {
	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.Canceled):
		return &Error{Code: CodeCancelled, Message: "request cancelled", Err: err}
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return &Error{Code: CodeDeadlineExceeded, Message: "request deadline exceeded", Err: err}
	}
	if errors.Is(err, llm.ErrRateLimited) {
		return &Error{Code: CodeDeadlineExceeded, Message: "request deadline exceeded", Err: err}
	}
	if llm.IsRetryable(err) {
		return &Error{Code: CodeBackendUnavailable, Message: "generation backend unavailable", Err: err}
	}
	return &Error{Code: CodeBackendRejected, Message: "generation backend rejected the request", Err: err}
}
