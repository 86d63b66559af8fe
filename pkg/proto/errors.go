package proto

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable machine-readable code attached to fatal task errors.
type ErrorCode string

const (
	// ErrCodeValidationExhausted indicates tool arguments stayed malformed
	// after the correction budget was spent.
	ErrCodeValidationExhausted ErrorCode = "validation_exhausted"
	// ErrCodeLoopBudget indicates a phase hit its iteration cap or wall-clock
	// timeout.
	ErrCodeLoopBudget ErrorCode = "loop_budget_exceeded"
	// ErrCodePlanParse indicates planning output was unparsable after the
	// single corrective retry.
	ErrCodePlanParse ErrorCode = "plan_parse_error"
	// ErrCodeToolExecution indicates a tool ran and failed fatally.
	ErrCodeToolExecution ErrorCode = "tool_execution_error"
	// ErrCodeTransport indicates the event channel closed unexpectedly.
	ErrCodeTransport ErrorCode = "transport_error"
	// ErrCodePartialApply indicates some staged changes failed during apply.
	ErrCodePartialApply ErrorCode = "partial_apply_error"
	// ErrCodeCloneFailed indicates the optional repository clone failed.
	ErrCodeCloneFailed ErrorCode = "clone_failed"
	// ErrCodeLLM indicates the language model gateway failed after retries.
	ErrCodeLLM ErrorCode = "llm_error"
	// ErrCodeInternal is the fallback for unclassified fatal errors.
	ErrCodeInternal ErrorCode = "internal_error"
)

// TaskError is a fatal, user-visible task failure. The message never carries
// internal state, stack traces, or credentials.
type TaskError struct {
	Code    ErrorCode
	Message string
	cause   error
}

// NewTaskError creates a TaskError with the given code and message.
func NewTaskError(code ErrorCode, format string, args ...any) *TaskError {
	return &TaskError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapTaskError creates a TaskError that records err as its cause. The cause
// is available for logging via Unwrap but is not part of the wire message.
func WrapTaskError(code ErrorCode, err error, format string, args ...any) *TaskError {
	return &TaskError{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *TaskError) Unwrap() error {
	return e.cause
}

// CodeOf extracts the error code from err, defaulting to internal_error.
func CodeOf(err error) ErrorCode {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Code
	}
	return ErrCodeInternal
}
