// Package dispatch implements the function calling subsystem that lets the
// coach invoke structured side-effecting operations (logging a meal,
// adjusting a goal, querying history) with schema validated arguments,
// consistent error handling and bounded execution.
//
// The registry is built once at startup and immutable afterwards, so lookups
// need no locking. The dispatcher validates, executes under a timeout,
// retries transient failures with backoff, and converts every failure mode
// into a structured result the model can react to.
package dispatch

import (
	"context"
	"fmt"
)

// Error codes attached to FunctionError and surfaced to the model.
const (
	// CodeValidation marks schema / argument mismatches, including calls
	// naming no registered function.
	CodeValidation = "VALIDATION_ERROR"
	// CodeExecution marks failures inside the handler.
	CodeExecution = "EXECUTION_ERROR"
	// CodeTimeout marks a handler exceeding its execution budget.
	CodeTimeout = "TIMEOUT_ERROR"
)

// Handler executes a registered function with already-validated arguments.
//
// Handler implementations should:
//   - Be safe for concurrent use
//   - Respect ctx cancellation on blocking work
//   - Wrap retryable downstream failures with MarkTransient
//   - Return JSON-serializable payloads
type Handler interface {
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, args map[string]any) (any, error) {
	return f(ctx, args)
}

// Definition binds a unique function name and argument schema to a handler.
// Parameters follows the minimal JSON-schema subset validated by
// internal/util (type, properties, required, enum).
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     Handler
}

// FunctionError represents errors raised while dispatching a function call.
type FunctionError struct {
	Function string `json:"function"`        // Name of the function that failed
	Message  string `json:"message"`         // Error message
	Code     string `json:"code"`            // Error code for categorization
	Field    string `json:"field,omitempty"` // Offending argument, for validation errors
}

// Error implements the error interface.
func (e *FunctionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("function error [%s] in %s: %s", e.Code, e.Function, e.Message)
	}
	return fmt.Sprintf("function error in %s: %s", e.Function, e.Message)
}

// transientError tags an error as retryable.
type transientError struct{ err error }

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// MarkTransient wraps an error so the dispatcher retries it. Business-logic
// errors (invalid goal value, unknown exercise) must not be wrapped.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked retryable anywhere in its chain.
func IsTransient(err error) bool {
	for err != nil {
		if _, ok := err.(*transientError); ok {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
