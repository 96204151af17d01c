// Package model defines the vendor-neutral LLM client boundary. Adapters for
// concrete providers live in the anthropic and openai subpackages; the
// orchestrator only sees Request / Response plus a coarse retryability
// classification of provider failures.
package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/peakform/coachcore/core"
)

// FunctionDecl declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (minimal subset).
type FunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by the orchestrator.
type Request struct {
	System    string                     `json:"system"`    // persona fragment + context block
	Messages  []core.ConversationMessage `json:"messages"`  // conversation window, chronological
	Functions []FunctionDecl             `json:"functions"` // available functions, may be empty
}

// Response is the unified model output: final text, function call requests,
// or both.
type Response struct {
	Text          string              `json:"text,omitempty"`
	FunctionCalls []core.FunctionCall `json:"function_calls,omitempty"`
}

// HasFunctionCalls reports whether the model requested function execution.
func (r Response) HasFunctionCalls() bool { return len(r.FunctionCalls) > 0 }

// Info contains metadata about a client implementation.
type Info struct {
	Name              string `json:"name"`
	Provider          string `json:"provider"` // "anthropic", "openai", "mock", ...
	SupportsFunctions bool   `json:"supports_functions"`
}

// Client is the minimal interface the orchestrator needs to drive generation.
type Client interface {
	Send(ctx context.Context, req Request) (Response, error)

	// Info returns information about the client implementation.
	Info() Info
}

// ErrorKind classifies provider failures for retry decisions.
type ErrorKind int

const (
	// KindModel is a non-retryable provider-side failure (bad request,
	// content refusal, unexpected payload).
	KindModel ErrorKind = iota
	// KindRateLimited means the provider throttled the call.
	KindRateLimited
	// KindNetwork covers transport failures and timeouts.
	KindNetwork
)

// String returns the classification name.
func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindNetwork:
		return "network"
	default:
		return "model"
	}
}

// Error wraps a provider failure with its retryability classification.
type Error struct {
	Kind ErrorKind
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string { return fmt.Sprintf("model error (%s): %v", e.Kind, e.Err) }

// Unwrap exposes the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified model error.
func NewError(kind ErrorKind, err error) *Error { return &Error{Kind: kind, Err: err} }

// Retryable reports whether a failure is worth retrying with backoff:
// rate limits, transport failures and context deadline overruns are; model
// errors are not.
func Retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Kind == KindRateLimited || me.Kind == KindNetwork
	}
	return false
}
