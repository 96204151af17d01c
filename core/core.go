// Package core provides the foundational domain types used by coachcore:
//
//   - ConversationMessage and roles (user / assistant / function)
//   - InteractionType, the closed persistence-policy enum
//   - FunctionCall / FunctionResult with structured errors
//   - HealthContextSnapshot, the merged point-in-time metric view
//
// The package intentionally keeps implementation concerns (persistence,
// orchestration, providers) out of scope, exposing small value types so the
// higher layers can share one vocabulary without dependency cycles.
package core

import "github.com/google/uuid"

// NewID generates a unique identifier for messages, calls and turns.
func NewID() string { return uuid.NewString() }
