package core

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks messages authored by the end user (or a scheduled trigger).
	RoleUser Role = "user"
	// RoleAssistant marks messages authored by the model.
	RoleAssistant Role = "assistant"
	// RoleFunction marks function-result messages fed back to the model.
	RoleFunction Role = "function"
)

// FunctionCall describes a structured operation requested by the model.
type FunctionCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// StructuredError is the machine-readable error shape surfaced to the model
// so it can self-correct instead of aborting the turn.
type StructuredError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Field != "" {
		return e.Code + ": " + e.Message + " (field " + e.Field + ")"
	}
	return e.Code + ": " + e.Message
}

// FunctionResult carries the outcome of a dispatched function call. Exactly
// one of Payload or Err is meaningful.
type FunctionResult struct {
	CallID  string           `json:"call_id"`
	Name    string           `json:"name"`
	Payload any              `json:"payload,omitempty"`
	Err     *StructuredError `json:"error,omitempty"`
}

// OK reports whether the call succeeded.
func (r FunctionResult) OK() bool { return r.Err == nil }

// ConversationMessage is one ordered entry in a session history. Seq is
// assigned by the conversation store under the session lock and is strictly
// increasing within a session.
type ConversationMessage struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"session_id"`
	Role         Role            `json:"role"`
	Content      string          `json:"content"`
	FunctionCall *FunctionCall   `json:"function_call,omitempty"`
	FunctionRes  *FunctionResult `json:"function_result,omitempty"`
	Seq          uint64          `json:"seq"`
	Timestamp    time.Time       `json:"timestamp"`
}

// NewUserMessage builds an unsequenced user message; the store assigns Seq.
func NewUserMessage(sessionID, content string) ConversationMessage {
	return ConversationMessage{
		ID:        NewID(),
		SessionID: sessionID,
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// NewAssistantMessage builds an unsequenced assistant message, optionally
// carrying the function calls the model requested alongside its text.
func NewAssistantMessage(sessionID, content string, call *FunctionCall) ConversationMessage {
	return ConversationMessage{
		ID:           NewID(),
		SessionID:    sessionID,
		Role:         RoleAssistant,
		Content:      content,
		FunctionCall: call,
		Timestamp:    time.Now().UTC(),
	}
}

// NewFunctionMessage wraps a FunctionResult as a conversation message so the
// model can react to the outcome on the next iteration.
func NewFunctionMessage(sessionID string, res FunctionResult) ConversationMessage {
	content := ""
	if b, err := json.Marshal(res); err == nil {
		content = string(b)
	}
	return ConversationMessage{
		ID:          NewID(),
		SessionID:   sessionID,
		Role:        RoleFunction,
		Content:     content,
		FunctionRes: &res,
		Timestamp:   time.Now().UTC(),
	}
}
