package core

import "fmt"

// ConfigurationError signals an invalid startup configuration (for example a
// duplicate function name at registry construction). It fails fast, before
// any request is served.
type ConfigurationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// PersistenceError wraps a storage failure with the operation at which it
// occurred. The orchestrator logs these without failing the user-visible turn.
type PersistenceError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *PersistenceError) Unwrap() error { return e.Err }
