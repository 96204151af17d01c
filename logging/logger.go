// Package logging provides a minimal logging interface and adapters for
// coachcore. The Logger interface is what every component receives via
// dependency injection; SlogAdapter wraps Go's structured logging and
// NoOpLogger silences output for tests. CoachLogger adds contextual cloning
// (session, turn, component), reachable through ForComponent/ForSession for
// any Logger; the LogFunctionDispatch, LogModelCall and LogTurn helpers give
// the domain's hot paths a uniform record shape.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger defines the minimal logging interface used throughout coachcore.
// Callers may provide their own implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// CoachLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. It is cheap to copy via With* methods.
type CoachLogger struct {
	logger    *slog.Logger
	level     LogLevel
	context   map[string]any
	component string
	sessionID string
	turnID    string
}

// LoggerConfig configures construction of a CoachLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	SessionID   string
	TurnID      string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout, AddSource: false, CustomAttrs: map[string]any{}}
}

// NewLogger builds a CoachLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *CoachLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}
	return &CoachLogger{logger: slog.New(handler), level: cfg.Level, context: map[string]any{}, component: cfg.Component, sessionID: cfg.SessionID, turnID: cfg.TurnID}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *CoachLogger) clone() *CoachLogger {
	nl := *l
	nl.context = map[string]any{}
	for k, v := range l.context {
		nl.context[k] = v
	}
	return &nl
}

// WithContext adds a key/value attribute attached to every log entry.
func (l *CoachLogger) WithContext(key string, value any) *CoachLogger {
	nl := l.clone()
	nl.context[key] = value
	return nl
}

// WithComponent sets the logical component (orchestrator, dispatcher, store, ...).
func (l *CoachLogger) WithComponent(c string) *CoachLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithSession attaches session and turn identifiers.
func (l *CoachLogger) WithSession(sid, tid string) *CoachLogger {
	nl := l.clone()
	nl.sessionID = sid
	nl.turnID = tid
	return nl
}

func (l *CoachLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.context)+3)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.sessionID != "" {
		attrs = append(attrs, slog.String("session_id", l.sessionID))
	}
	if l.turnID != "" {
		attrs = append(attrs, slog.String("turn_id", l.turnID))
	}
	for k, v := range l.context {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *CoachLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}
	attrs := l.buildAttrs()
	for i := 0; i+1 < len(args); i += 2 {
		if k, ok := args[i].(string); ok {
			attrs = append(attrs, slog.Any(k, args[i+1]))
		}
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Debug logs at debug level.
func (l *CoachLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *CoachLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *CoachLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *CoachLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// scopedLogger carries fixed key/value pairs for Logger implementations
// without contextual cloning.
type scopedLogger struct {
	inner Logger
	args  []any
}

func (s *scopedLogger) merged(args []any) []any {
	return append(append(make([]any, 0, len(s.args)+len(args)), s.args...), args...)
}

// Debug logs at debug level with the scoped attributes.
func (s *scopedLogger) Debug(msg string, args ...any) { s.inner.Debug(msg, s.merged(args)...) }

// Info logs at info level with the scoped attributes.
func (s *scopedLogger) Info(msg string, args ...any) { s.inner.Info(msg, s.merged(args)...) }

// Warn logs at warn level with the scoped attributes.
func (s *scopedLogger) Warn(msg string, args ...any) { s.inner.Warn(msg, s.merged(args)...) }

// Error logs at error level with the scoped attributes.
func (s *scopedLogger) Error(msg string, args ...any) { s.inner.Error(msg, s.merged(args)...) }

// ForComponent scopes a logger to a logical component (store, dispatch,
// coach, ...). CoachLogger instances clone their context; other
// implementations get the component as a fixed attribute.
func ForComponent(l Logger, component string) Logger {
	if cl, ok := l.(*CoachLogger); ok {
		return cl.WithComponent(component)
	}
	return &scopedLogger{inner: l, args: []any{"component", component}}
}

// ForSession scopes a logger to a session and turn.
func ForSession(l Logger, sessionID, turnID string) Logger {
	if cl, ok := l.(*CoachLogger); ok {
		return cl.WithSession(sessionID, turnID)
	}
	return &scopedLogger{inner: l, args: []any{"session_id", sessionID, "turn_id", turnID}}
}

// LogFunctionDispatch records the outcome of one dispatched function call.
func LogFunctionDispatch(l Logger, function string, dur time.Duration, err error) {
	args := []any{"function", function, "duration_ms", dur.Milliseconds()}
	if err != nil {
		args = append(args, "error", err.Error())
		l.Error("function.dispatch.failed", args...)
		return
	}
	l.Info("function.dispatch.completed", args...)
}

// LogModelCall records model call latency and outcome.
func LogModelCall(l Logger, model string, dur time.Duration, err error) {
	args := []any{"model", model, "duration_ms", dur.Milliseconds()}
	if err != nil {
		args = append(args, "error", err.Error())
		l.Error("model.call.failed", args...)
		return
	}
	l.Debug("model.call.completed", args...)
}

// LogTurn records aggregate metrics for one orchestration turn.
func LogTurn(l Logger, sessionID string, iterations, functionCalls int, dur time.Duration, degraded bool, err error) {
	args := []any{
		"session_id", sessionID,
		"iterations", iterations,
		"function_calls", functionCalls,
		"duration_ms", dur.Milliseconds(),
		"degraded", degraded,
	}
	if err != nil {
		args = append(args, "error", err.Error())
		l.Error("turn.failed", args...)
		return
	}
	l.Info("turn.completed", args...)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// NewSlogLogger creates a new CoachLogger with the specified configuration.
func NewSlogLogger(level LogLevel, format string, addSource bool) *CoachLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}
