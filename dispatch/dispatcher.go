package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/peakform/coachcore/core"
	"github.com/peakform/coachcore/internal/util"
	"github.com/peakform/coachcore/logging"
)

// DispatcherConfig bounds function execution.
type DispatcherConfig struct {
	CallTimeout time.Duration // per-invocation budget; 0 => 5s
	Retries     int           // extra attempts for transient errors; 0 allowed
	Backoff     time.Duration // base backoff between retries; 0 => 100ms
	MaxParallel int           // DispatchAll concurrency bound; 0 => 4
}

// Dispatcher validates and executes function calls against an immutable
// registry. Safe for concurrent use.
type Dispatcher struct {
	registry *Registry
	cfg      DispatcherConfig
	logger   logging.Logger
}

// NewDispatcher constructs a Dispatcher with defaults applied.
func NewDispatcher(registry *Registry, cfg DispatcherConfig, logger logging.Logger) *Dispatcher {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 100 * time.Millisecond
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Dispatcher{registry: registry, cfg: cfg, logger: logger}
}

// Dispatch executes one function call and always returns a result: every
// failure mode ends up as a structured error the model can self-correct on.
// Unknown names and argument mismatches never invoke a handler.
func (d *Dispatcher) Dispatch(ctx context.Context, call core.FunctionCall) core.FunctionResult {
	start := time.Now()

	def, ok := d.registry.Lookup(call.Name)
	if !ok {
		d.logger.Warn("dispatch.unknown_function", "function", call.Name, "call_id", call.ID)
		return errorResult(call, &FunctionError{
			Function: call.Name,
			Message:  fmt.Sprintf("no function named %q is registered", call.Name),
			Code:     CodeValidation,
		})
	}

	args := map[string]any{}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return errorResult(call, &FunctionError{
				Function: call.Name,
				Message:  fmt.Sprintf("arguments are not a JSON object: %v", err),
				Code:     CodeValidation,
			})
		}
	}

	if err := util.ValidateArguments(args, def.Parameters); err != nil {
		fe := &FunctionError{Function: call.Name, Message: err.Error(), Code: CodeValidation}
		var ve *util.ValidationError
		if errors.As(err, &ve) {
			fe.Field = ve.Field
		}
		d.logger.Warn("dispatch.validation_failed", "function", call.Name, "error", err.Error())
		return errorResult(call, fe)
	}

	payload, err := d.invokeWithRetry(ctx, def, call, args)
	dur := time.Since(start)
	logging.LogFunctionDispatch(d.logger, call.Name, dur, err)

	if err != nil {
		return errorResult(call, asFunctionError(call.Name, err))
	}
	return core.FunctionResult{CallID: call.ID, Name: call.Name, Payload: payload}
}

// DispatchAll executes independent calls with bounded parallelism. Results
// are keyed by call ID; ordering is not guaranteed and callers must not rely
// on it.
func (d *Dispatcher) DispatchAll(ctx context.Context, calls []core.FunctionCall) map[string]core.FunctionResult {
	results := make(map[string]core.FunctionResult, len(calls))
	if len(calls) == 0 {
		return results
	}

	// Fast path: single call, execute inline.
	if len(calls) == 1 {
		results[calls[0].ID] = d.Dispatch(ctx, calls[0])
		return results
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, d.cfg.MaxParallel)

	batchStart := time.Now()
	for _, call := range calls {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(c core.FunctionCall) {
			defer wg.Done()
			defer func() { <-sem }()

			res := d.Dispatch(ctx, c)
			mu.Lock()
			results[c.ID] = res
			mu.Unlock()
		}(call)
	}
	wg.Wait()

	d.logger.Debug("dispatch.batch.complete",
		"count", len(calls),
		"parallelism", d.cfg.MaxParallel,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)
	return results
}

// invokeWithRetry runs the handler under the per-call timeout, recovering
// panics, and retries transient failures with jittered exponential backoff.
func (d *Dispatcher) invokeWithRetry(ctx context.Context, def Definition, call core.FunctionCall, args map[string]any) (any, error) {
	var lastErr error

	for attempt := 0; attempt <= d.cfg.Retries; attempt++ {
		if attempt > 0 {
			backoff := d.cfg.Backoff << (attempt - 1)
			backoff += time.Duration(rand.Int63n(int64(backoff)/2 + 1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			d.logger.Debug("dispatch.retry", "function", call.Name, "attempt", attempt)
		}

		payload, err := d.invokeOnce(ctx, def, args)
		if err == nil {
			return payload, nil
		}
		lastErr = err

		if !retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (d *Dispatcher) invokeOnce(ctx context.Context, def Definition, args map[string]any) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()

	type outcome struct {
		payload any
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		var out outcome
		func() { // handler panics become structured errors, never crashes
			defer func() {
				if r := recover(); r != nil {
					out = outcome{err: &FunctionError{
						Function: def.Name,
						Message:  fmt.Sprintf("handler panicked: %v", r),
						Code:     CodeExecution,
					}}
					d.logger.Error("dispatch.call.panic", "function", def.Name, "recover", r)
				}
			}()
			out.payload, out.err = def.Handler.Execute(callCtx, args)
		}()
		done <- out
	}()

	select {
	case out := <-done:
		return out.payload, out.err
	case <-callCtx.Done():
		// The handler goroutine keeps running until it observes callCtx;
		// its late result is dropped via the buffered channel.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &FunctionError{Function: def.Name, Message: "execution exceeded time budget", Code: CodeTimeout}
	}
}

// retryable: timeouts and explicitly transient errors retry; validation and
// business-logic errors do not.
func retryable(err error) bool {
	if IsTransient(err) {
		return true
	}
	var fe *FunctionError
	if errors.As(err, &fe) {
		return fe.Code == CodeTimeout
	}
	return false
}

func asFunctionError(name string, err error) *FunctionError {
	var fe *FunctionError
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &FunctionError{Function: name, Message: err.Error(), Code: CodeTimeout}
	}
	return &FunctionError{Function: name, Message: err.Error(), Code: CodeExecution}
}

func errorResult(call core.FunctionCall, fe *FunctionError) core.FunctionResult {
	return core.FunctionResult{
		CallID: call.ID,
		Name:   call.Name,
		Err:    &core.StructuredError{Code: fe.Code, Message: fe.Message, Field: fe.Field},
	}
}
