// Package coach sequences a coaching turn: context assembly, persona
// resolution, the bounded model/function loop, and persistence. The
// orchestrator is the single decision point for recover-vs-fallback-vs-abort;
// callers always receive a persona-consistent response, never a raw
// dependency error.
package coach

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/peakform/coachcore/core"
	"github.com/peakform/coachcore/dispatch"
	"github.com/peakform/coachcore/health"
	"github.com/peakform/coachcore/logging"
	"github.com/peakform/coachcore/model"
	"github.com/peakform/coachcore/persona"
	"github.com/peakform/coachcore/store"
)

// Config bounds a single turn. Zero values are replaced with defaults.
type Config struct {
	// MaxIterations caps model/function round-trips within one turn.
	MaxIterations int
	// ModelRetries bounds retries of a single model call on retryable errors.
	ModelRetries int
	// ModelTimeout is the per-model-call budget.
	ModelTimeout time.Duration
	// ModelBackoff is the base delay between model retries.
	ModelBackoff time.Duration
	// ContextBudget is the fixed share of the turn deadline reserved for
	// context assembly and persistence.
	ContextBudget time.Duration
	// HistoryLimit caps how many stored messages are replayed to the model.
	HistoryLimit int
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 5
	}
	if c.ModelRetries < 0 {
		c.ModelRetries = 0
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = 10 * time.Second
	}
	if c.ModelBackoff <= 0 {
		c.ModelBackoff = 200 * time.Millisecond
	}
	if c.ContextBudget <= 0 {
		c.ContextBudget = 3 * time.Second
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	return c
}

// TurnDeadline is the worst-case duration of one turn: the fixed context
// budget plus one model budget per permitted iteration.
func (c Config) TurnDeadline() time.Duration {
	c = c.withDefaults()
	return c.ContextBudget + c.ModelTimeout*time.Duration(c.MaxIterations)
}

// TurnRequest is one inbound utterance or scheduled trigger.
type TurnRequest struct {
	SessionID   string
	UserID      string
	Input       string
	Interaction core.InteractionType
	Persona     persona.Config
	// Scheduled marks synthetic turns originated by the trigger scheduler
	// rather than a live utterance.
	Scheduled bool
}

// TurnResult is the caller-visible outcome of a turn.
type TurnResult struct {
	Text       string
	Iterations int
	Calls      int
	// Degraded is set when the turn finalized through a fallback path
	// (iteration cap, model exhaustion, repeated function failure).
	Degraded bool
	State    State
}

// Orchestrator runs turns. All dependencies are injected at construction;
// the instance is safe for concurrent use, with turns serialized per session.
type Orchestrator struct {
	client    model.Client
	assembler *health.Assembler
	personas  *persona.Engine
	store     *store.Store
	dispatch  *dispatch.Dispatcher
	registry  *dispatch.Registry
	cfg       Config
	logger    logging.Logger

	mu    sync.Mutex
	turns map[string]*sessionLock
}

// sessionLock serializes turns within one session. Entries are
// reference-counted so the map does not grow with session cardinality;
// the last releaser removes the entry.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// New wires an orchestrator. The transition table is validated here so a
// broken build fails before any request is served.
func New(client model.Client, assembler *health.Assembler, engine *persona.Engine, st *store.Store, d *dispatch.Dispatcher, reg *dispatch.Registry, cfg Config, logger logging.Logger) (*Orchestrator, error) {
	if err := validateTransitions(); err != nil {
		return nil, &core.ConfigurationError{Field: "transitions", Message: err.Error()}
	}
	if client == nil {
		return nil, &core.ConfigurationError{Field: "client", Message: "model client is required"}
	}
	if reg == nil || d == nil {
		return nil, &core.ConfigurationError{Field: "dispatch", Message: "function registry and dispatcher are required"}
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Orchestrator{
		client:    client,
		assembler: assembler,
		personas:  engine,
		store:     st,
		dispatch:  d,
		registry:  reg,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		turns:     make(map[string]*sessionLock),
	}, nil
}

// acquireTurn blocks until no other turn is active for the session.
// Sessions remain fully parallel with respect to each other.
func (o *Orchestrator) acquireTurn(sessionID string) *sessionLock {
	o.mu.Lock()
	l, ok := o.turns[sessionID]
	if !ok {
		l = &sessionLock{}
		o.turns[sessionID] = l
	}
	l.refs++
	o.mu.Unlock()

	l.mu.Lock()
	return l
}

func (o *Orchestrator) releaseTurn(sessionID string, l *sessionLock) {
	l.mu.Unlock()

	o.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(o.turns, sessionID)
	}
	o.mu.Unlock()
}

// turn carries the mutable state of one orchestration.
type turn struct {
	req        TurnRequest
	log        logging.Logger
	state      State
	snapshot   core.HealthContextSnapshot
	blend      persona.Blend
	system     string
	transcript []core.ConversationMessage
	iterations int
	calls      int
	failures   map[string]int
	finalText  string
	degraded   bool
}

// advance moves the turn to the next state, logging and failing the turn on
// an edge outside the transition table.
func (o *Orchestrator) advance(t *turn, to State) bool {
	if !legalTransition(t.state, to) {
		t.log.Error("coach.turn.illegal_transition", "from", t.state.String(), "to", to.String())
		t.state = StateFailed
		return false
	}
	t.state = to
	return true
}

// RunTurn executes one full coaching turn. It blocks until a same-session
// turn in flight completes, then runs under a deadline derived from the
// configured budgets. Cancellation of ctx propagates to every in-flight
// fetch, model call, and function handler.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	if req.SessionID == "" {
		return TurnResult{State: StateFailed}, &core.ConfigurationError{Field: "session_id", Message: "session id is required"}
	}

	lock := o.acquireTurn(req.SessionID)
	defer o.releaseTurn(req.SessionID, lock)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.TurnDeadline())
	defer cancel()

	start := time.Now()
	t := &turn{
		req:      req,
		log:      logging.ForSession(o.logger, req.SessionID, core.NewID()),
		state:    StateIdle,
		failures: make(map[string]int),
	}

	if err := o.openSession(ctx, t); err != nil {
		return TurnResult{State: StateFailed}, err
	}

	o.assembleContext(ctx, t)
	o.buildPrompt(ctx, t)
	o.modelLoop(ctx, t)
	o.finalize(ctx, t)
	o.persist(ctx, t)

	if t.state != StateDone {
		logging.LogTurn(o.logger, req.SessionID, t.iterations, t.calls, time.Since(start), true,
			fmt.Errorf("turn ended in state %s", t.state))
		return TurnResult{Text: o.personas.Apology(t.blend), Iterations: t.iterations, Calls: t.calls, Degraded: true, State: t.state}, nil
	}

	logging.LogTurn(o.logger, req.SessionID, t.iterations, t.calls, time.Since(start), t.degraded, nil)
	return TurnResult{Text: t.finalText, Iterations: t.iterations, Calls: t.calls, Degraded: t.degraded, State: StateDone}, nil
}

func (o *Orchestrator) openSession(ctx context.Context, t *turn) error {
	if o.store == nil {
		return nil
	}
	if err := o.store.Open(t.req.SessionID, t.req.Interaction); err != nil {
		return err
	}
	history, err := o.store.Recent(ctx, t.req.SessionID, o.cfg.HistoryLimit)
	if err != nil {
		// Degraded read: start the transcript from this turn only.
		t.log.Warn("coach.history.unavailable", "error", err)
		history = nil
	}
	t.transcript = history
	return nil
}

func (o *Orchestrator) assembleContext(ctx context.Context, t *turn) {
	if !o.advance(t, StateAssemblingContext) {
		return
	}
	if o.assembler != nil {
		t.snapshot = o.assembler.Assemble(ctx, t.req.UserID, time.Now())
	} else {
		t.snapshot = core.HealthContextSnapshot{UserID: t.req.UserID, Missing: core.AllMetrics(), Timestamp: time.Now()}
	}
}

func (o *Orchestrator) buildPrompt(ctx context.Context, t *turn) {
	if t.state == StateFailed || !o.advance(t, StateBuildingPrompt) {
		return
	}

	blend, err := o.personas.Resolve(t.req.Persona)
	if err != nil {
		t.log.Warn("coach.persona.fallback", "error", err)
		blend, _ = o.personas.Resolve(persona.Config{})
	}
	t.blend = blend
	t.system = buildSystemPrompt(o.personas.PromptFragment(blend), t.snapshot, t.req.Scheduled)

	user := core.NewUserMessage(t.req.SessionID, t.req.Input)
	t.transcript = append(t.transcript, o.append(ctx, t, user))
}

// modelLoop drives the AwaitingModel -> ParsingResponse ->
// DispatchingFunctions cycle until a final text, the iteration cap, or an
// unrecoverable failure.
func (o *Orchestrator) modelLoop(ctx context.Context, t *turn) {
	for t.state != StateFailed {
		if !o.advance(t, StateAwaitingModel) {
			return
		}
		t.iterations++
		resp, err := o.callModel(ctx, t)
		if err != nil {
			// Retries exhausted: degrade instead of surfacing the error.
			t.log.Warn("coach.model.exhausted", "iteration", t.iterations, "error", err)
			t.finalText = o.personas.Apology(t.blend)
			t.degraded = true
			o.advance(t, StateFinalizing)
			return
		}

		if !o.advance(t, StateParsingResponse) {
			return
		}
		if !resp.HasFunctionCalls() {
			t.finalText = resp.Text
			o.advance(t, StateFinalizing)
			return
		}

		if !o.advance(t, StateDispatchingFunctions) {
			return
		}
		abandoned := o.runFunctions(ctx, t, resp)
		if abandoned {
			t.finalText = o.personas.Apology(t.blend)
			t.degraded = true
			o.advance(t, StateFinalizing)
			return
		}
		if t.iterations >= o.cfg.MaxIterations {
			t.log.Warn("coach.turn.iteration_cap", "iterations", t.iterations)
			t.finalText = o.personas.Apology(t.blend)
			t.degraded = true
			o.advance(t, StateFinalizing)
			return
		}
	}
}

func (o *Orchestrator) callModel(ctx context.Context, t *turn) (model.Response, error) {
	req := model.Request{
		System:    t.system,
		Messages:  t.transcript,
		Functions: declarations(o.registry),
	}

	var lastErr error
	for attempt := 0; attempt <= o.cfg.ModelRetries; attempt++ {
		if attempt > 0 {
			delay := o.cfg.ModelBackoff << (attempt - 1)
			delay += time.Duration(rand.Int63n(int64(o.cfg.ModelBackoff)))
			select {
			case <-ctx.Done():
				return model.Response{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, o.cfg.ModelTimeout)
		start := time.Now()
		resp, err := o.client.Send(callCtx, req)
		cancel()

		if err == nil {
			logging.LogModelCall(t.log, o.client.Info().Name, time.Since(start), nil)
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return model.Response{}, ctx.Err()
		}
		if !model.Retryable(err) {
			logging.LogModelCall(t.log, o.client.Info().Name, time.Since(start), err)
			return model.Response{}, err
		}
		t.log.Warn("coach.model.retry", "attempt", attempt+1, "error", err)
	}
	return model.Response{}, fmt.Errorf("model call failed after %d attempts: %w", o.cfg.ModelRetries+1, lastErr)
}

// runFunctions records the assistant's calls, dispatches them, and feeds the
// results back into the transcript. A second failure of the same function
// name within the turn abandons that path; the reported true return tells
// the loop to finalize with an apology.
func (o *Orchestrator) runFunctions(ctx context.Context, t *turn, resp model.Response) bool {
	for i := range resp.FunctionCalls {
		call := resp.FunctionCalls[i]
		content := resp.Text
		if i > 0 {
			content = ""
		}
		msg := core.NewAssistantMessage(t.req.SessionID, content, &call)
		t.transcript = append(t.transcript, o.append(ctx, t, msg))
	}

	results := o.dispatch.DispatchAll(ctx, resp.FunctionCalls)
	t.calls += len(resp.FunctionCalls)

	abandon := false
	for _, call := range resp.FunctionCalls {
		res, ok := results[call.ID]
		if !ok {
			res = core.FunctionResult{CallID: call.ID, Name: call.Name, Err: &core.StructuredError{Code: "execution", Message: "no result produced"}}
		}
		if !res.OK() {
			t.failures[call.Name]++
			t.log.Warn("coach.function.failed", "function", call.Name, "failures", t.failures[call.Name], "error", res.Err.Message)
			if t.failures[call.Name] >= 2 {
				abandon = true
			}
		}
		msg := core.NewFunctionMessage(t.req.SessionID, res)
		t.transcript = append(t.transcript, o.append(ctx, t, msg))
	}
	return abandon
}

func (o *Orchestrator) finalize(ctx context.Context, t *turn) {
	if t.state == StateFailed {
		return
	}
	if t.state != StateFinalizing && !o.advance(t, StateFinalizing) {
		return
	}
	if t.finalText == "" {
		t.finalText = o.personas.Apology(t.blend)
		t.degraded = true
	}
	msg := core.NewAssistantMessage(t.req.SessionID, t.finalText, nil)
	t.transcript = append(t.transcript, o.append(ctx, t, msg))
}

// persist closes out storage for the turn. Failures here are logged and do
// not affect the response already computed.
func (o *Orchestrator) persist(ctx context.Context, t *turn) {
	if t.state == StateFailed || !o.advance(t, StatePersisting) {
		return
	}
	if o.store != nil && t.req.Interaction == core.InteractionTransaction {
		if err := o.store.CloseExchange(ctx, t.req.SessionID); err != nil {
			t.log.Warn("coach.persist.close_exchange", "error", err)
		}
	}
	o.advance(t, StateDone)
}

// append writes one message through the store. A persistence failure keeps
// the in-memory copy so the model still sees a coherent transcript.
func (o *Orchestrator) append(ctx context.Context, t *turn, msg core.ConversationMessage) core.ConversationMessage {
	if o.store == nil {
		return msg
	}
	stored, err := o.store.Append(ctx, t.req.SessionID, msg)
	if err != nil {
		t.log.Warn("coach.persist.append", "role", string(msg.Role), "error", err)
		return msg
	}
	return stored
}

func declarations(reg *dispatch.Registry) []model.FunctionDecl {
	defs := reg.Definitions()
	decls := make([]model.FunctionDecl, 0, len(defs))
	for _, def := range defs {
		decls = append(decls, model.FunctionDecl{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		})
	}
	return decls
}
