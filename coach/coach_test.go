package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/peakform/coachcore/core"
	"github.com/peakform/coachcore/dispatch"
	"github.com/peakform/coachcore/logging"
	"github.com/peakform/coachcore/model"
	"github.com/peakform/coachcore/persona"
	"github.com/peakform/coachcore/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nutritionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"description": map[string]any{"type": "string"},
	},
	"required": []string{"description"},
}

type fixture struct {
	orch    *Orchestrator
	backend *store.MemoryBackend
	store   *store.Store
	logged  *atomic.Int64
}

func newFixture(t *testing.T, client model.Client, cfg Config, extraDefs ...dispatch.Definition) *fixture {
	t.Helper()

	logged := &atomic.Int64{}
	defs := append([]dispatch.Definition{{
		Name:        "log_nutrition",
		Description: "Record a meal from a free-text description.",
		Parameters:  nutritionSchema,
		Handler: dispatch.HandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
			logged.Add(1)
			return map[string]any{"status": "logged", "description": args["description"]}, nil
		}),
	}}, extraDefs...)

	reg, err := dispatch.NewRegistry(defs...)
	require.NoError(t, err)

	backend := store.NewMemoryBackend()
	st := store.New(backend, store.Config{}, logging.NoOpLogger{})
	d := dispatch.NewDispatcher(reg, dispatch.DispatcherConfig{}, logging.NoOpLogger{})

	orch, err := New(client, nil, persona.NewEngine(), st, d, reg, cfg, logging.NoOpLogger{})
	require.NoError(t, err)

	return &fixture{orch: orch, backend: backend, store: st, logged: logged}
}

func callStep(id, name, args string) model.MockStep {
	return model.MockStep{Response: model.Response{FunctionCalls: []core.FunctionCall{{
		ID: id, Name: name, Arguments: json.RawMessage(args),
	}}}}
}

func TestRunTurn_PlainText(t *testing.T) {
	client := model.NewMockClient(model.TextStep("Nice work on the morning run."))
	fx := newFixture(t, client, Config{})

	res, err := fx.orch.RunTurn(context.Background(), TurnRequest{
		SessionID:   "s1",
		UserID:      "u1",
		Input:       "how did I do today?",
		Interaction: core.InteractionChat,
	})
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, "Nice work on the morning run.", res.Text)
	assert.False(t, res.Degraded)
	assert.Equal(t, 1, res.Iterations)

	// Chat turns persist the user message and the final response.
	assert.Equal(t, 2, fx.backend.Count("s1"))
}

func TestRunTurn_TransactionFunctionFlow(t *testing.T) {
	client := model.NewMockClient(
		callStep("c1", "log_nutrition", `{"description":"2 eggs and toast"}`),
		model.TextStep("Logged it: 2 eggs and toast. Solid protein start."),
	)
	fx := newFixture(t, client, Config{})

	res, err := fx.orch.RunTurn(context.Background(), TurnRequest{
		SessionID:   "meal-1",
		UserID:      "u1",
		Input:       "log 2 eggs and toast",
		Interaction: core.InteractionTransaction,
	})
	require.NoError(t, err)
	assert.Equal(t, "Logged it: 2 eggs and toast. Solid protein start.", res.Text)
	assert.False(t, res.Degraded)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 1, res.Calls)
	assert.Equal(t, int64(1), fx.logged.Load())

	// The second model call must see the function result in the transcript.
	reqs := client.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, core.RoleFunction, last.Role)
	require.NotNil(t, last.FunctionRes)
	assert.True(t, last.FunctionRes.OK())

	// Transaction sessions never leave durable state behind.
	assert.Equal(t, 0, fx.backend.Count("meal-1"))
}

func TestRunTurn_IterationCapDegrades(t *testing.T) {
	client := model.NewMockClient(callStep("c1", "log_nutrition", `{"description":"snack"}`))
	fx := newFixture(t, client, Config{MaxIterations: 3})

	res, err := fx.orch.RunTurn(context.Background(), TurnRequest{
		SessionID:   "loop",
		UserID:      "u1",
		Input:       "keep going",
		Interaction: core.InteractionChat,
	})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, 3, client.Calls())
	assert.NotEmpty(t, res.Text)
}

func TestRunTurn_ModelRetryThenSuccess(t *testing.T) {
	client := model.NewMockClient(
		model.ErrStep(model.KindRateLimited, errors.New("429")),
		model.ErrStep(model.KindNetwork, errors.New("conn reset")),
		model.TextStep("back on track"),
	)
	fx := newFixture(t, client, Config{ModelRetries: 2, ModelBackoff: time.Millisecond})

	res, err := fx.orch.RunTurn(context.Background(), TurnRequest{
		SessionID:   "retry",
		UserID:      "u1",
		Input:       "hello",
		Interaction: core.InteractionChat,
	})
	require.NoError(t, err)
	assert.Equal(t, "back on track", res.Text)
	assert.False(t, res.Degraded)
	assert.Equal(t, 3, client.Calls())
}

func TestRunTurn_ModelExhaustionFallsBack(t *testing.T) {
	client := model.NewMockClient(model.ErrStep(model.KindRateLimited, errors.New("429")))
	fx := newFixture(t, client, Config{ModelRetries: 1, ModelBackoff: time.Millisecond})

	res, err := fx.orch.RunTurn(context.Background(), TurnRequest{
		SessionID:   "down",
		UserID:      "u1",
		Input:       "hello",
		Interaction: core.InteractionChat,
	})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.NotEmpty(t, res.Text)
	assert.Equal(t, 2, client.Calls())
}

func TestRunTurn_NonRetryableModelErrorFailsFast(t *testing.T) {
	client := model.NewMockClient(model.ErrStep(model.KindModel, errors.New("bad request")))
	fx := newFixture(t, client, Config{ModelRetries: 2, ModelBackoff: time.Millisecond})

	res, err := fx.orch.RunTurn(context.Background(), TurnRequest{
		SessionID:   "bad",
		UserID:      "u1",
		Input:       "hello",
		Interaction: core.InteractionChat,
	})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, 1, client.Calls())
}

func TestRunTurn_FunctionFailureSurfacedToModel(t *testing.T) {
	failing := dispatch.Definition{
		Name:        "adjust_goal",
		Description: "Adjust a training goal.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: dispatch.HandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("goal service unavailable")
		}),
	}
	client := model.NewMockClient(
		callStep("c1", "adjust_goal", `{}`),
		model.TextStep("Couldn't update the goal right now, I'll note it for later."),
	)
	fx := newFixture(t, client, Config{}, failing)

	res, err := fx.orch.RunTurn(context.Background(), TurnRequest{
		SessionID:   "goal",
		UserID:      "u1",
		Input:       "bump my goal",
		Interaction: core.InteractionChat,
	})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, "Couldn't update the goal right now, I'll note it for later.", res.Text)

	reqs := client.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	require.NotNil(t, last.FunctionRes)
	assert.False(t, last.FunctionRes.OK())
}

func TestRunTurn_RepeatedFunctionFailureAbandonsPath(t *testing.T) {
	failing := dispatch.Definition{
		Name:        "adjust_goal",
		Description: "Adjust a training goal.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: dispatch.HandlerFunc(func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("still broken")
		}),
	}
	// The model keeps retrying the same failing call.
	client := model.NewMockClient(callStep("c1", "adjust_goal", `{}`))
	fx := newFixture(t, client, Config{}, failing)

	res, err := fx.orch.RunTurn(context.Background(), TurnRequest{
		SessionID:   "goal2",
		UserID:      "u1",
		Input:       "bump my goal",
		Interaction: core.InteractionChat,
	})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	// Two failures of the same call name, then the path is abandoned.
	assert.Equal(t, 2, client.Calls())
	assert.Equal(t, 2, res.Calls)
}

type failingBackend struct{}

func (failingBackend) Append(context.Context, core.ConversationMessage) error { return errors.New("disk full") }
func (failingBackend) Read(context.Context, string, int) ([]core.ConversationMessage, error) {
	return nil, errors.New("disk full")
}
func (failingBackend) Prune(context.Context, string, int) error   { return errors.New("disk full") }
func (failingBackend) Delete(context.Context, string) error       { return errors.New("disk full") }
func (failingBackend) LastSeq(context.Context, string) (uint64, error) {
	return 0, errors.New("disk full")
}

func TestRunTurn_PersistenceFailureNonFatal(t *testing.T) {
	client := model.NewMockClient(model.TextStep("still here"))

	reg, err := dispatch.NewRegistry(dispatch.Definition{
		Name:       "noop",
		Parameters: map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: dispatch.HandlerFunc(func(context.Context, map[string]any) (any, error) {
			return nil, nil
		}),
	})
	require.NoError(t, err)

	st := store.New(failingBackend{}, store.Config{}, logging.NoOpLogger{})
	d := dispatch.NewDispatcher(reg, dispatch.DispatcherConfig{}, logging.NoOpLogger{})
	orch, err := New(client, nil, persona.NewEngine(), st, d, reg, Config{}, logging.NoOpLogger{})
	require.NoError(t, err)

	res, err := orch.RunTurn(context.Background(), TurnRequest{
		SessionID:   "flaky",
		UserID:      "u1",
		Input:       "hello",
		Interaction: core.InteractionChat,
	})
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, "still here", res.Text)
}

// serializingClient asserts no two Sends overlap.
type serializingClient struct {
	inner    *model.MockClient
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (c *serializingClient) Send(ctx context.Context, req model.Request) (model.Response, error) {
	if c.inFlight.Add(1) > 1 {
		c.overlap.Store(true)
	}
	defer c.inFlight.Add(-1)
	return c.inner.Send(ctx, req)
}

func (c *serializingClient) Info() model.Info { return c.inner.Info() }

func TestRunTurn_SameSessionTurnsSerialized(t *testing.T) {
	client := &serializingClient{inner: model.NewMockClient(
		model.MockStep{Response: model.Response{Text: "ok"}, Latency: 10 * time.Millisecond},
	)}
	fx := newFixture(t, client, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := fx.orch.RunTurn(context.Background(), TurnRequest{
				SessionID:   "serial",
				UserID:      "u1",
				Input:       fmt.Sprintf("turn %d", i),
				Interaction: core.InteractionChat,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.False(t, client.overlap.Load(), "same-session model calls overlapped")
	// 4 turns x (user + assistant), all in order.
	msgs, err := fx.store.Recent(context.Background(), "serial", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 8)
	for i := 1; i < len(msgs); i++ {
		assert.Greater(t, msgs[i].Seq, msgs[i-1].Seq)
	}
}

func TestRunTurn_SessionLocksReleased(t *testing.T) {
	client := model.NewMockClient(
		model.TextStep("one"),
		model.TextStep("two"),
		model.TextStep("three"),
	)
	fx := newFixture(t, client, Config{})

	var wg sync.WaitGroup
	for _, sid := range []string{"a", "a", "b"} {
		wg.Add(1)
		go func(sid string) {
			defer wg.Done()
			_, err := fx.orch.RunTurn(context.Background(), TurnRequest{
				SessionID:   sid,
				UserID:      "u1",
				Input:       "hi",
				Interaction: core.InteractionChat,
			})
			assert.NoError(t, err)
		}(sid)
	}
	wg.Wait()

	// Per-session lock entries are dropped once the last turn releases them.
	fx.orch.mu.Lock()
	defer fx.orch.mu.Unlock()
	assert.Empty(t, fx.orch.turns)
}

func TestRunTurn_ChatHistoryReplayedAcrossTurns(t *testing.T) {
	client := model.NewMockClient(model.TextStep("noted"))
	fx := newFixture(t, client, Config{})

	for i := 0; i < 5; i++ {
		_, err := fx.orch.RunTurn(context.Background(), TurnRequest{
			SessionID:   "long",
			UserID:      "u1",
			Input:       fmt.Sprintf("update %d", i),
			Interaction: core.InteractionChat,
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 10, fx.backend.Count("long"))

	// The fifth model request replays the four prior exchanges plus the
	// fresh user message.
	reqs := client.Requests()
	require.Len(t, reqs, 5)
	assert.Len(t, reqs[4].Messages, 9)
}

func TestRunTurn_PolicyChangeRejected(t *testing.T) {
	client := model.NewMockClient(model.TextStep("ok"))
	fx := newFixture(t, client, Config{})

	_, err := fx.orch.RunTurn(context.Background(), TurnRequest{
		SessionID:   "pinned",
		UserID:      "u1",
		Input:       "hello",
		Interaction: core.InteractionChat,
	})
	require.NoError(t, err)

	_, err = fx.orch.RunTurn(context.Background(), TurnRequest{
		SessionID:   "pinned",
		UserID:      "u1",
		Input:       "hello again",
		Interaction: core.InteractionTransaction,
	})
	assert.Error(t, err)
}

func TestRunTurn_ScheduledTurnMarksPrompt(t *testing.T) {
	client := model.NewMockClient(model.TextStep("morning check-in"))
	fx := newFixture(t, client, Config{})

	_, err := fx.orch.RunTurn(context.Background(), TurnRequest{
		SessionID:   "sched",
		UserID:      "u1",
		Input:       "daily check-in",
		Interaction: core.InteractionChat,
		Scheduled:   true,
	})
	require.NoError(t, err)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].System, "scheduled")
}

func TestTurnDeadline(t *testing.T) {
	cfg := Config{MaxIterations: 5, ModelTimeout: 10 * time.Second, ContextBudget: 3 * time.Second}
	assert.Equal(t, 53*time.Second, cfg.TurnDeadline())
}

func TestStateTransitionTable(t *testing.T) {
	require.NoError(t, validateTransitions())

	assert.True(t, legalTransition(StateIdle, StateAssemblingContext))
	assert.True(t, legalTransition(StateDispatchingFunctions, StateAwaitingModel))
	assert.True(t, legalTransition(StateAwaitingModel, StateFailed))
	assert.False(t, legalTransition(StateIdle, StateAwaitingModel))
	assert.False(t, legalTransition(StateDone, StateFailed))
	assert.False(t, legalTransition(StatePersisting, StateAwaitingModel))
}
