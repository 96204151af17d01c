// Package coachcore provides a high-level façade over the coaching
// orchestration core. Most applications interact with this package by:
//  1. Loading a config.Config (YAML file plus environment overlay)
//  2. Building a System via New(), optionally overriding the model client,
//     health provider, or storage backend
//  3. Running turns with Chat() or registering triggers on the Scheduler
//
// The façade delegates orchestration to coach.Orchestrator while keeping
// setup ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a real model provider,
// a sqlite store path, and a structured logger.
package coachcore

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/peakform/coachcore/coach"
	"github.com/peakform/coachcore/config"
	"github.com/peakform/coachcore/core"
	"github.com/peakform/coachcore/dispatch"
	"github.com/peakform/coachcore/functions"
	"github.com/peakform/coachcore/health"
	"github.com/peakform/coachcore/logging"
	"github.com/peakform/coachcore/model"
	"github.com/peakform/coachcore/model/anthropic"
	"github.com/peakform/coachcore/model/openai"
	"github.com/peakform/coachcore/persona"
	"github.com/peakform/coachcore/schedule"
	"github.com/peakform/coachcore/store"
	"github.com/peakform/coachcore/store/sqlite"
)

// Options overrides pieces of the wiring that the config file cannot
// express: live dependencies and extra function handlers.
type Options struct {
	// Client replaces the config-selected model client (used by tests and
	// by callers with a custom provider).
	Client model.Client
	// HealthProvider feeds the context assembler. Nil disables context
	// assembly; every turn then runs with an all-missing snapshot.
	HealthProvider health.Provider
	// Backend replaces the storage backend derived from config.StorePath.
	Backend store.PersistenceBackend
	// ExtraFunctions are registered alongside the configured built-ins.
	ExtraFunctions []dispatch.Definition
	// Logger defaults to a structured text logger at the configured level.
	Logger logging.Logger
}

// System is the assembled coaching core.
type System struct {
	Orchestrator *coach.Orchestrator
	Scheduler    *schedule.Scheduler
	Store        *store.Store
	Stores       *functions.Stores
	Registry     *dispatch.Registry

	cfg    config.Config
	logger logging.Logger
}

// New wires a complete system from configuration. Construction fails fast on
// any invalid configuration, before a single request is served.
func New(cfg config.Config, optFns ...func(o *Options)) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewSlogLogger(parseLevel(cfg.LogLevel), cfg.LogFormat, false)
	}

	backend := opts.Backend
	if backend == nil {
		if cfg.StorePath != "" {
			b, err := sqlite.Open(cfg.StorePath)
			if err != nil {
				return nil, fmt.Errorf("open store: %w", err)
			}
			backend = b
		} else {
			backend = store.NewMemoryBackend()
		}
	}
	sessions := store.New(backend, cfg.StoreConfig(), logging.ForComponent(logger, "store"))

	domain := functions.NewStores()
	defs := functions.Definitions(domain)
	if len(cfg.Functions) > 0 {
		selected, err := selectDefinitions(defs, cfg.Functions)
		if err != nil {
			return nil, err
		}
		defs = selected
	}
	defs = append(defs, opts.ExtraFunctions...)
	registry, err := dispatch.NewRegistry(defs...)
	if err != nil {
		return nil, err
	}
	dispatcher := dispatch.NewDispatcher(registry, cfg.DispatcherConfig(), logging.ForComponent(logger, "dispatch"))

	var assembler *health.Assembler
	if opts.HealthProvider != nil {
		assembler = health.NewAssembler(opts.HealthProvider, cfg.AssemblerConfig(), logging.ForComponent(logger, "health"))
	}

	client := opts.Client
	if client == nil {
		client, err = newClient(cfg.Model)
		if err != nil {
			return nil, err
		}
	}

	orch, err := coach.New(client, assembler, persona.NewEngine(), sessions, dispatcher, registry, cfg.CoachConfig(), logging.ForComponent(logger, "coach"))
	if err != nil {
		return nil, err
	}

	return &System{
		Orchestrator: orch,
		Scheduler:    schedule.New(orch, sessions, schedule.Options{}, logging.ForComponent(logger, "schedule")),
		Store:        sessions,
		Stores:       domain,
		Registry:     registry,
		cfg:          cfg,
		logger:       logger,
	}, nil
}

// Chat runs one turn using the configured default interaction type and the
// named persona. It is the synchronous convenience entry point; callers
// needing full control use Orchestrator.RunTurn directly.
func (s *System) Chat(ctx context.Context, sessionID, userID, input, personaName string) (coach.TurnResult, error) {
	kind, err := core.ParseInteractionType(s.cfg.DefaultInteraction)
	if err != nil {
		return coach.TurnResult{}, err
	}
	return s.Orchestrator.RunTurn(ctx, coach.TurnRequest{
		SessionID:   sessionID,
		UserID:      userID,
		Input:       input,
		Interaction: kind,
		Persona:     s.cfg.Persona(personaName),
	})
}

func newClient(mc config.ModelConfig) (model.Client, error) {
	switch mc.Provider {
	case "anthropic":
		return anthropic.NewClient(func(o *anthropic.Options) {
			if mc.Name != "" {
				o.Model = anthropicsdk.Model(mc.Name)
			}
			o.APIKey = mc.APIKey
		}), nil
	case "openai":
		return openai.NewClient(func(o *openai.Options) {
			if mc.Name != "" {
				o.Model = mc.Name
			}
		}), nil
	case "mock":
		return model.NewMockClient(), nil
	default:
		return nil, &core.ConfigurationError{Field: "model.provider", Message: fmt.Sprintf("unknown provider %q", mc.Provider)}
	}
}

func selectDefinitions(defs []dispatch.Definition, names []string) ([]dispatch.Definition, error) {
	byName := make(map[string]dispatch.Definition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}
	out := make([]dispatch.Definition, 0, len(names))
	for _, n := range names {
		d, ok := byName[n]
		if !ok {
			return nil, &core.ConfigurationError{Field: "functions", Message: fmt.Sprintf("unknown built-in function %q", n)}
		}
		out = append(out, d)
	}
	return out, nil
}

func parseLevel(s string) logging.LogLevel {
	switch s {
	case "debug":
		return logging.LogLevelDebug
	case "warn":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}
