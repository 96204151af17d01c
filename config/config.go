// Package config is the single configuration surface of the module. There is
// no CLI: callers load a YAML file (plus a .env overlay for secrets) into a
// Config and hand the derived sub-configs to each component.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/peakform/coachcore/coach"
	"github.com/peakform/coachcore/core"
	"github.com/peakform/coachcore/dispatch"
	"github.com/peakform/coachcore/health"
	"github.com/peakform/coachcore/persona"
	"github.com/peakform/coachcore/store"
)

// Duration wraps time.Duration so YAML values can be written as "800ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) std() time.Duration { return time.Duration(d) }

// ModelConfig selects and bounds the model client. The API key is never read
// from YAML; it comes from the environment (optionally via a .env file).
type ModelConfig struct {
	Provider string   `yaml:"provider"` // anthropic | openai | mock
	Name     string   `yaml:"name"`
	Timeout  Duration `yaml:"timeout"`
	Retries  int      `yaml:"retries"`
	APIKey   string   `yaml:"-"`
}

// PersonaConfig is a named persona entry clients can reference per user.
type PersonaConfig struct {
	Preset  string             `yaml:"preset"`
	Weights map[string]float64 `yaml:"weights"`
}

// Config is the full configuration tree.
type Config struct {
	DefaultInteraction string   `yaml:"default_interaction"`
	ChatKeepLast       int      `yaml:"chat_keep_last"`
	TransactionBuffer  int      `yaml:"transaction_buffer"`
	HybridIdleTimeout  Duration `yaml:"hybrid_idle_timeout"`

	SourceTimeout   Duration `yaml:"source_timeout"`
	AssembleTimeout Duration `yaml:"assemble_timeout"`

	FunctionTimeout      Duration `yaml:"function_timeout"`
	FunctionRetries      int      `yaml:"function_retries"`
	MaxParallelFunctions int      `yaml:"max_parallel_functions"`

	MaxIterations int      `yaml:"max_iterations"`
	ContextBudget Duration `yaml:"context_budget"`

	Model ModelConfig `yaml:"model"`

	Personas  map[string]PersonaConfig `yaml:"personas"`
	Functions []string                 `yaml:"functions"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	StorePath string `yaml:"store_path"` // sqlite file; empty => in-memory backend
}

// Default returns the configuration used when a field (or the whole file) is
// absent.
func Default() Config {
	return Config{
		DefaultInteraction:   core.InteractionChat.String(),
		ChatKeepLast:         50,
		TransactionBuffer:    4,
		HybridIdleTimeout:    Duration(10 * time.Minute),
		SourceTimeout:        Duration(800 * time.Millisecond),
		AssembleTimeout:      Duration(2 * time.Second),
		FunctionTimeout:      Duration(5 * time.Second),
		FunctionRetries:      1,
		MaxParallelFunctions: 4,
		MaxIterations:        5,
		ContextBudget:        Duration(3 * time.Second),
		Model: ModelConfig{
			Provider: "anthropic",
			Timeout:  Duration(10 * time.Second),
			Retries:  2,
		},
		Personas: map[string]PersonaConfig{
			"default": {Preset: persona.DefaultPreset},
		},
		Functions: []string{"log_nutrition", "adjust_goal", "query_workouts", "query_nutrition", "query_recovery"},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads the YAML file at path over Default(), then overlays environment
// variables (a .env file next to the process is honored when present).
// An empty path returns Default() with only the env overlay applied.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	// Missing .env is fine; explicit env always wins over file values.
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("COACH_MODEL_PROVIDER"); v != "" {
		c.Model.Provider = v
	}
	if v := os.Getenv("COACH_MODEL_NAME"); v != "" {
		c.Model.Name = v
	}
	if v := os.Getenv("COACH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("COACH_STORE_PATH"); v != "" {
		c.StorePath = v
	}
	switch c.Model.Provider {
	case "openai":
		c.Model.APIKey = os.Getenv("OPENAI_API_KEY")
	default:
		c.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
}

// Validate reports the first offending field as a ConfigurationError so
// startup fails before any request is served.
func (c Config) Validate() error {
	if _, err := core.ParseInteractionType(c.DefaultInteraction); err != nil {
		return &core.ConfigurationError{Field: "default_interaction", Message: err.Error()}
	}
	if c.ChatKeepLast <= 0 {
		return &core.ConfigurationError{Field: "chat_keep_last", Message: "must be positive"}
	}
	if c.TransactionBuffer <= 0 {
		return &core.ConfigurationError{Field: "transaction_buffer", Message: "must be positive"}
	}
	if c.HybridIdleTimeout.std() <= 0 {
		return &core.ConfigurationError{Field: "hybrid_idle_timeout", Message: "must be positive"}
	}
	if c.SourceTimeout.std() <= 0 || c.AssembleTimeout.std() <= 0 {
		return &core.ConfigurationError{Field: "source_timeout", Message: "timeouts must be positive"}
	}
	if c.SourceTimeout.std() > c.AssembleTimeout.std() {
		return &core.ConfigurationError{Field: "source_timeout", Message: "per-source timeout exceeds the overall assemble timeout"}
	}
	if c.FunctionTimeout.std() <= 0 {
		return &core.ConfigurationError{Field: "function_timeout", Message: "must be positive"}
	}
	if c.FunctionRetries < 0 {
		return &core.ConfigurationError{Field: "function_retries", Message: "must not be negative"}
	}
	if c.MaxParallelFunctions <= 0 {
		return &core.ConfigurationError{Field: "max_parallel_functions", Message: "must be positive"}
	}
	if c.MaxIterations <= 0 {
		return &core.ConfigurationError{Field: "max_iterations", Message: "must be positive"}
	}
	if c.Model.Retries < 0 {
		return &core.ConfigurationError{Field: "model.retries", Message: "must not be negative"}
	}
	if c.Model.Timeout.std() <= 0 {
		return &core.ConfigurationError{Field: "model.timeout", Message: "must be positive"}
	}
	switch c.Model.Provider {
	case "anthropic", "openai", "mock":
	default:
		return &core.ConfigurationError{Field: "model.provider", Message: fmt.Sprintf("unknown provider %q", c.Model.Provider)}
	}

	engine := persona.NewEngine()
	for name, p := range c.Personas {
		blend, err := engine.Resolve(persona.Config{Preset: p.Preset, Weights: p.Weights})
		if err != nil {
			return &core.ConfigurationError{Field: "personas." + name, Message: err.Error()}
		}
		if err := persona.AssertNormalized(blend); err != nil {
			return &core.ConfigurationError{Field: "personas." + name, Message: err.Error()}
		}
	}

	seen := make(map[string]bool, len(c.Functions))
	for _, fn := range c.Functions {
		if fn == "" {
			return &core.ConfigurationError{Field: "functions", Message: "function name must not be empty"}
		}
		if seen[fn] {
			return &core.ConfigurationError{Field: "functions", Message: fmt.Sprintf("duplicate function %q", fn)}
		}
		seen[fn] = true
	}
	return nil
}

// Persona resolves a named persona entry, falling back to "default".
func (c Config) Persona(name string) persona.Config {
	p, ok := c.Personas[name]
	if !ok {
		p = c.Personas["default"]
	}
	return persona.Config{Preset: p.Preset, Weights: p.Weights}
}

// StoreConfig derives the conversation store configuration.
func (c Config) StoreConfig() store.Config {
	return store.Config{
		ChatKeepLast:      c.ChatKeepLast,
		TransactionBuffer: c.TransactionBuffer,
		HybridIdleTimeout: c.HybridIdleTimeout.std(),
	}
}

// AssemblerConfig derives the context assembler configuration.
func (c Config) AssemblerConfig() health.AssemblerConfig {
	return health.AssemblerConfig{
		SourceTimeout:   c.SourceTimeout.std(),
		AssembleTimeout: c.AssembleTimeout.std(),
	}
}

// DispatcherConfig derives the function dispatcher configuration.
func (c Config) DispatcherConfig() dispatch.DispatcherConfig {
	return dispatch.DispatcherConfig{
		CallTimeout: c.FunctionTimeout.std(),
		Retries:     c.FunctionRetries,
		MaxParallel: c.MaxParallelFunctions,
	}
}

// CoachConfig derives the orchestrator configuration.
func (c Config) CoachConfig() coach.Config {
	return coach.Config{
		MaxIterations: c.MaxIterations,
		ModelRetries:  c.Model.Retries,
		ModelTimeout:  c.Model.Timeout.std(),
		ContextBudget: c.ContextBudget.std(),
		HistoryLimit:  c.ChatKeepLast,
	}
}
