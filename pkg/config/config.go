// Package config provides YAML configuration loading and validation for
// agentd. API keys are read from the environment, never from config files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"agentd/pkg/proto"
)

// Provider name constants.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// Default model names per provider.
const (
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultOpenAIModel    = "gpt-4o"
	DefaultOllamaModel    = "qwen2.5-coder:14b"
)

// Loop budget defaults. Understanding is exploration-bounded; executing gets
// more room because write and exec tools are in play.
const (
	DefaultUnderstandingIterations = 10
	DefaultExecutingIterations     = 20
	DefaultPhaseTimeout            = 5 * time.Minute
	DefaultCommandTimeout          = 30 * time.Second
	DefaultValidationBudget        = 3
)

// ModelCfg selects a provider/model pair for one phase.
type ModelCfg struct {
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

// ModelsCfg maps each LLM-driven phase to a model. Cheaper models for
// read-only exploration, stronger ones for planning and execution, is policy
// expressed here; the orchestrator core does not depend on it.
type ModelsCfg struct {
	Understanding ModelCfg `yaml:"understanding"`
	Planning      ModelCfg `yaml:"planning"`
	Executing     ModelCfg `yaml:"executing"`
}

// BudgetsCfg bounds each phase's tool loop.
type BudgetsCfg struct {
	UnderstandingIterations int           `yaml:"understanding_iterations"`
	ExecutingIterations     int           `yaml:"executing_iterations"`
	PhaseTimeout            time.Duration `yaml:"phase_timeout"`
	CommandTimeout          time.Duration `yaml:"command_timeout"`
	ValidationBudget        int           `yaml:"validation_budget"`
}

// ServerCfg configures the HTTP/websocket listener.
type ServerCfg struct {
	Addr string `yaml:"addr"`
}

// Config is the full agentd configuration.
type Config struct {
	Server       ServerCfg  `yaml:"server"`
	Models       ModelsCfg  `yaml:"models"`
	Budgets      BudgetsCfg `yaml:"budgets"`
	WorkspaceDir string     `yaml:"workspace_dir"` // root for per-task checkouts
	DatabasePath string     `yaml:"database_path"` // task archive, "" disables
}

// APIKeys holds provider credentials resolved from the environment.
type APIKeys struct {
	Anthropic  string
	OpenAI     string
	OllamaHost string
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server: ServerCfg{Addr: ":8080"},
		Models: ModelsCfg{
			Understanding: ModelCfg{Provider: ProviderAnthropic, Name: DefaultAnthropicModel, MaxTokens: 4096, Temperature: 0.3},
			Planning:      ModelCfg{Provider: ProviderAnthropic, Name: DefaultAnthropicModel, MaxTokens: 4096, Temperature: 0.3},
			Executing:     ModelCfg{Provider: ProviderAnthropic, Name: DefaultAnthropicModel, MaxTokens: 8192, Temperature: 0.2},
		},
		Budgets: BudgetsCfg{
			UnderstandingIterations: DefaultUnderstandingIterations,
			ExecutingIterations:     DefaultExecutingIterations,
			PhaseTimeout:            DefaultPhaseTimeout,
			CommandTimeout:          DefaultCommandTimeout,
			ValidationBudget:        DefaultValidationBudget,
		},
		WorkspaceDir: "./workspaces",
		DatabasePath: "./agentd.db",
	}
}

// Load reads the YAML config at path, merging over defaults. A missing file
// is not an error; defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadAPIKeys resolves provider credentials from the environment.
func LoadAPIKeys() APIKeys {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	return APIKeys{
		Anthropic:  os.Getenv("ANTHROPIC_API_KEY"),
		OpenAI:     os.Getenv("OPENAI_API_KEY"),
		OllamaHost: host,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}
	if c.WorkspaceDir == "" {
		return fmt.Errorf("workspace_dir cannot be empty")
	}
	for phase, m := range map[proto.Phase]ModelCfg{
		proto.PhaseUnderstanding: c.Models.Understanding,
		proto.PhasePlanning:      c.Models.Planning,
		proto.PhaseExecuting:     c.Models.Executing,
	} {
		if err := m.validate(); err != nil {
			return fmt.Errorf("models.%s: %w", phase, err)
		}
	}
	if c.Budgets.UnderstandingIterations <= 0 || c.Budgets.ExecutingIterations <= 0 {
		return fmt.Errorf("budget iterations must be positive")
	}
	if c.Budgets.PhaseTimeout <= 0 {
		return fmt.Errorf("budgets.phase_timeout must be positive")
	}
	if c.Budgets.ValidationBudget <= 0 {
		return fmt.Errorf("budgets.validation_budget must be positive")
	}
	return nil
}

func (m *ModelCfg) validate() error {
	switch m.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("unknown provider %q", m.Provider)
	}
	if m.Name == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if m.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive")
	}
	if m.Temperature < 0 || m.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	return nil
}

// ForPhase returns the model configuration for an LLM-driven phase.
func (c *Config) ForPhase(phase proto.Phase) ModelCfg {
	switch phase {
	case proto.PhasePlanning:
		return c.Models.Planning
	case proto.PhaseExecuting:
		return c.Models.Executing
	default:
		return c.Models.Understanding
	}
}
