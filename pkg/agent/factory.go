package agent

import (
	"fmt"

	"agentd/pkg/agent/internal/llmimpl/anthropic"
	"agentd/pkg/agent/internal/llmimpl/ollama"
	"agentd/pkg/agent/internal/llmimpl/openai"
	"agentd/pkg/agent/llm"
	"agentd/pkg/config"
)

// NewClient constructs an LLM client for the given model configuration,
// wrapped in retry middleware. Credentials come from keys; a missing key for
// a cloud provider is a configuration error.
func NewClient(model config.ModelCfg, keys config.APIKeys) (llm.LLMClient, error) {
	var raw llm.LLMClient

	switch model.Provider {
	case config.ProviderAnthropic:
		if keys.Anthropic == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set (required for model %s)", model.Name)
		}
		raw = anthropic.NewClaudeClientWithModel(keys.Anthropic, model.Name)
	case config.ProviderOpenAI:
		if keys.OpenAI == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set (required for model %s)", model.Name)
		}
		raw = openai.NewClientWithModel(keys.OpenAI, model.Name)
	case config.ProviderOllama:
		raw = ollama.NewClientWithModel(keys.OllamaHost, model.Name)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", model.Provider)
	}

	return NewRetryableClient(raw), nil
}
