// Package llm wraps the language-model providers behind a single
// Completer interface.
package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pep299/autoinsight/internal/config"
)

// Default models per provider, used when LLM_MODEL is empty.
const (
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-sonnet-4-5-20250929"
	DefaultGeminiModel    = "gemini-1.5-flash"
)

// Completer sends one system and one user instruction and returns the
// model's raw text reply.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// New builds the completer for the configured provider. It returns nil
// and no error when the provider has no credential; callers treat that
// as "deterministic only".
func New(cfg *config.Config) (Completer, error) {
	apiKey := cfg.LLMAPIKey()
	if apiKey == "" {
		return nil, nil
	}

	httpClient := &http.Client{
		Timeout: cfg.LLMTimeout(),
	}

	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(apiKey, modelOrDefault(cfg.LLMModel, DefaultOpenAIModel), cfg.OpenAIBaseURL, httpClient), nil
	case config.ProviderAnthropic:
		return NewAnthropicClient(apiKey, modelOrDefault(cfg.LLMModel, DefaultAnthropicModel), httpClient), nil
	case config.ProviderGemini:
		return NewGeminiClient(apiKey, modelOrDefault(cfg.LLMModel, DefaultGeminiModel), httpClient), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
}

// ModelName reports the model New would use for cfg.
func ModelName(cfg *config.Config) string {
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		return modelOrDefault(cfg.LLMModel, DefaultAnthropicModel)
	case config.ProviderGemini:
		return modelOrDefault(cfg.LLMModel, DefaultGeminiModel)
	default:
		return modelOrDefault(cfg.LLMModel, DefaultOpenAIModel)
	}
}

func modelOrDefault(model, fallback string) string {
	if model != "" {
		return model
	}
	return fallback
}
