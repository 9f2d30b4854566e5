// Package llm adapts chat completion clients to the single
// prompt-in/text-out call used by code synthesis, intent routing, and help.
package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/genx3d/genx3d/internal/resilience"
	"github.com/genx3d/genx3d/pkg/anthropic"
	"github.com/genx3d/genx3d/pkg/openai"
)

// Completer is the LLM collaborator: prompt in, text out.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config selects the completion backend and generation parameters.
type Config struct {
	// Provider is "anthropic" or "openai" (any OpenAI-compatible endpoint).
	Provider          string  `yaml:"provider" mapstructure:"provider"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	RequestsPerMinute int     `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	// System is sent as the system prompt on every call.
	System string `yaml:"system" mapstructure:"system"`
}

// ProviderConfig holds credentials and endpoint for one provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// New builds the configured completer without guards.
func New(cfg Config, anth, oai ProviderConfig) (Completer, error) {
	switch cfg.Provider {
	case "anthropic":
		if anth.APIKey == "" {
			return nil, eris.New("llm: anthropic.api_key is required")
		}
		var opts []anthropic.Option
		if anth.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(anth.BaseURL))
		}
		return NewAnthropic(anthropic.NewClient(anth.APIKey, opts...), cfg), nil
	case "", "openai":
		opts := []openai.Option{openai.WithHeader("X-Title", "genx3d")}
		if oai.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(oai.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		return NewOpenAI(openai.NewClient(oai.APIKey, opts...), cfg), nil
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// classify marks retryable HTTP failures as transient.
func classify(err error, status int) error {
	if status != 0 && resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(err, status)
	}
	return err
}
