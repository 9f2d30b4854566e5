package llm

import (
	"context"

	"github.com/genx3d/genx3d/pkg/anthropic"
)

const defaultAnthropicModel = "claude-haiku-4-5-20251001"

// AnthropicCompleter completes prompts with the Anthropic messages API.
type AnthropicCompleter struct {
	client anthropic.Client
	cfg    Config
}

// NewAnthropic creates a completer over client.
func NewAnthropic(client anthropic.Client, cfg Config) *AnthropicCompleter {
	if cfg.Model == "" {
		cfg.Model = defaultAnthropicModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &AnthropicCompleter{client: client, cfg: cfg}
}

func (a *AnthropicCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	temp := a.cfg.Temperature
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.cfg.Model,
		MaxTokens:   int64(a.cfg.MaxTokens),
		System:      anthropic.CachedSystem(a.cfg.System),
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", classify(err, anthropic.StatusCode(err))
	}
	resp.Usage.LogUsage(a.cfg.Model)
	return resp.Text(), nil
}
