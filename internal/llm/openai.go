package llm

import (
	"context"
	"errors"

	"github.com/genx3d/genx3d/pkg/openai"
)

// OpenAICompleter completes prompts with an OpenAI-compatible chat endpoint.
type OpenAICompleter struct {
	client openai.Client
	cfg    Config
}

// NewOpenAI creates a completer over client. The model configured on the
// client is used when cfg.Model is empty.
func NewOpenAI(client openai.Client, cfg Config) *OpenAICompleter {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &OpenAICompleter{client: client, cfg: cfg}
}

func (o *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	var msgs []openai.Message
	if o.cfg.System != "" {
		msgs = append(msgs, openai.Message{Role: "system", Content: o.cfg.System})
	}
	msgs = append(msgs, openai.Message{Role: "user", Content: prompt})

	temp, maxTokens := o.cfg.Temperature, o.cfg.MaxTokens
	resp, err := o.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.cfg.Model,
		Messages:    msgs,
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", classify(err, apiErr.StatusCode)
		}
		return "", err
	}
	return resp.Text(), nil
}
