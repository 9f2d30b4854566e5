package embedding

import (
	"context"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// GenAI generates embeddings with Google's Gemini API.
type GenAI struct {
	client   *genai.Client
	model    string
	taskType string
	dims     int
}

// NewGenAI creates a GenAI embedder. The output dimensionality is pinned to
// dims (768 when unset) so vectors fit the index schema.
func NewGenAI(ctx context.Context, apiKey, model, taskType string, dims int) (*GenAI, error) {
	if apiKey == "" {
		return nil, eris.New("genai: API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if taskType == "" {
		taskType = "SEMANTIC_SIMILARITY"
	}
	if dims <= 0 {
		dims = 768
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "genai: create client")
	}
	return &GenAI{client: client, model: model, taskType: taskType, dims: dims}, nil
}

func (g *GenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	dims := int32(g.dims)
	result, err := g.client.Models.EmbedContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{TaskType: g.taskType, OutputDimensionality: &dims},
	)
	if err != nil {
		return nil, eris.Wrap(err, "genai: embed content")
	}
	if len(result.Embeddings) == 0 || result.Embeddings[0] == nil {
		return nil, eris.New("genai: no embeddings returned")
	}
	// Truncated outputs are not unit length.
	return normalize(result.Embeddings[0].Values), nil
}

func (g *GenAI) Dimensions() int { return g.dims }
func (g *GenAI) Name() string    { return "genai:" + g.model }
