package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/genx3d/genx3d/internal/resilience"
)

// Ollama generates embeddings with a local Ollama server.
type Ollama struct {
	endpoint string
	model    string
	dims     int
	client   *http.Client
}

// NewOllama creates an Ollama embedder. dims is the model's output width
// (768 for embeddinggemma when unset).
func NewOllama(endpoint, model string, dims int) *Ollama {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "embeddinggemma"
	}
	if dims <= 0 {
		dims = 768
	}
	return &Ollama{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		dims:     dims,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, eris.Wrap(err, "ollama: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "ollama: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ollama: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, resilience.HTTPStatusError("ollama", resp, b)
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "ollama: decode response")
	}
	if len(out.Embedding) != o.dims {
		return nil, eris.Errorf("ollama: model %s returned %d dimensions, expected %d", o.model, len(out.Embedding), o.dims)
	}
	return out.Embedding, nil
}

func (o *Ollama) Dimensions() int { return o.dims }
func (o *Ollama) Name() string    { return "ollama:" + o.model }
