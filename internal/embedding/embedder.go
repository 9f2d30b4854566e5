// Package embedding turns text into fixed-length vectors for example
// retrieval. Backends: a local feature-hashing embedder, Ollama, and Google
// GenAI, optionally fronted by an in-process cache.
package embedding

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions is the length of every returned vector.
	Dimensions() int
	// Name identifies the backend and model, e.g. "ollama:embeddinggemma".
	Name() string
}

// Config selects and configures the embedding backend.
type Config struct {
	// Provider is "hash", "ollama" or "genai".
	Provider   string `yaml:"provider" mapstructure:"provider"`
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"`
	// CacheMaxBytes bounds the embedding cache; 0 disables it.
	CacheMaxBytes int64 `yaml:"cache_max_bytes" mapstructure:"cache_max_bytes"`
	CacheTTLSecs  int   `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// OllamaConfig configures the Ollama backend.
type OllamaConfig struct {
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Model    string `yaml:"model" mapstructure:"model"`
}

// GenAIConfig configures the Google GenAI backend.
type GenAIConfig struct {
	APIKey   string `yaml:"api_key" mapstructure:"api_key"`
	Model    string `yaml:"model" mapstructure:"model"`
	TaskType string `yaml:"task_type" mapstructure:"task_type"`
}

// New builds the configured embedder. The cache wrapper is applied by the
// caller via NewCached.
func New(ctx context.Context, cfg Config, ollama OllamaConfig, genai GenAIConfig) (Embedder, error) {
	switch cfg.Provider {
	case "", "hash":
		return NewHash(cfg.Dimensions), nil
	case "ollama":
		return NewOllama(ollama.Endpoint, ollama.Model, cfg.Dimensions), nil
	case "genai":
		return NewGenAI(ctx, genai.APIKey, genai.Model, genai.TaskType, cfg.Dimensions)
	default:
		return nil, eris.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}

// normalize scales v to unit L2 length in place. A zero vector is left as is.
func normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
