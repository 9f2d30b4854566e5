package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genx3d/genx3d/internal/resilience"
)

func norm(v []float32) float64 {
	var s float64
	for _, f := range v {
		s += float64(f) * float64(f)
	}
	return math.Sqrt(s)
}

func dist(a, b []float32) float64 {
	var s float64
	for i := range a {
		d := float64(a[i] - b[i])
		s += d * d
	}
	return math.Sqrt(s)
}

func TestHash_Deterministic(t *testing.T) {
	h := NewHash(0)
	assert.Equal(t, 256, h.Dimensions())
	assert.Equal(t, "hash:256", h.Name())

	a, err := h.Embed(context.Background(), "A cylinder with a hole")
	require.NoError(t, err)
	b, err := h.Embed(context.Background(), "a CYLINDER with a hole!")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1, norm(a), 1e-6)
}

func TestHash_SimilarTextIsCloser(t *testing.T) {
	h := NewHash(512)
	ctx := context.Background()
	q, _ := h.Embed(ctx, "create a cuboid")
	same, _ := h.Embed(ctx, "a cuboid")
	other, _ := h.Embed(ctx, "sphere of radius 5")

	assert.InDelta(t, 0, dist(q, same), 1e-6, "stopwords are ignored")
	assert.Greater(t, dist(q, other), 1.0)
}

func TestHash_EmptyText(t *testing.T) {
	v, err := NewHash(8).Embed(context.Background(), "the a of")
	require.NoError(t, err)
	assert.Len(t, v, 8)
	assert.Zero(t, norm(v))
}

func TestOllama_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "a cube", req.Prompt)
		w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	o := NewOllama(srv.URL+"/", "nomic-embed-text", 3)
	v, err := o.Embed(context.Background(), "a cube")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, v)
	assert.Equal(t, "ollama:nomic-embed-text", o.Name())
	assert.Equal(t, 3, o.Dimensions())
}

func TestOllama_Errors(t *testing.T) {
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(`{"embedding":[1,2]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "", 3)
	_, err := o.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))

	status = http.StatusOK
	_, err = o.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned 2 dimensions, expected 3")
}

func TestOllama_Defaults(t *testing.T) {
	o := NewOllama("", "", 0)
	assert.Equal(t, "http://localhost:11434", o.endpoint)
	assert.Equal(t, "ollama:embeddinggemma", o.Name())
	assert.Equal(t, 768, o.Dimensions())
}

func TestNewGenAI(t *testing.T) {
	_, err := NewGenAI(context.Background(), "", "", "", 0)
	require.Error(t, err)

	g, err := NewGenAI(context.Background(), "test-key", "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "genai:gemini-embedding-001", g.Name())
	assert.Equal(t, 768, g.Dimensions())
	assert.Equal(t, "SEMANTIC_SIMILARITY", g.taskType)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	e, err := New(ctx, Config{Dimensions: 64}, OllamaConfig{}, GenAIConfig{})
	require.NoError(t, err)
	assert.Equal(t, "hash:64", e.Name())

	e, err = New(ctx, Config{Provider: "ollama"}, OllamaConfig{Model: "m"}, GenAIConfig{})
	require.NoError(t, err)
	assert.Equal(t, "ollama:m", e.Name())

	_, err = New(ctx, Config{Provider: "word2vec"}, OllamaConfig{}, GenAIConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

type countingEmbedder struct {
	calls atomic.Int32
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}
func (c *countingEmbedder) Dimensions() int { return 2 }
func (c *countingEmbedder) Name() string    { return "counting" }

func TestCached(t *testing.T) {
	next := &countingEmbedder{}
	c, err := NewCached(next, 1<<20, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	v1, err := c.Embed(ctx, "abc")
	require.NoError(t, err)
	v2, err := c.Embed(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), next.calls.Load())

	_, err = c.Embed(ctx, "abcd")
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
	assert.Equal(t, "counting", c.Name())
	assert.Equal(t, 2, c.Dimensions())
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	next := &countingEmbedder{err: errors.New("down")}
	c, err := NewCached(next, 1<<20, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Embed(context.Background(), "x")
	require.Error(t, err)
	_, err = c.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, int32(2), next.calls.Load())

	_, err = NewCached(next, 0, time.Minute)
	assert.Error(t, err)
}

func TestPackUnpack(t *testing.T) {
	v := []float32{1, -0.5, 3.25}
	assert.Equal(t, v, unpack(pack(v)))
}
