package retrieval

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/genx3d/genx3d/internal/model"
	"github.com/genx3d/genx3d/internal/resilience"
	"github.com/genx3d/genx3d/pkg/pinecone"
)

// upsertBatch is Pinecone's recommended maximum vectors per upsert request.
const upsertBatch = 100

// PineconeIndex is a RemoteIndex backed by a Pinecone serverless index.
// Example prompt and code travel in vector metadata.
type PineconeIndex struct {
	client    pinecone.Client
	namespace string
}

// NewPinecone wraps a Pinecone client.
func NewPinecone(client pinecone.Client, namespace string) *PineconeIndex {
	return &PineconeIndex{client: client, namespace: namespace}
}

// Query implements RemoteIndex.
func (p *PineconeIndex) Query(ctx context.Context, vec []float32, k int) ([]model.RemoteMatch, error) {
	resp, err := p.client.Query(ctx, pinecone.QueryRequest{
		Vector:          vec,
		TopK:            k,
		Namespace:       p.namespace,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, classifyPinecone(err)
	}
	out := make([]model.RemoteMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		out = append(out, model.RemoteMatch{
			ID:     m.ID,
			Prompt: m.MetadataString("prompt"),
			Code:   m.MetadataString("code"),
			Score:  m.Score,
		})
	}
	return out, nil
}

// Upsert writes examples in batches and returns the number upserted.
func (p *PineconeIndex) Upsert(ctx context.Context, examples []model.Example) (int64, error) {
	var total int64
	for start := 0; start < len(examples); start += upsertBatch {
		end := min(start+upsertBatch, len(examples))
		vectors := make([]pinecone.Vector, 0, end-start)
		for _, ex := range examples[start:end] {
			if len(ex.Embedding) == 0 {
				return total, eris.Errorf("pinecone: example %q has no embedding", ex.ID)
			}
			vectors = append(vectors, pinecone.Vector{
				ID:     ex.ID,
				Values: ex.Embedding,
				Metadata: map[string]any{
					"prompt": ex.Prompt,
					"code":   ex.Code,
					"tags":   ex.Tags,
				},
			})
		}
		resp, err := p.client.Upsert(ctx, pinecone.UpsertRequest{Vectors: vectors, Namespace: p.namespace})
		if err != nil {
			return total, classifyPinecone(err)
		}
		total += int64(resp.UpsertedCount)
	}
	return total, nil
}

func classifyPinecone(err error) error {
	var se *pinecone.StatusError
	if errors.As(err, &se) && resilience.IsTransientHTTPStatus(se.StatusCode) {
		return resilience.NewTransientError(err, se.StatusCode)
	}
	return err
}
