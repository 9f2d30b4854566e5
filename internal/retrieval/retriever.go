// Package retrieval ranks known-good CAD examples for a request by querying
// a local index and a remote index, then merging, deduplicating and sorting
// the hits. When both backends come back empty it answers from a small
// built-in set of canonical examples.
package retrieval

import (
	"cmp"
	"context"
	"slices"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/genx3d/genx3d/internal/model"
)

// DefaultTopK is used when a caller asks for zero or fewer results.
const DefaultTopK = 3

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LocalIndex answers nearest-neighbour queries with raw L2 distances. It
// never fails; an unavailable index returns no candidates.
type LocalIndex interface {
	LookupCandidates(ctx context.Context, vec []float32, k int) []model.Candidate
}

// RemoteIndex answers nearest-neighbour queries with native similarity
// scores.
type RemoteIndex interface {
	Query(ctx context.Context, vec []float32, k int) ([]model.RemoteMatch, error)
}

// Observer receives retrieval outcomes, e.g. for metrics.
type Observer interface {
	RetrievalResults(source model.Source, n int)
	BackendError(backend string)
}

type noopObserver struct{}

func (noopObserver) RetrievalResults(model.Source, int) {}
func (noopObserver) BackendError(string)                {}

// Retriever is safe for concurrent use; it holds no mutable state.
type Retriever struct {
	embedder Embedder
	local    LocalIndex
	remote   RemoteIndex
	observer Observer
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithRemote sets the remote index. Without one only the local index and
// the fallback set are consulted.
func WithRemote(r RemoteIndex) Option {
	return func(rt *Retriever) { rt.remote = r }
}

// WithObserver sets the outcome observer.
func WithObserver(o Observer) Option {
	return func(rt *Retriever) { rt.observer = o }
}

// New creates a Retriever. local may be nil.
func New(embedder Embedder, local LocalIndex, opts ...Option) *Retriever {
	r := &Retriever{embedder: embedder, local: local, observer: noopObserver{}}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Retrieve returns at most topK results ordered by descending score. It
// never fails and never returns an empty slice: backend errors degrade to
// the remaining backend and finally to the fallback set.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, useHybrid bool) []model.RetrievalResult {
	if topK <= 0 {
		topK = DefaultTopK
	}
	log := zap.L().With(zap.String("query", query), zap.Int("top_k", topK))

	var results []model.RetrievalResult
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		log.Warn("retrieval: embedding failed, skipping indexes",
			zap.String("error_kind", string(model.KindRetrievalBackend)), zap.Error(err))
		r.observer.BackendError("embedding")
	} else {
		local := r.queryLocal(ctx, vec, topK)
		results = append(results, local...)
		if len(local) < topK || !useHybrid {
			results = append(results, r.queryRemote(ctx, log, vec, topK)...)
		}
	}

	results = rank(results)
	if len(results) == 0 {
		results = Fallback(query)
		r.observer.RetrievalResults(model.SourceFallback, len(results))
		log.Info("retrieval: no index results, using fallback examples", zap.Int("count", len(results)))
	}
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

func (r *Retriever) queryLocal(ctx context.Context, vec []float32, k int) []model.RetrievalResult {
	if r.local == nil {
		return nil
	}
	cands := r.local.LookupCandidates(ctx, vec, k)
	out := make([]model.RetrievalResult, 0, len(cands))
	for _, c := range cands {
		out = append(out, model.RetrievalResult{
			Prompt: c.Example.Prompt,
			Code:   c.Example.Code,
			Score:  DistanceScore(c.Distance),
			Source: model.SourceLocal,
		})
	}
	r.observer.RetrievalResults(model.SourceLocal, len(out))
	return out
}

func (r *Retriever) queryRemote(ctx context.Context, log *zap.Logger, vec []float32, k int) []model.RetrievalResult {
	if r.remote == nil {
		return nil
	}
	matches, err := r.remote.Query(ctx, vec, k)
	if err != nil {
		log.Warn("retrieval: remote index failed, continuing without it",
			zap.String("error_kind", string(model.KindRetrievalBackend)), zap.Error(err))
		r.observer.BackendError("remote_index")
		return nil
	}
	out := make([]model.RetrievalResult, 0, len(matches))
	for _, m := range matches {
		if m.Code == "" {
			continue
		}
		out = append(out, model.RetrievalResult{
			Prompt: m.Prompt,
			Code:   m.Code,
			Score:  clamp01(m.Score),
			Source: model.SourceRemote,
		})
	}
	r.observer.RetrievalResults(model.SourceRemote, len(out))
	return out
}

// DistanceScore converts a raw L2 distance to a similarity: 1 - d/2,
// clamped to [0,1]. For unit vectors d is in [0,2], so the clamp only
// affects non-normalized embedders.
func DistanceScore(d float64) float64 {
	return clamp01(1 - d/2)
}

func clamp01(f float64) float64 {
	return min(max(f, 0), 1)
}

// rank deduplicates results by code signature and sorts them by descending
// score. The survivor of a duplicate group is the highest score, with ties
// going to the higher-priority source. Equal scores across different code
// keep source priority, then input order.
func rank(results []model.RetrievalResult) []model.RetrievalResult {
	best := make(map[uint64]int, len(results))
	var out []model.RetrievalResult
	for _, res := range results {
		sig := xxhash.Sum64String(res.Code)
		i, seen := best[sig]
		if !seen {
			best[sig] = len(out)
			out = append(out, res)
			continue
		}
		cur := out[i]
		if res.Score > cur.Score || (res.Score == cur.Score && res.Source.Priority() < cur.Source.Priority()) {
			out[i] = res
		}
	}
	slices.SortStableFunc(out, func(a, b model.RetrievalResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Source.Priority(), b.Source.Priority())
	})
	return out
}
