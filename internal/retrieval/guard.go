package retrieval

import (
	"context"
	"time"

	"github.com/genx3d/genx3d/internal/model"
	"github.com/genx3d/genx3d/internal/resilience"
)

// Retrieval backends are not retried: a slow or failing backend is skipped
// so the request can fall through to the next source. The breaker keeps a
// dead backend from being hit on every request.

// GuardedRemote bounds a RemoteIndex with a circuit breaker and a per-call
// timeout.
type GuardedRemote struct {
	next    RemoteIndex
	breaker *resilience.CircuitBreaker
	timeout time.Duration
}

// NewGuardedRemote wraps next. A nil breaker disables breaking.
func NewGuardedRemote(next RemoteIndex, breaker *resilience.CircuitBreaker, timeout time.Duration) *GuardedRemote {
	return &GuardedRemote{next: next, breaker: breaker, timeout: timeout}
}

// Query implements RemoteIndex.
func (g *GuardedRemote) Query(ctx context.Context, vec []float32, k int) ([]model.RemoteMatch, error) {
	call := func(ctx context.Context) ([]model.RemoteMatch, error) {
		return resilience.WithTimeout(ctx, g.timeout, func(ctx context.Context) ([]model.RemoteMatch, error) {
			return g.next.Query(ctx, vec, k)
		})
	}
	if g.breaker == nil {
		return call(ctx)
	}
	return resilience.Call(ctx, g.breaker, call)
}

// GuardedEmbedder bounds an Embedder the same way.
type GuardedEmbedder struct {
	next    Embedder
	breaker *resilience.CircuitBreaker
	timeout time.Duration
}

// NewGuardedEmbedder wraps next. A nil breaker disables breaking.
func NewGuardedEmbedder(next Embedder, breaker *resilience.CircuitBreaker, timeout time.Duration) *GuardedEmbedder {
	return &GuardedEmbedder{next: next, breaker: breaker, timeout: timeout}
}

// Embed implements Embedder.
func (g *GuardedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	call := func(ctx context.Context) ([]float32, error) {
		return resilience.WithTimeout(ctx, g.timeout, func(ctx context.Context) ([]float32, error) {
			return g.next.Embed(ctx, text)
		})
	}
	if g.breaker == nil {
		return call(ctx)
	}
	return resilience.Call(ctx, g.breaker, call)
}
