package llm

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/genx3d/genx3d/internal/resilience"
)

// Guarded wraps a Completer with a client-side rate limit, a circuit
// breaker, retry on transient errors, and a per-call deadline.
type Guarded struct {
	next    Completer
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	timeout time.Duration
}

// NewGuarded wraps next. requestsPerMinute <= 0 disables rate limiting and
// a nil breaker disables circuit breaking.
func NewGuarded(next Completer, requestsPerMinute int, breaker *resilience.CircuitBreaker, retry resilience.RetryConfig, timeout time.Duration) *Guarded {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(float64(requestsPerMinute) / 60)
	}
	retry.OnRetry = resilience.RetryLogger(resilience.BackendLLM, "complete")
	return &Guarded{
		next:    next,
		limiter: rate.NewLimiter(limit, max(1, requestsPerMinute/10)),
		breaker: breaker,
		retry:   retry,
		timeout: timeout,
	}
}

func (g *Guarded) Complete(ctx context.Context, prompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "llm: rate limit wait")
	}
	call := func(ctx context.Context) (string, error) {
		return resilience.Do(ctx, g.retry, func(ctx context.Context) (string, error) {
			return resilience.WithTimeout(ctx, g.timeout, func(ctx context.Context) (string, error) {
				return g.next.Complete(ctx, prompt)
			})
		})
	}
	if g.breaker == nil {
		return call(ctx)
	}
	return resilience.Call(ctx, g.breaker, call)
}
