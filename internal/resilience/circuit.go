// Package resilience wraps calls to the module's network backends (LLM,
// embedding service, remote example index) with circuit breakers, retry
// with backoff, and per-call deadlines.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// Backend names a guarded external dependency.
type Backend string

const (
	BackendLLM         Backend = "llm"
	BackendEmbedding   Backend = "embedding"
	BackendRemoteIndex Backend = "remote_index"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig controls circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit. Default: 5.
	FailureThreshold int
	// Cooldown is how long an open circuit rejects calls before letting a
	// probe through. Default: 30s.
	Cooldown time.Duration
	// OnStateChange observes transitions, e.g. for metrics.
	OnStateChange func(b Backend, from, to CircuitState)
}

// CircuitBreaker guards one backend. A single successful probe in the
// half-open state closes it; a failed probe reopens it.
type CircuitBreaker struct {
	backend Backend
	cfg     BreakerConfig

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time

	now func() time.Time
}

// NewCircuitBreaker creates a breaker for backend.
func NewCircuitBreaker(backend Backend, cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &CircuitBreaker{backend: backend, cfg: cfg, now: time.Now}
}

// Call runs fn unless the circuit is open. Context cancellation by the
// caller does not count as a backend failure.
func Call[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !cb.allow() {
		return zero, eris.Wrapf(ErrCircuitOpen, "%s", cb.backend)
	}
	v, err := fn(ctx)
	cb.record(err == nil || ctx.Err() != nil)
	if err != nil {
		return zero, err
	}
	return v, nil
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.Cooldown {
		return CircuitHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != CircuitOpen {
		return true
	}
	if cb.now().Sub(cb.openedAt) >= cb.cfg.Cooldown {
		cb.transition(CircuitHalfOpen)
		return true
	}
	return false
}

func (cb *CircuitBreaker) record(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if ok {
		cb.failures = 0
		if cb.state == CircuitHalfOpen {
			cb.transition(CircuitClosed)
		}
		return
	}

	cb.failures++
	if cb.state == CircuitHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
		cb.openedAt = cb.now()
		if cb.state != CircuitOpen {
			cb.transition(CircuitOpen)
		}
	}
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.backend, from, to)
	}
}

// Breakers holds one circuit breaker per backend.
type Breakers struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[Backend]*CircuitBreaker
}

// NewBreakers creates an empty registry; breakers are created on first use.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, breakers: make(map[Backend]*CircuitBreaker)}
}

// Get returns the breaker for b, creating it if needed.
func (r *Breakers) Get(b Backend) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[b]
	if !ok {
		cb = NewCircuitBreaker(b, r.cfg)
		r.breakers[b] = cb
	}
	return cb
}

// States returns a snapshot of every breaker's state, keyed by backend name.
func (r *Breakers) States() map[string]string {
	r.mu.Lock()
	list := make(map[Backend]*CircuitBreaker, len(r.breakers))
	for k, v := range r.breakers {
		list[k] = v
	}
	r.mu.Unlock()

	out := make(map[string]string, len(list))
	for k, cb := range list {
		out[string(k)] = cb.State().String()
	}
	return out
}
