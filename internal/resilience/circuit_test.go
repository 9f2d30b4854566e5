package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func failing(context.Context) (int, error) { return 0, errors.New("fail") }
func passing(context.Context) (int, error) { return 1, nil }

func TestCircuitBreaker_ClosedPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker(BackendLLM, BreakerConfig{})

	v, err := Call(context.Background(), cb, passing)
	if err != nil || v != 1 {
		t.Fatalf("got (%d, %v), want (1, nil)", v, err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(BackendEmbedding, BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		_, _ = Call(context.Background(), cb, failing)
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	_, err := Call(context.Background(), cb, func(context.Context) (int, error) {
		t.Error("should not be called when circuit is open")
		return 0, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker(BackendLLM, BreakerConfig{FailureThreshold: 2})

	_, _ = Call(context.Background(), cb, failing)
	_, _ = Call(context.Background(), cb, passing)
	_, _ = Call(context.Background(), cb, failing)
	if cb.State() != CircuitClosed {
		t.Errorf("non-consecutive failures must not open the circuit, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Unix(1000, 0)
	var transitions []string
	cb := NewCircuitBreaker(BackendRemoteIndex, BreakerConfig{
		FailureThreshold: 1,
		Cooldown:         10 * time.Second,
		OnStateChange: func(b Backend, from, to CircuitState) {
			transitions = append(transitions, string(b)+":"+from.String()+"->"+to.String())
		},
	})
	cb.now = func() time.Time { return now }

	_, _ = Call(context.Background(), cb, failing)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	now = now.Add(11 * time.Second)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open after cooldown, got %s", cb.State())
	}

	// Failed probe reopens.
	_, _ = Call(context.Background(), cb, failing)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected reopened, got %s", cb.State())
	}

	now = now.Add(11 * time.Second)
	if _, err := Call(context.Background(), cb, passing); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed after successful probe, got %s", cb.State())
	}

	want := []string{
		"remote_index:closed->open",
		"remote_index:open->half-open",
		"remote_index:half-open->open",
		"remote_index:open->half-open",
		"remote_index:half-open->closed",
	}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_CallerCancellationIsNotFailure(t *testing.T) {
	cb := NewCircuitBreaker(BackendLLM, BreakerConfig{FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Call(ctx, cb, func(ctx context.Context) (int, error) { return 0, ctx.Err() })
	if err == nil {
		t.Fatal("expected error")
	}
	if cb.State() != CircuitClosed {
		t.Errorf("cancellation tripped the breaker: %s", cb.State())
	}
}

func TestBreakers_GetAndStates(t *testing.T) {
	r := NewBreakers(BreakerConfig{FailureThreshold: 1})
	if r.Get(BackendLLM) != r.Get(BackendLLM) {
		t.Fatal("Get must return the same breaker per backend")
	}
	_, _ = Call(context.Background(), r.Get(BackendEmbedding), failing)

	states := r.States()
	if states["llm"] != "closed" || states["embedding"] != "open" {
		t.Errorf("unexpected states %v", states)
	}
}

func TestCircuitState_String(t *testing.T) {
	if CircuitState(42).String() != "unknown" {
		t.Error("unknown state should stringify as unknown")
	}
}
