package resilience

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// Config is the resilience section of the application config.
type Config struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int     `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
	// CallTimeoutSecs bounds every single backend call.
	CallTimeoutSecs int `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
}

// Retry converts the config to a RetryConfig; zero fields keep defaults.
func (c Config) Retry() RetryConfig {
	cfg := DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		cfg.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(c.InitialBackoffMs) * time.Millisecond
	}
	if c.MaxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(c.MaxBackoffMs) * time.Millisecond
	}
	if c.Multiplier > 0 {
		cfg.Multiplier = c.Multiplier
	}
	if c.JitterFraction > 0 {
		cfg.JitterFraction = c.JitterFraction
	}
	return cfg
}

// Breaker converts the config to a BreakerConfig.
func (c Config) Breaker() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: c.FailureThreshold,
		Cooldown:         time.Duration(c.CooldownSecs) * time.Second,
	}
}

// CallTimeout returns the per-call deadline, 60s when unset.
func (c Config) CallTimeout() time.Duration {
	if c.CallTimeoutSecs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.CallTimeoutSecs) * time.Second
}

// ErrCallTimeout marks a call that ran past its WithTimeout deadline.
var ErrCallTimeout = eris.New("backend call timed out")

// WithTimeout runs fn under a deadline derived from ctx. When the deadline
// fires first, the error wraps ErrCallTimeout and is transient.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if d <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	v, err := fn(cctx)
	if err != nil {
		if ctx.Err() == nil && cctx.Err() == context.DeadlineExceeded {
			return zero, NewTransientError(eris.Wrapf(ErrCallTimeout, "after %s", d), 0)
		}
		return zero, err
	}
	return v, nil
}
