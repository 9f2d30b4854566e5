package monitoring

import (
	"slices"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/genx3d/genx3d/internal/model"
)

// MetricsSnapshot holds a point-in-time view of service health.
type MetricsSnapshot struct {
	// Generation outcomes within the lookback window.
	GenerationsTotal int     `json:"generations_total"`
	GenerationsOK    int     `json:"generations_ok"`
	GenerationsFail  int     `json:"generations_failed"`
	FailRate         float64 `json:"fail_rate"`
	AvgAttempts      float64 `json:"avg_attempts"`

	OpenCircuits []string `json:"open_circuits,omitempty"`

	// Temp-model area.
	ModelCount int   `json:"model_count"`
	ModelBytes int64 `json:"model_bytes"`

	LookbackMins int       `json:"lookback_minutes"`
	CollectedAt  time.Time `json:"collected_at"`
}

// ModelLister lists the files in the temp-model area.
type ModelLister interface {
	List() ([]model.GeneratedModel, error)
}

// BreakerStates reports circuit states by backend name.
type BreakerStates interface {
	States() map[string]string
}

type outcome struct {
	at       time.Time
	ok       bool
	attempts int
}

// Collector keeps recent generation outcomes in memory and combines them
// with model-area and circuit state into snapshots.
type Collector struct {
	models   ModelLister
	breakers BreakerStates
	window   time.Duration
	now      func() time.Time

	mu       sync.Mutex
	outcomes []outcome
}

// NewCollector creates a collector. breakers may be nil.
func NewCollector(models ModelLister, breakers BreakerStates, window time.Duration) *Collector {
	if window <= 0 {
		window = time.Hour
	}
	return &Collector{models: models, breakers: breakers, window: window, now: time.Now}
}

// Record adds one generation result.
func (c *Collector) Record(res model.GenerationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.prune(now)
	c.outcomes = append(c.outcomes, outcome{at: now, ok: res.Success, attempts: res.Attempts})
}

// prune drops outcomes older than the window. Outcomes are appended in
// time order, so the expired ones form a prefix.
func (c *Collector) prune(now time.Time) {
	cutoff := now.Add(-c.window)
	i := 0
	for i < len(c.outcomes) && c.outcomes[i].at.Before(cutoff) {
		i++
	}
	c.outcomes = c.outcomes[i:]
}

// Collect builds a snapshot of the current window.
func (c *Collector) Collect() (*MetricsSnapshot, error) {
	now := c.now()
	snap := &MetricsSnapshot{
		LookbackMins: int(c.window / time.Minute),
		CollectedAt:  now.UTC(),
	}

	c.mu.Lock()
	c.prune(now)
	var attempts int
	for _, o := range c.outcomes {
		snap.GenerationsTotal++
		attempts += o.attempts
		if o.ok {
			snap.GenerationsOK++
		} else {
			snap.GenerationsFail++
		}
	}
	c.mu.Unlock()

	if snap.GenerationsTotal > 0 {
		snap.FailRate = float64(snap.GenerationsFail) / float64(snap.GenerationsTotal)
		snap.AvgAttempts = float64(attempts) / float64(snap.GenerationsTotal)
	}

	if c.breakers != nil {
		for name, state := range c.breakers.States() {
			if state != "closed" {
				snap.OpenCircuits = append(snap.OpenCircuits, name)
			}
		}
		slices.Sort(snap.OpenCircuits)
	}

	if c.models != nil {
		models, err := c.models.List()
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list models")
		}
		snap.ModelCount = len(models)
		for _, m := range models {
			snap.ModelBytes += m.Size
		}
	}
	return snap, nil
}
