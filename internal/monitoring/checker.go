package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/genx3d/genx3d/internal/config"
)

// Checker evaluates the collector on a ticker and posts new alerts. An alert
// type that keeps firing is re-sent at most once per re-alert interval; a
// type that stops firing is forgotten so its next occurrence is sent at once.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	realert   time.Duration
	now       func() time.Time

	lastSent map[AlertType]time.Time
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	realert := time.Duration(cfg.RealertMins) * time.Minute
	if realert <= 0 {
		realert = time.Hour
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		realert:   realert,
		now:       time.Now,
		lastSent:  make(map[AlertType]time.Time),
	}
}

// Run blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", c.interval),
		zap.Duration("realert", c.realert),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	snap, err := c.collector.Collect()
	if err != nil {
		log.Error("monitoring: collect failed", zap.Error(err))
		return
	}

	due := c.due(c.alerter.Evaluate(snap))
	if len(due) == 0 {
		return
	}

	sent := c.alerter.SendAlerts(ctx, due)
	log.Info("monitoring: alerts raised",
		zap.Int("due", len(due)),
		zap.Int("sent", sent),
		zap.Float64("fail_rate", snap.FailRate),
		zap.Strings("open_circuits", snap.OpenCircuits),
	)
}

// due filters alerts down to the ones not sent within the re-alert interval
// and records them as sent.
func (c *Checker) due(alerts []Alert) []Alert {
	now := c.now()
	firing := make(map[AlertType]bool, len(alerts))
	var out []Alert
	for _, a := range alerts {
		firing[a.Type] = true
		if last, ok := c.lastSent[a.Type]; ok && now.Sub(last) < c.realert {
			continue
		}
		c.lastSent[a.Type] = now
		out = append(out, a)
	}
	for t := range c.lastSent {
		if !firing[t] {
			delete(c.lastSent, t)
		}
	}
	return out
}
