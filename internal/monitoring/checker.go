package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FelipeFraul/buscai-v2-sub002/internal/config"
)

// DefaultRepeatAfter is how long an alert type stays quiet after delivery.
const DefaultRepeatAfter = time.Hour

// Checker evaluates import health on an interval and delivers new alerts.
// An alert type that was delivered is held back until RepeatAfter elapses.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	lookback  int
	interval  time.Duration

	RepeatAfter time.Duration

	mu       sync.Mutex
	lastSent map[AlertType]time.Time
	now      func() time.Time
}

// NewChecker wires a collector and alerter with the monitoring settings.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Checker{
		collector:   collector,
		alerter:     alerter,
		lookback:    cfg.LookbackWindowHours,
		interval:    interval,
		RepeatAfter: DefaultRepeatAfter,
		lastSent:    make(map[AlertType]time.Time),
		now:         time.Now,
	}
}

// Run checks once, then on every tick until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("import health checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)
	defer log.Info("import health checker stopped")

	if ctx.Err() != nil {
		return
	}
	c.Check(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check runs a single collection and returns every breached alert. Only
// alerts outside their repeat window are delivered.
func (c *Checker) Check(ctx context.Context) []Alert {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		zap.L().Error("monitoring: collect import health", zap.Error(err))
		return nil
	}

	alerts := c.alerter.Evaluate(snap)
	fresh := c.due(alerts)
	if len(fresh) == 0 {
		zap.L().Debug("monitoring: nothing to deliver", zap.Int("breached", len(alerts)))
		return alerts
	}

	if sent := c.alerter.SendAlerts(ctx, fresh); sent > 0 {
		c.markSent(fresh)
	}
	return alerts
}

func (c *Checker) due(alerts []Alert) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var fresh []Alert
	for _, a := range alerts {
		if last, ok := c.lastSent[a.Type]; ok && now.Sub(last) < c.RepeatAfter {
			continue
		}
		fresh = append(fresh, a)
	}
	return fresh
}

func (c *Checker) markSent(alerts []Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, a := range alerts {
		c.lastSent[a.Type] = now
	}
}
