package monitoring

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/caselink/internal/config"
)

// Checker runs periodic health checks in the background. An alert is sent
// when its condition first appears and again only after it has cleared.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	mu     sync.Mutex
	active map[AlertType]bool
}

// NewChecker creates a background health checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{collector: collector, alerter: alerter, cfg: cfg, active: make(map[AlertType]bool)}
}

// Run checks once immediately and then on every tick until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting health checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	if ctx.Err() != nil {
		return
	}
	c.check(ctx, log)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("health checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

// Active returns the alert types raised by the most recent check.
func (c *Checker) Active() []AlertType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AlertType, 0, len(c.active))
	for t := range c.active {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	h, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: failed to collect health", zap.Error(err))
		return
	}

	fresh := c.transition(c.alerter.Evaluate(h), log)
	if len(fresh) == 0 {
		log.Debug("monitoring: no new alerts")
		return
	}

	sent := c.alerter.SendAlerts(ctx, fresh)
	log.Info("monitoring: health check complete",
		zap.Int("alerts_raised", len(fresh)),
		zap.Int("alerts_sent", sent),
	)
}

// transition records the alerts of the current check and returns the ones
// that were not already active.
func (c *Checker) transition(alerts []Alert, log *zap.Logger) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := make(map[AlertType]bool, len(alerts))
	var fresh []Alert
	for _, a := range alerts {
		now[a.Type] = true
		if !c.active[a.Type] {
			fresh = append(fresh, a)
		}
	}
	for t := range c.active {
		if !now[t] {
			log.Info("monitoring: alert resolved", zap.String("type", string(t)))
		}
	}
	c.active = now
	return fresh
}
