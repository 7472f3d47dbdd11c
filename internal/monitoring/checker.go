package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/floodcover/internal/config"
)

// Checker evaluates alerts on an interval. An alert is delivered when it
// starts firing and again only after it has cleared.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	log       *zap.Logger

	mu     sync.Mutex
	firing map[AlertType]bool
}

func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		log:       zap.L().With(zap.String("component", "monitoring.checker")),
		firing:    make(map[AlertType]bool),
	}
}

// Run blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	c.log.Info("alert checker started", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check evaluates once and delivers newly raised alerts. It returns every
// alert currently firing.
func (c *Checker) Check(ctx context.Context) []Alert {
	alerts := c.alerter.Evaluate(c.collector.Collect())

	c.mu.Lock()
	now := make(map[AlertType]bool, len(alerts))
	var raised []Alert
	for _, a := range alerts {
		now[a.Type] = true
		if !c.firing[a.Type] {
			raised = append(raised, a)
		}
	}
	for t := range c.firing {
		if !now[t] {
			c.log.Info("alert cleared", zap.String("type", string(t)))
		}
	}
	c.firing = now
	c.mu.Unlock()

	if len(raised) > 0 {
		sent := c.alerter.SendAlerts(ctx, raised)
		c.log.Info("alerts raised",
			zap.Int("firing", len(alerts)),
			zap.Int("raised", len(raised)),
			zap.Int("delivered", sent),
		)
	}
	return alerts
}
