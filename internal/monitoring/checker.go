package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pinger is a dependency whose liveness can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker pings the ledger periodically and publishes the result as
// recovery_ledger_up.
type Checker struct {
	ledger   Pinger
	interval time.Duration
	timeout  time.Duration
}

// NewChecker creates a background ledger checker. A non-positive interval
// defaults to one minute.
func NewChecker(ledger Pinger, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Checker{ledger: ledger, interval: interval, timeout: 5 * time.Second}
}

// Run checks once immediately, then on every tick. It blocks until ctx is
// cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting ledger checker", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.check(ctx, log)
	for {
		select {
		case <-ctx.Done():
			log.Info("ledger checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) bool {
	if ctx.Err() != nil {
		return false
	}
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.ledger.Ping(cctx); err != nil {
		LedgerUp.Set(0)
		log.Warn("monitoring: ledger ping failed", zap.Error(err))
		return false
	}
	LedgerUp.Set(1)
	log.Debug("monitoring: ledger ping ok")
	return true
}
