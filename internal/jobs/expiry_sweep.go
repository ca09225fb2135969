package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/inodev-web/alouaoui-school-sub001/internal/access"
	"github.com/inodev-web/alouaoui-school-sub001/internal/config"
)

// StartExpirySweep periodically soft-retires subscriptions whose validity
// window has ended. Reads still re-derive effectiveness themselves; the sweep
// only keeps the status column honest.
func StartExpirySweep(ctx context.Context, cfg config.Config, engine *access.Service, logger *zap.Logger) {
	if !cfg.ExpirySweepEnabled {
		return
	}
	interval := cfg.ExpirySweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	timeout := cfg.ExpirySweepTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, timeout)
				expired, err := engine.ExpireOverdue(tickCtx)
				cancel()
				if err != nil {
					logger.Warn("subscription expiry sweep failed", zap.Error(err))
					continue
				}
				if expired > 0 {
					logger.Info("subscription expiry sweep", zap.Int64("expired", expired))
				}
			}
		}
	}()
}
