package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DueCloser closes elections whose voting window has ended.
type DueCloser interface {
	CloseDue(ctx context.Context) (int, error)
}

// ElectionCloser runs CloseDue on a fixed interval.
type ElectionCloser struct {
	closer   DueCloser
	interval time.Duration
	logger   *zap.Logger
}

func NewElectionCloser(closer DueCloser, interval time.Duration, logger *zap.Logger) *ElectionCloser {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ElectionCloser{closer: closer, interval: interval, logger: logger}
}

// Run ticks until ctx is cancelled.
func (c *ElectionCloser) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			closed, err := c.closer.CloseDue(ctx)
			if err != nil {
				c.logger.Warn("closing due elections failed", zap.Error(err))
				continue
			}
			if closed > 0 {
				c.logger.Info("closed due elections", zap.Int("count", closed))
			}
		}
	}
}
