// Package worker runs the background loops of both services.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ballotbox/election-service/internal/observability"
	"github.com/ballotbox/election-service/internal/outbox"
	"github.com/ballotbox/election-service/internal/service"
	apperrors "github.com/ballotbox/election-service/pkg/util/errorutil"
)

// NotifyUsedWorker drains the outbox towards the eligibility side.
type NotifyUsedWorker struct {
	queue       outbox.Queue
	notifier    service.UsedNotifier
	logger      *zap.Logger
	metrics     *observability.Metrics
	interval    time.Duration
	backoff     time.Duration
	maxAttempts int
	now         func() time.Time
}

// NotifyUsedOptions tunes the worker.
type NotifyUsedOptions struct {
	Interval    time.Duration
	Backoff     time.Duration
	MaxAttempts int
	Now         func() time.Time
}

func NewNotifyUsedWorker(queue outbox.Queue, notifier service.UsedNotifier, logger *zap.Logger, metrics *observability.Metrics, opts NotifyUsedOptions) *NotifyUsedWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 5 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 20
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &NotifyUsedWorker{
		queue:       queue,
		notifier:    notifier,
		logger:      logger,
		metrics:     metrics,
		interval:    opts.Interval,
		backoff:     opts.Backoff,
		maxAttempts: opts.MaxAttempts,
		now:         opts.Now,
	}
}

// Run ticks until ctx is cancelled.
func (w *NotifyUsedWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Warn("notify-used tick failed", zap.Error(err))
			}
		}
	}
}

// RunOnce looks at each job queued at the start of the tick once and reports
// how many were delivered. Jobs not yet due or that fail go back on the queue.
func (w *NotifyUsedWorker) RunOnce(ctx context.Context) (int, error) {
	pending, err := w.queue.Len(ctx)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for i := int64(0); i < pending; i++ {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			return delivered, err
		}
		if job == nil {
			break
		}
		now := w.now()
		if now.Before(job.NotBefore) {
			if err := w.queue.Enqueue(ctx, *job); err != nil {
				return delivered, err
			}
			continue
		}

		err = w.notifier.NotifyUsed(ctx, job.Digest, job.ElectionID)
		if err == nil {
			delivered++
			w.metrics.Inc(observability.MetricNotifyUsedSent)
			continue
		}

		w.metrics.Inc(observability.MetricNotifyUsedFailed)
		if service.PeerErrorCode(err) == apperrors.CodeInvalidToken {
			w.logger.Warn("eligibility side does not know digest; dropping",
				zap.String("election_id", job.ElectionID), observability.Digest(job.Digest))
			continue
		}
		job.Attempts++
		if job.Attempts >= w.maxAttempts {
			w.logger.Error("notify-used gave up; reconciliation will repair",
				zap.String("election_id", job.ElectionID), observability.Digest(job.Digest), zap.Error(err))
			continue
		}
		job.NotBefore = now.Add(time.Duration(job.Attempts) * w.backoff)
		if err := w.queue.Enqueue(ctx, *job); err != nil {
			return delivered, err
		}
	}
	return delivered, nil
}
