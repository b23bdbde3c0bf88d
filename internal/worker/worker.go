package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

// Worker claims jobs one at a time and runs them through the executor. Idle
// polls back off exponentially from pollInterval up to maxPollInterval.
type Worker struct {
	ID           string
	store        Store
	executor     *Executor
	limiter      *rate.Limiter
	pollInterval time.Duration
	maxInterval  time.Duration
	logger       *slog.Logger
}

func NewWorker(store Store, executor *Executor, limiter *rate.Limiter, poll, maxPoll time.Duration, logger *slog.Logger) *Worker {
	id := uuid.NewString()
	return &Worker{
		ID:           id,
		store:        store,
		executor:     executor,
		limiter:      limiter,
		pollInterval: poll,
		maxInterval:  maxPoll,
		logger:       logger.With(slog.String("worker_id", id)),
	}
}

func (w *Worker) idleBackoff() retry.Backoff {
	b := retry.NewExponential(w.pollInterval)
	b = retry.WithCappedDuration(w.maxInterval, b)
	return retry.WithJitterPercent(10, b)
}

// Run polls until ctx is done. A job already started is finished before Run
// returns.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started")
	defer w.logger.Info("worker stopped")

	idle := w.idleBackoff()
	for {
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		job, err := w.store.Claim(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.Error("claim failed", slog.String("error", err.Error()))
		}
		if job == nil {
			if !w.sleep(ctx, idle) {
				return nil
			}
			continue
		}

		idle = w.idleBackoff()
		w.logger.Debug("job claimed",
			slog.Uint64("job_id", uint64(job.ID)),
			slog.String("tipo", string(job.Tipo)),
			slog.Int("attempt", job.Attempts),
		)
		_ = w.executor.Execute(ctx, job)
	}
}

func (w *Worker) sleep(ctx context.Context, b retry.Backoff) bool {
	d, _ := b.Next()
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
