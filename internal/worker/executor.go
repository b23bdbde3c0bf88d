package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/joshu-sajeev/catalogjobs/common"
	"github.com/joshu-sajeev/catalogjobs/internal/artifact"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
)

const defaultArtifactTTL = 24 * time.Hour

// Executor runs one claimed job through its handler and records the outcome:
// DONE with its result, CANCELLED, or the retry policy on failure.
type Executor struct {
	store     Store
	registry  *Registry
	blobs     artifact.Store
	heartbeat time.Duration
	jobTypes  config.JobTypeCatalog
	logger    *slog.Logger
	now       func() time.Time
}

type ExecutorOption func(*Executor)

// WithHeartbeatInterval sets how often the executor renews the lease of a
// running job.
func WithHeartbeatInterval(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.heartbeat = d }
}

// WithJobTypes supplies per-type defaults; artifact TTLs are read from it.
func WithJobTypes(c config.JobTypeCatalog) ExecutorOption {
	return func(e *Executor) { e.jobTypes = c }
}

func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

func NewExecutor(store Store, registry *Registry, blobs artifact.Store, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:     store,
		registry:  registry,
		blobs:     blobs,
		heartbeat: 5 * time.Second,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs j, which must be PROCESSING under a lease held by the caller.
// The returned error is informational; the job's fate is already recorded.
func (e *Executor) Execute(ctx context.Context, j *models.Job) error {
	lease, ok := j.Lease()
	if !ok {
		return fmt.Errorf("job %d is not leased", j.ID)
	}
	logger := e.logger.With(
		slog.Uint64("job_id", uint64(j.ID)),
		slog.String("tipo", string(j.Tipo)),
		slog.Int("attempt", j.Attempts),
	)
	// finalization must land even when the worker is shutting down
	finalCtx := context.WithoutCancel(ctx)

	handler, ok := e.registry.Get(j.Tipo)
	if !ok {
		return e.fail(finalCtx, logger, lease, fmt.Errorf("no handler registered for %s", j.Tipo))
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stop := e.keepAlive(runCtx, cancel, lease, logger)
	rt := &jobRuntime{store: e.store, lease: lease, logger: logger}
	start := time.Now()
	outcome, err := invoke(runCtx, handler, j, rt)
	stop()

	if errors.Is(context.Cause(runCtx), common.ErrLeaseLost) {
		logger.Warn("lease lost during execution, abandoning job")
		return fmt.Errorf("job %d: %w", j.ID, common.ErrLeaseLost)
	}

	switch {
	case errors.Is(err, ErrCancelled):
		if ferr := e.store.FinalizeCancelled(finalCtx, lease); ferr != nil {
			return e.finalizeError(logger, ferr)
		}
		logger.Info("job cancelled", slog.Duration("elapsed", time.Since(start)))
		return nil
	case err != nil && ctx.Err() != nil:
		return e.requeue(finalCtx, logger, lease, err)
	case err != nil:
		return e.fail(finalCtx, logger, lease, err)
	}

	if err := e.complete(finalCtx, j, lease, outcome); err != nil {
		if errors.Is(err, common.ErrLeaseLost) {
			return e.finalizeError(logger, err)
		}
		return e.fail(finalCtx, logger, lease, err)
	}
	logger.Info("job completed", slog.Duration("elapsed", time.Since(start)))
	return nil
}

// invoke calls the handler, turning a panic into an error.
func invoke(ctx context.Context, h HandlerFunc, j *models.Job, rt Runtime) (out *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h(ctx, j, rt)
}

// keepAlive heartbeats the lease until the returned stop func is called. A
// lost lease cancels the handler context.
func (e *Executor) keepAlive(ctx context.Context, cancel context.CancelCauseFunc, lease models.Lease, logger *slog.Logger) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(e.heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := e.store.Heartbeat(ctx, lease)
				switch {
				case errors.Is(err, common.ErrLeaseLost):
					cancel(common.ErrLeaseLost)
					return
				case err != nil && ctx.Err() == nil:
					logger.Warn("heartbeat failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

func (e *Executor) complete(ctx context.Context, j *models.Job, lease models.Lease, outcome *Outcome) error {
	if outcome == nil || outcome.Result == nil {
		return fmt.Errorf("handler for %s returned no result", j.Tipo)
	}
	if outcome.Result.JobType() != j.Tipo {
		return fmt.Errorf("handler for %s returned a %s result", j.Tipo, outcome.Result.JobType())
	}
	if (outcome.Artifact != nil) != j.Tipo.ProducesArtifact() {
		return fmt.Errorf("handler for %s returned an unexpected artifact state (artifact=%t)", j.Tipo, outcome.Artifact != nil)
	}

	if outcome.Artifact == nil {
		return e.store.Complete(ctx, lease, outcome.Result, nil)
	}

	out := outcome.Artifact
	key := artifact.NewKey(j.ID, out.Name)
	if err := e.blobs.Put(ctx, key, out.ContentType, bytes.NewReader(out.Body), int64(len(out.Body))); err != nil {
		return fmt.Errorf("store artifact: %w", err)
	}

	record := &models.Artifact{
		Name:        out.Name,
		StorageKey:  key,
		ContentType: out.ContentType,
		Size:        int64(len(out.Body)),
		ExpiresAt:   e.now().UTC().Add(e.artifactTTL(j.Tipo)),
	}
	if err := e.store.Complete(ctx, lease, outcome.Result, record); err != nil {
		if derr := e.blobs.Delete(ctx, key); derr != nil {
			e.logger.Warn("orphaned artifact left in store",
				slog.String("key", key),
				slog.String("error", derr.Error()),
			)
		}
		return err
	}
	return nil
}

func (e *Executor) artifactTTL(tipo config.JobType) time.Duration {
	if ttl := e.jobTypes.For(tipo).ArtifactTTL; ttl > 0 {
		return ttl
	}
	return defaultArtifactTTL
}

func (e *Executor) fail(ctx context.Context, logger *slog.Logger, lease models.Lease, cause error) error {
	next, err := e.store.Fail(ctx, lease, cause)
	if err != nil {
		return e.finalizeError(logger, err)
	}

	logger.Warn("job attempt failed",
		slog.String("next_status", string(next)),
		slog.String("error", cause.Error()),
	)
	return cause
}

// requeue gives back a job the worker stopped mid-run without charging it an
// attempt.
func (e *Executor) requeue(ctx context.Context, logger *slog.Logger, lease models.Lease, cause error) error {
	next, err := e.store.Requeue(ctx, lease, "worker shutting down")
	if err != nil {
		return e.finalizeError(logger, err)
	}

	logger.Info("job interrupted by shutdown",
		slog.String("next_status", string(next)),
		slog.String("error", cause.Error()),
	)
	return cause
}

// finalizeError logs a failed final write. The job stays PROCESSING and the
// lease monitor will pick it up unless another owner already did.
func (e *Executor) finalizeError(logger *slog.Logger, err error) error {
	if errors.Is(err, common.ErrLeaseLost) {
		logger.Warn("lease lost before finalization")
	} else {
		logger.Error("failed to record job outcome", slog.String("error", err.Error()))
	}
	return err
}
