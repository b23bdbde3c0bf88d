package pool

import (
	"context"
	"log/slog"

	"github.com/joshu-sajeev/catalogjobs/internal/artifact"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/worker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Store is everything the pool's goroutines need from the job store.
type Store interface {
	worker.Store
	worker.StalledStore
	artifact.ExpiryRepo
}

// WorkerPool runs the claim workers, the lease monitor and the artifact
// janitor against one store until its context is cancelled.
type WorkerPool struct {
	workers []*worker.Worker
	monitor *worker.LeaseMonitor
	janitor *artifact.Janitor
	logger  *slog.Logger
}

func NewWorkerPool(cfg *config.EngineConfig, store Store, registry *worker.Registry, blobs artifact.Store, jobTypes config.JobTypeCatalog, logger *slog.Logger) *WorkerPool {
	executor := worker.NewExecutor(store, registry, blobs, logger,
		worker.WithHeartbeatInterval(cfg.HeartbeatInterval),
		worker.WithJobTypes(jobTypes),
	)
	// one limiter for the whole process
	limiter := rate.NewLimiter(rate.Limit(cfg.ClaimRate), cfg.Workers)

	p := &WorkerPool{
		monitor: worker.NewLeaseMonitor(store, cfg.LeaseTimeout, cfg.ReapInterval, logger),
		janitor: artifact.NewJanitor(store, blobs, cfg.JanitorInterval, logger),
		logger:  logger,
	}
	for range cfg.Workers {
		p.workers = append(p.workers,
			worker.NewWorker(store, executor, limiter, cfg.PollInterval, cfg.MaxPollInterval, logger))
	}
	return p
}

// Run blocks until ctx is done and every worker has finished its current
// job.
func (p *WorkerPool) Run(ctx context.Context) error {
	p.logger.Info("worker pool starting", slog.Int("workers", len(p.workers)))

	g, ctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		g.Go(func() error { return w.Run(ctx) })
	}
	g.Go(func() error { return p.monitor.Run(ctx) })
	g.Go(func() error { return p.janitor.Run(ctx) })

	err := g.Wait()
	p.logger.Info("worker pool stopped")
	return err
}
