package artifact

import (
	"context"
	"log/slog"
	"time"

	"github.com/joshu-sajeev/catalogjobs/internal/models"
)

// ExpiryRepo is the part of the job store the janitor needs.
type ExpiryRepo interface {
	ListExpiredArtifacts(ctx context.Context, now time.Time, limit int) ([]models.Artifact, error)
	MarkArtifactPurged(ctx context.Context, id uint) error
}

// Janitor removes the bytes of expired artifacts. Job records and artifact
// rows stay; only PurgedAt is stamped.
type Janitor struct {
	repo     ExpiryRepo
	store    Store
	interval time.Duration
	batch    int
	logger   *slog.Logger
	now      func() time.Time
}

type JanitorOption func(*Janitor)

func WithJanitorBatch(n int) JanitorOption {
	return func(j *Janitor) { j.batch = n }
}

func WithJanitorClock(now func() time.Time) JanitorOption {
	return func(j *Janitor) { j.now = now }
}

func NewJanitor(repo ExpiryRepo, store Store, interval time.Duration, logger *slog.Logger, opts ...JanitorOption) *Janitor {
	j := &Janitor{
		repo:     repo,
		store:    store,
		interval: interval,
		batch:    100,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run sweeps every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error("artifact sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep purges one batch of expired artifacts and returns how many were
// purged. A failed blob delete leaves the artifact for the next sweep.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	expired, err := j.repo.ListExpiredArtifacts(ctx, j.now(), j.batch)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, a := range expired {
		if err := j.store.Delete(ctx, a.StorageKey); err != nil {
			j.logger.Warn("artifact delete failed",
				slog.Uint64("job_id", uint64(a.JobID)),
				slog.String("key", a.StorageKey),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := j.repo.MarkArtifactPurged(ctx, a.ID); err != nil {
			return purged, err
		}
		purged++
	}

	if purged > 0 {
		j.logger.Info("purged expired artifacts", slog.Int("count", purged))
	}
	return purged, nil
}
