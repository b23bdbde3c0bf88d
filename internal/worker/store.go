package worker

import (
	"context"
	"time"

	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
)

// Store is the job store as seen by a worker executing jobs.
type Store interface {
	Claim(ctx context.Context) (*models.Job, error)
	Heartbeat(ctx context.Context, lease models.Lease) error
	IsCancelRequested(ctx context.Context, lease models.Lease) (bool, error)
	AppendLog(ctx context.Context, lease models.Lease, message string) error
	Complete(ctx context.Context, lease models.Lease, result models.ResultLinkage, artifact *models.Artifact) error
	Fail(ctx context.Context, lease models.Lease, cause error) (config.JobStatus, error)
	FinalizeCancelled(ctx context.Context, lease models.Lease) error
	Requeue(ctx context.Context, lease models.Lease, reason string) (config.JobStatus, error)
}

// StalledStore is the job store as seen by the lease monitor.
type StalledStore interface {
	ListStalled(ctx context.Context, cutoff time.Time, limit int) ([]models.Job, error)
	ReapStalled(ctx context.Context, job models.Job, cutoff time.Time) (config.JobStatus, error)
}
