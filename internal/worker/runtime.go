package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/joshu-sajeev/catalogjobs/common"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
)

type jobRuntime struct {
	store  Store
	lease  models.Lease
	logger *slog.Logger
}

func (rt *jobRuntime) Heartbeat(ctx context.Context) error {
	return rt.store.Heartbeat(ctx, rt.lease)
}

func (rt *jobRuntime) IsCancelled(ctx context.Context) bool {
	requested, err := rt.store.IsCancelRequested(ctx, rt.lease)
	if errors.Is(err, common.ErrLeaseLost) {
		return true
	}
	if err != nil {
		rt.logger.Warn("cancel check failed",
			slog.Uint64("job_id", uint64(rt.lease.JobID)),
			slog.String("error", err.Error()),
		)
		return false
	}
	return requested
}

func (rt *jobRuntime) AppendLog(ctx context.Context, message string) error {
	return rt.store.AppendLog(ctx, rt.lease, message)
}
