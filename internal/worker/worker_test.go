package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/internal/logging"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"github.com/joshu-sajeev/catalogjobs/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestWorker_DrainsQueue(t *testing.T) {
	_, repo := setupStore(t)
	reg := worker.NewRegistry()

	var runs atomic.Int32
	reg.Handle(config.JobTypeBulkDelete, func(context.Context, *models.Job, worker.Runtime) (*worker.Outcome, error) {
		runs.Add(1)
		return &worker.Outcome{Result: &models.BulkDeleteResult{Outcome: config.OutcomeSuccess}}, nil
	})
	for range 4 {
		enqueue(t, repo, config.JobTypeBulkDelete, `{}`)
	}

	exec, _ := newExecutor(t, repo, reg)
	limiter := rate.NewLimiter(rate.Inf, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	for range 2 {
		w := worker.NewWorker(repo, exec, limiter, 5*time.Millisecond, 20*time.Millisecond, logging.Discard())
		go func() { done <- w.Run(ctx) }()
	}

	require.Eventually(t, func() bool {
		jobs, _, err := repo.List(context.Background(), dto.JobFilter{
			Statuses: []config.JobStatus{config.JobStatusDone},
		})
		return err == nil && len(jobs) == 4
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	for range 2 {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not stop")
		}
	}
	assert.Equal(t, int32(4), runs.Load(), "every job ran exactly once")
}

func TestWorker_RetriesUntilFailed(t *testing.T) {
	_, repo := setupStore(t)
	reg := worker.NewRegistry()
	reg.Handle(config.JobTypeBulkDelete, func(context.Context, *models.Job, worker.Runtime) (*worker.Outcome, error) {
		return nil, errors.New("catalog unavailable")
	})
	j := enqueue(t, repo, config.JobTypeBulkDelete, `{}`)

	exec, _ := newExecutor(t, repo, reg)
	w := worker.NewWorker(repo, exec, nil, 5*time.Millisecond, 10*time.Millisecond, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = w.Run(ctx)
	}()
	defer func() {
		cancel()
		<-stopped
	}()

	require.Eventually(t, func() bool {
		got, err := repo.Get(context.Background(), j.ID)
		return err == nil && got.Status == config.JobStatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	got, err := repo.Get(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Attempts)

	logs, err := repo.Logs(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}
