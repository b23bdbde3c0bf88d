package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/joshu-sajeev/catalogjobs/common"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestJobRepository_Claim(t *testing.T) {
	ctx := context.Background()

	t.Run("empty queue", func(t *testing.T) {
		repo := NewJobRepository(SetupTestDB(t))
		j, err := repo.Claim(ctx)
		require.NoError(t, err)
		assert.Nil(t, j)
	})

	t.Run("priority then age", func(t *testing.T) {
		clock := newTestClock()
		repo := NewJobRepository(SetupTestDB(t), WithClock(clock.Now))

		low := mustCreate(t, repo, newJob(config.JobTypeBulkDelete, 10, nil))
		clock.Advance(time.Second)
		older := mustCreate(t, repo, newJob(config.JobTypeBulkDelete, 1, nil))
		clock.Advance(time.Second)
		newer := mustCreate(t, repo, newJob(config.JobTypeBulkDelete, 1, nil))

		var order []uint
		for range 3 {
			order = append(order, mustClaim(t, repo).ID)
		}
		assert.Equal(t, []uint{older.ID, newer.ID, low.ID}, order)

		j, err := repo.Claim(ctx)
		require.NoError(t, err)
		assert.Nil(t, j)
	})

	t.Run("claim takes the lease", func(t *testing.T) {
		clock := newTestClock()
		repo := NewJobRepository(SetupTestDB(t), WithClock(clock.Now))
		mustCreate(t, repo, newJob(config.JobTypeBulkDelete, 0, nil))

		j := mustClaim(t, repo)
		assert.Equal(t, config.JobStatusProcessing, j.Status)
		assert.Equal(t, 1, j.Attempts)
		require.NotNil(t, j.LockedBy)
		require.NotNil(t, j.HeartbeatAt)
		assert.True(t, clock.Now().Equal(*j.LockedAt))

		logs, err := repo.Logs(ctx, j.ID)
		require.NoError(t, err)
		assert.Empty(t, logs, "claim writes no log entry")
	})

	t.Run("cancel after the update still returns the job", func(t *testing.T) {
		db := SetupTestDB(t)
		repo := NewJobRepository(db)
		mustCreate(t, repo, newJob(config.JobTypeBulkDelete, 0, nil))

		claimCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		require.NoError(t, db.Callback().Raw().After("gorm:raw").Register("test:cancel_after_claim", func(*gorm.DB) {
			cancel()
		}))

		j, err := repo.Claim(claimCtx)
		require.NoError(t, err)
		require.NotNil(t, j, "a claimed row must not be stranded")
		assert.Equal(t, config.JobStatusProcessing, j.Status)
		assert.Error(t, claimCtx.Err())
	})

	t.Run("concurrent claims never share a job", func(t *testing.T) {
		repo := NewJobRepository(SetupTestDB(t))
		const jobs = 20
		for range jobs {
			mustCreate(t, repo, newJob(config.JobTypeBulkDelete, 0, nil))
		}

		var (
			mu      sync.Mutex
			claimed = make(map[uint]int)
			wg      sync.WaitGroup
		)
		for range 6 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					j, err := repo.Claim(ctx)
					if !assert.NoError(t, err) || j == nil {
						return
					}
					mu.Lock()
					claimed[j.ID]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Len(t, claimed, jobs)
		for id, n := range claimed {
			assert.Equal(t, 1, n, "job %d claimed more than once", id)
		}
	})
}

func TestJobRepository_Heartbeat(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	repo := NewJobRepository(SetupTestDB(t), WithClock(clock.Now))
	mustCreate(t, repo, newJob(config.JobTypeBulkDelete, 0, nil))
	j := mustClaim(t, repo)
	lease := mustLease(t, j)

	clock.Advance(30 * time.Second)
	require.NoError(t, repo.Heartbeat(ctx, lease))

	got, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.True(t, clock.Now().Equal(*got.HeartbeatAt))

	stolen := lease
	stolen.Token = "someone-else"
	assert.ErrorIs(t, repo.Heartbeat(ctx, stolen), common.ErrLeaseLost)
}

func TestJobRepository_AppendLog(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(SetupTestDB(t))
	mustCreate(t, repo, newJob(config.JobTypeBulkDelete, 0, nil))
	j := mustClaim(t, repo)
	lease := mustLease(t, j)

	require.NoError(t, repo.AppendLog(ctx, lease, "resolved 3 products"))

	logs, err := repo.Logs(ctx, j.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, config.JobStatusProcessing, logs[0].Status)
	assert.Equal(t, "resolved 3 products", logs[0].Message)

	require.NoError(t, repo.FinalizeCancelled(ctx, lease))
	assert.ErrorIs(t, repo.AppendLog(ctx, lease, "too late"), common.ErrLeaseLost)
}

func TestJobRepository_Requeue(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(SetupTestDB(t))
	job := newJob(config.JobTypeBulkDelete, 0, nil)
	job.MaxAttempts = 1
	mustCreate(t, repo, job)
	j := mustClaim(t, repo)
	lease := mustLease(t, j)

	stolen := lease
	stolen.Token = "someone-else"
	_, err := repo.Requeue(ctx, stolen, "worker shutting down")
	assert.ErrorIs(t, err, common.ErrLeaseLost)

	next, err := repo.Requeue(ctx, lease, "worker shutting down")
	require.NoError(t, err)
	assert.Equal(t, config.JobStatusPending, next)

	got, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, config.JobStatusPending, got.Status)
	assert.Zero(t, got.Attempts, "an interrupted attempt is not counted")
	assert.Nil(t, got.LockedBy)
	assert.Nil(t, got.FinishedAt)

	logs, err := repo.Logs(ctx, j.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "attempt 1 interrupted, returned to queue: worker shutting down", logs[0].Message)

	again := mustClaim(t, repo)
	assert.Equal(t, j.ID, again.ID)
	assert.Equal(t, 1, again.Attempts)
}

func TestJobRepository_Complete(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	repo := NewJobRepository(SetupTestDB(t), WithClock(clock.Now))
	mustCreate(t, repo, newJob(config.JobTypeBulkDelete, 0, nil))
	j := mustClaim(t, repo)
	lease := mustLease(t, j)

	clock.Advance(time.Minute)
	result := &models.BulkDeleteResult{Outcome: config.OutcomeSuccess, Matched: 37, Deleted: 37}
	require.NoError(t, repo.Complete(ctx, lease, result, nil))

	got, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, config.JobStatusDone, got.Status)
	assert.Nil(t, got.LockedBy)
	assert.Nil(t, got.LockedAt)
	assert.Nil(t, got.HeartbeatAt)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, clock.Now().Equal(*got.FinishedAt))

	logs, err := repo.Logs(ctx, j.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, config.JobStatusDone, logs[0].Status)

	again := &models.BulkDeleteResult{Outcome: config.OutcomeSuccess}
	assert.ErrorIs(t, repo.Complete(ctx, lease, again, nil), common.ErrLeaseLost)
}

func TestJobRepository_Fail(t *testing.T) {
	ctx := context.Background()

	t.Run("retries until attempts run out", func(t *testing.T) {
		repo := NewJobRepository(SetupTestDB(t))
		created := mustCreate(t, repo, newJob(config.JobTypeBulkDelete, 0, nil))

		want := []config.JobStatus{config.JobStatusPending, config.JobStatusPending, config.JobStatusFailed}
		for i, status := range want {
			j := mustClaim(t, repo)
			assert.Equal(t, i+1, j.Attempts)

			next, err := repo.Fail(ctx, mustLease(t, j), errors.New("catalog unavailable"))
			require.NoError(t, err)
			assert.Equal(t, status, next)
		}

		got, err := repo.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, config.JobStatusFailed, got.Status)
		assert.Equal(t, 3, got.Attempts)
		assert.Equal(t, "catalog unavailable", got.LastError)
		assert.NotNil(t, got.FinishedAt)

		logs, err := repo.Logs(ctx, created.ID)
		require.NoError(t, err)
		require.Len(t, logs, 3)
		assert.Equal(t, "attempt 1 of 3 failed, retrying: catalog unavailable", logs[0].Message)
		assert.Equal(t, "attempt 3 of 3 failed, giving up: catalog unavailable", logs[2].Message)

		j, err := repo.Claim(ctx)
		require.NoError(t, err)
		assert.Nil(t, j, "failed job is never claimed again")
	})

	t.Run("pending cancel request wins over a retry", func(t *testing.T) {
		repo := NewJobRepository(SetupTestDB(t))
		mustCreate(t, repo, newJob(config.JobTypeBulkDelete, 0, nil))
		j := mustClaim(t, repo)
		_, err := repo.Cancel(ctx, j.ID)
		require.NoError(t, err)

		requested, err := repo.IsCancelRequested(ctx, mustLease(t, j))
		require.NoError(t, err)
		assert.True(t, requested)

		next, err := repo.Fail(ctx, mustLease(t, j), errors.New("boom"))
		require.NoError(t, err)
		assert.Equal(t, config.JobStatusCancelled, next)
	})

	t.Run("foreign lease", func(t *testing.T) {
		repo := NewJobRepository(SetupTestDB(t))
		mustCreate(t, repo, newJob(config.JobTypeBulkDelete, 0, nil))
		lease := mustLease(t, mustClaim(t, repo))
		lease.Token = "other"

		_, err := repo.Fail(ctx, lease, errors.New("boom"))
		assert.ErrorIs(t, err, common.ErrLeaseLost)
	})
}

func TestJobRepository_ReapStalled(t *testing.T) {
	ctx := context.Background()
	const timeout = time.Minute

	t.Run("expired lease returns the job to the queue", func(t *testing.T) {
		clock := newTestClock()
		repo := NewJobRepository(SetupTestDB(t), WithClock(clock.Now))
		mustCreate(t, repo, newJob(config.JobTypeBulkDelete, 0, nil))
		j := mustClaim(t, repo)
		lease := mustLease(t, j)

		clock.Advance(2 * timeout)
		cutoff := clock.Now().Add(-timeout)

		stalled, err := repo.ListStalled(ctx, cutoff, 10)
		require.NoError(t, err)
		require.Len(t, stalled, 1)

		next, err := repo.ReapStalled(ctx, stalled[0], cutoff)
		require.NoError(t, err)
		assert.Equal(t, config.JobStatusPending, next)

		got, err := repo.Get(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, config.JobStatusPending, got.Status)
		assert.Equal(t, 1, got.Attempts)
		assert.Contains(t, got.LastError, "lease expired")

		assert.ErrorIs(t, repo.Heartbeat(ctx, lease), common.ErrLeaseLost)

		again := mustClaim(t, repo)
		assert.Equal(t, 2, again.Attempts)
	})

	t.Run("fresh heartbeat keeps the lease", func(t *testing.T) {
		clock := newTestClock()
		repo := NewJobRepository(SetupTestDB(t), WithClock(clock.Now))
		mustCreate(t, repo, newJob(config.JobTypeBulkDelete, 0, nil))
		j := mustClaim(t, repo)

		clock.Advance(2 * timeout)
		require.NoError(t, repo.Heartbeat(ctx, mustLease(t, j)))
		cutoff := clock.Now().Add(-timeout)

		stalled, err := repo.ListStalled(ctx, cutoff, 10)
		require.NoError(t, err)
		assert.Empty(t, stalled)

		_, err = repo.ReapStalled(ctx, *j, cutoff)
		assert.ErrorIs(t, err, common.ErrLeaseLost)
	})

	t.Run("last attempt fails the job", func(t *testing.T) {
		clock := newTestClock()
		repo := NewJobRepository(SetupTestDB(t), WithClock(clock.Now))
		single := newJob(config.JobTypeBulkDelete, 0, nil)
		single.MaxAttempts = 1
		mustCreate(t, repo, single)
		j := mustClaim(t, repo)

		clock.Advance(2 * timeout)
		next, err := repo.ReapStalled(ctx, *j, clock.Now().Add(-timeout))
		require.NoError(t, err)
		assert.Equal(t, config.JobStatusFailed, next)
	})
}

func TestNextAfterFailure(t *testing.T) {
	tests := []struct {
		name string
		job  models.Job
		want config.JobStatus
	}{
		{name: "attempts left", job: models.Job{Attempts: 1, MaxAttempts: 3}, want: config.JobStatusPending},
		{name: "exhausted", job: models.Job{Attempts: 3, MaxAttempts: 3}, want: config.JobStatusFailed},
		{name: "cancel requested", job: models.Job{Attempts: 1, MaxAttempts: 3, CancelRequested: true}, want: config.JobStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextAfterFailure(&tt.job))
		})
	}
}
