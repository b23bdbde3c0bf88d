package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joshu-sajeev/catalogjobs/common"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"gorm.io/gorm"
)

const claimCandidate = `SELECT id FROM jobs WHERE status = ?
ORDER BY priority ASC, created_at ASC, id ASC LIMIT 1`

// Claim hands the next eligible PENDING job to the caller, or nil when the
// queue is empty. The claim is a single conditional UPDATE, so two workers
// can never own the same job.
func (r *JobRepository) Claim(ctx context.Context) (*models.Job, error) {
	candidate := claimCandidate
	if r.db.Dialector.Name() == "postgres" {
		candidate += " FOR UPDATE SKIP LOCKED"
	}

	token := uuid.NewString()
	now := r.timestamp()
	pending := string(config.JobStatusPending)

	res := r.db.WithContext(ctx).Exec(
		`UPDATE jobs SET status = ?, attempts = attempts + 1, locked_by = ?,
locked_at = ?, heartbeat_at = ?, updated_at = ?
WHERE status = ? AND id = (`+candidate+`)`,
		string(config.JobStatusProcessing), token, now, now, now, pending, pending,
	)
	if res.Error != nil {
		return nil, fmt.Errorf("claim job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	// the row is ours now; a cancel arriving here must not strand it
	var j models.Job
	if err := r.db.WithContext(context.WithoutCancel(ctx)).First(&j, "locked_by = ?", token).Error; err != nil {
		return nil, fmt.Errorf("load claimed job: %w", err)
	}
	return &j, nil
}

// owned scopes a write to the job still held under lease.
func owned(tx *gorm.DB, lease models.Lease) *gorm.DB {
	return tx.Model(&models.Job{}).Where("id = ? AND status = ? AND locked_by = ?",
		lease.JobID, string(config.JobStatusProcessing), lease.Token)
}

// Heartbeat renews the lease. ErrLeaseLost means the job was reaped,
// finalized or reclaimed and the caller must stop working on it.
func (r *JobRepository) Heartbeat(ctx context.Context, lease models.Lease) error {
	res := owned(r.db.WithContext(ctx), lease).UpdateColumn("heartbeat_at", r.timestamp())
	if res.Error != nil {
		return fmt.Errorf("heartbeat job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %d: %w", lease.JobID, common.ErrLeaseLost)
	}
	return nil
}

// IsCancelRequested reports whether a cancel was requested for the leased job.
func (r *JobRepository) IsCancelRequested(ctx context.Context, lease models.Lease) (bool, error) {
	var j models.Job
	err := r.db.WithContext(ctx).Select("id", "status", "locked_by", "cancel_requested").
		First(&j, "id = ?", lease.JobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("job %d: %w", lease.JobID, common.ErrLeaseLost)
	}
	if err != nil {
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	if !holds(&j, lease) {
		return false, fmt.Errorf("job %d: %w", lease.JobID, common.ErrLeaseLost)
	}
	return j.CancelRequested, nil
}

// AppendLog records a handler message under the job's current status. The
// entry is only written while the lease is held.
func (r *JobRepository) AppendLog(ctx context.Context, lease models.Lease, message string) error {
	res := r.db.WithContext(ctx).Exec(
		`INSERT INTO job_logs (job_id, status, message, created_at)
SELECT id, status, ?, ? FROM jobs WHERE id = ? AND status = ? AND locked_by = ?`,
		message, r.timestamp(), lease.JobID, string(config.JobStatusProcessing), lease.Token,
	)
	if res.Error != nil {
		return fmt.Errorf("append job log: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %d: %w", lease.JobID, common.ErrLeaseLost)
	}
	return nil
}

// Complete flips the job to DONE and writes its result linkage, and the
// artifact descriptor when there is one, in a single transaction.
func (r *JobRepository) Complete(ctx context.Context, lease models.Lease, result models.ResultLinkage, artifact *models.Artifact) error {
	if result == nil {
		return fmt.Errorf("complete job %d: missing result", lease.JobID)
	}
	now := r.timestamp()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := owned(tx, lease).Updates(finishColumns(config.JobStatusDone, now))
		if res.Error != nil {
			return fmt.Errorf("complete job: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("job %d: %w", lease.JobID, common.ErrLeaseLost)
		}

		result.LinkJob(lease.JobID)
		if err := tx.Create(result).Error; err != nil {
			return fmt.Errorf("create job result: %w", err)
		}

		if artifact != nil {
			artifact.JobID = lease.JobID
			artifact.CreatedAt = now
			if err := tx.Create(artifact).Error; err != nil {
				return fmt.Errorf("create artifact: %w", err)
			}
		}

		return appendLog(tx, lease.JobID, config.JobStatusDone, "job completed", now)
	})
}

// FinalizeCancelled ends a job whose handler stopped on a cancel request.
func (r *JobRepository) FinalizeCancelled(ctx context.Context, lease models.Lease) error {
	now := r.timestamp()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := owned(tx, lease).Updates(finishColumns(config.JobStatusCancelled, now))
		if res.Error != nil {
			return fmt.Errorf("cancel job: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("job %d: %w", lease.JobID, common.ErrLeaseLost)
		}
		return appendLog(tx, lease.JobID, config.JobStatusCancelled, "job cancelled during execution", now)
	})
}

// Fail applies the retry policy to a job whose handler returned an error and
// reports the status it moved to.
func (r *JobRepository) Fail(ctx context.Context, lease models.Lease, cause error) (config.JobStatus, error) {
	var next config.JobStatus

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var j models.Job
		if err := tx.First(&j, "id = ?", lease.JobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("job %d: %w", lease.JobID, common.ErrLeaseLost)
			}
			return fmt.Errorf("load failed job: %w", err)
		}
		if !holds(&j, lease) {
			return fmt.Errorf("job %d: %w", lease.JobID, common.ErrLeaseLost)
		}

		var err error
		next, err = r.release(tx, &j, owned(tx, lease), cause.Error())
		return err
	})
	if err != nil {
		return "", err
	}
	return next, nil
}

// Requeue hands back a job interrupted by worker shutdown. The attempt is not
// counted: the job returns to PENDING with its attempt count restored, or
// becomes CANCELLED when a cancel was requested meanwhile.
func (r *JobRepository) Requeue(ctx context.Context, lease models.Lease, reason string) (config.JobStatus, error) {
	var next config.JobStatus

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var j models.Job
		if err := tx.First(&j, "id = ?", lease.JobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("job %d: %w", lease.JobID, common.ErrLeaseLost)
			}
			return fmt.Errorf("load interrupted job: %w", err)
		}
		if !holds(&j, lease) {
			return fmt.Errorf("job %d: %w", lease.JobID, common.ErrLeaseLost)
		}

		next = config.JobStatusPending
		message := fmt.Sprintf("attempt %d interrupted, returned to queue: %s", j.Attempts, reason)
		if j.CancelRequested {
			next = config.JobStatusCancelled
			message = "job cancelled on interruption: " + reason
		}
		if !j.Status.CanTransition(next) {
			return fmt.Errorf("job %d is %s: %w", j.ID, j.Status, common.ErrConflict)
		}

		now := r.timestamp()
		columns := finishColumns(next, now)
		if next == config.JobStatusPending {
			columns["attempts"] = gorm.Expr("attempts - 1")
		}
		res := owned(tx, lease).Updates(columns)
		if res.Error != nil {
			return fmt.Errorf("requeue job: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("job %d: %w", lease.JobID, common.ErrLeaseLost)
		}
		return appendLog(tx, j.ID, next, message, now)
	})
	if err != nil {
		return "", err
	}
	return next, nil
}

// ListStalled returns PROCESSING jobs whose last heartbeat is older than
// cutoff, oldest first.
func (r *JobRepository) ListStalled(ctx context.Context, cutoff time.Time, limit int) ([]models.Job, error) {
	var jobs []models.Job
	q := r.db.WithContext(ctx).
		Where("status = ? AND heartbeat_at < ?", string(config.JobStatusProcessing), cutoff.UTC()).
		Order("heartbeat_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list stalled jobs: %w", err)
	}
	return jobs, nil
}

// ReapStalled runs the retry policy on a job whose lease expired. A job that
// heartbeated after cutoff is left alone and ErrLeaseLost is returned.
func (r *JobRepository) ReapStalled(ctx context.Context, j models.Job, cutoff time.Time) (config.JobStatus, error) {
	lease, ok := j.Lease()
	if !ok {
		return "", fmt.Errorf("job %d: %w", j.ID, common.ErrLeaseLost)
	}

	var next config.JobStatus
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Job
		if err := tx.First(&current, "id = ?", j.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("job %d: %w", j.ID, common.ErrLeaseLost)
			}
			return fmt.Errorf("load stalled job: %w", err)
		}
		if !holds(&current, lease) {
			return fmt.Errorf("job %d: %w", j.ID, common.ErrLeaseLost)
		}

		cause := "lease expired"
		if current.HeartbeatAt != nil {
			cause += ": no heartbeat since " + current.HeartbeatAt.UTC().Format(time.RFC3339)
		}
		guard := owned(tx, lease).Where("heartbeat_at < ?", cutoff.UTC())

		var err error
		next, err = r.release(tx, &current, guard, cause)
		return err
	})
	if err != nil {
		return "", err
	}
	return next, nil
}

// nextAfterFailure is the retry decision shared by handler failures and
// reaped leases. A pending cancel request wins over another attempt.
func nextAfterFailure(j *models.Job) config.JobStatus {
	switch {
	case j.CancelRequested:
		return config.JobStatusCancelled
	case j.Attempts < j.MaxAttempts:
		return config.JobStatusPending
	default:
		return config.JobStatusFailed
	}
}

// release takes a PROCESSING job out of its lease through guard and logs why.
func (r *JobRepository) release(tx *gorm.DB, j *models.Job, guard *gorm.DB, cause string) (config.JobStatus, error) {
	now := r.timestamp()
	next := nextAfterFailure(j)
	if !j.Status.CanTransition(next) {
		return "", fmt.Errorf("job %d is %s: %w", j.ID, j.Status, common.ErrConflict)
	}

	columns := finishColumns(next, now)
	columns["last_error"] = cause

	var message string
	switch next {
	case config.JobStatusPending:
		message = fmt.Sprintf("attempt %d of %d failed, retrying: %s", j.Attempts, j.MaxAttempts, cause)
	case config.JobStatusFailed:
		message = fmt.Sprintf("attempt %d of %d failed, giving up: %s", j.Attempts, j.MaxAttempts, cause)
	default:
		message = "job cancelled after failure: " + cause
	}

	res := guard.Updates(columns)
	if res.Error != nil {
		return "", fmt.Errorf("release job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return "", fmt.Errorf("job %d: %w", j.ID, common.ErrLeaseLost)
	}

	if err := appendLog(tx, j.ID, next, message, now); err != nil {
		return "", err
	}
	return next, nil
}

// finishColumns clears the lease and, for terminal statuses, stamps
// finished_at.
func finishColumns(status config.JobStatus, now time.Time) map[string]any {
	columns := map[string]any{
		"status":       string(status),
		"locked_by":    nil,
		"locked_at":    nil,
		"heartbeat_at": nil,
		"updated_at":   now,
	}
	if status.Terminal() {
		columns["finished_at"] = now
	}
	return columns
}

func holds(j *models.Job, lease models.Lease) bool {
	return j.Status == config.JobStatusProcessing && j.LockedBy != nil && *j.LockedBy == lease.Token
}
