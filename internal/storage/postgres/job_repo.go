package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joshu-sajeev/catalogjobs/common"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/internal/job"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"gorm.io/gorm"
)

// JobRepository is the job store. It is the only synchronization point
// between workers: every ownership-sensitive write is a conditional UPDATE.
type JobRepository struct {
	db  *gorm.DB
	now func() time.Time
}

type RepoOption func(*JobRepository)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) RepoOption {
	return func(r *JobRepository) { r.now = now }
}

func NewJobRepository(db *gorm.DB, opts ...RepoOption) *JobRepository {
	r := &JobRepository{db: db, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ job.JobRepoInterface = (*JobRepository)(nil)

// timestamp is truncated to microseconds so the value written matches what
// PostgreSQL hands back.
func (r *JobRepository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

// Create inserts j as a new PENDING job. Lock and finish fields are cleared
// whatever the caller put in them.
func (r *JobRepository) Create(ctx context.Context, j *models.Job) error {
	now := r.timestamp()
	j.Status = config.JobStatusPending
	j.Attempts = 0
	j.CancelRequested = false
	j.LockedBy, j.LockedAt, j.HeartbeatAt, j.FinishedAt = nil, nil, nil, nil
	j.CreatedAt, j.UpdatedAt = now, now

	if err := r.db.WithContext(ctx).Omit("Artifact").Create(j).Error; err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// Get retrieves a single job with its artifact descriptor.
func (r *JobRepository) Get(ctx context.Context, id uint) (*models.Job, error) {
	var j models.Job
	if err := r.db.WithContext(ctx).Preload("Artifact").First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job %d: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

// List returns the jobs matching f ordered by creation time, plus the total
// count ignoring limit and offset.
func (r *JobRepository) List(ctx context.Context, f dto.JobFilter) ([]models.Job, int64, error) {
	var total int64
	if err := applyJobFilter(r.db.WithContext(ctx).Model(&models.Job{}), f).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	order := "created_at ASC, id ASC"
	if f.Descending() {
		order = "created_at DESC, id DESC"
	}

	q := applyJobFilter(r.db.WithContext(ctx).Preload("Artifact"), f).Order(order)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var jobs []models.Job
	if err := q.Find(&jobs).Error; err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, total, nil
}

func applyJobFilter(q *gorm.DB, f dto.JobFilter) *gorm.DB {
	if f.Tipo != "" {
		q = q.Where("tipo = ?", string(f.Tipo))
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", config.StatusStrings(f.Statuses))
	}
	if f.CreatedFrom != nil {
		q = q.Where("created_at >= ?", f.CreatedFrom.UTC())
	}
	if f.CreatedTo != nil {
		q = q.Where("created_at < ?", f.CreatedTo.UTC())
	}
	return q
}

// Logs returns the log stream of a job in append order.
func (r *JobRepository) Logs(ctx context.Context, id uint) ([]models.JobLog, error) {
	if err := r.exists(ctx, id); err != nil {
		return nil, err
	}

	var logs []models.JobLog
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", id).
		Order("created_at ASC, id ASC").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list job logs: %w", err)
	}
	return logs, nil
}

// Result loads the result linkage of a job. Jobs that never reached DONE
// have none.
func (r *JobRepository) Result(ctx context.Context, id uint) (models.ResultLinkage, error) {
	j, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	res, ok := models.NewResult(j.Tipo)
	if !ok {
		return nil, fmt.Errorf("job %d has unknown type %q", id, j.Tipo)
	}

	if err := r.db.WithContext(ctx).Where("job_id = ?", id).First(res).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("result of job %d: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("get job result: %w", err)
	}
	return res, nil
}

var errStateChanged = errors.New("job changed state concurrently")

// Cancel moves a PENDING job straight to CANCELLED, or flags a PROCESSING
// job so its handler stops at the next checkpoint. Terminal jobs conflict.
func (r *JobRepository) Cancel(ctx context.Context, id uint) (*models.Job, error) {
	for range 3 {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return r.cancel(tx, id)
		})
		if errors.Is(err, errStateChanged) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return r.Get(ctx, id)
	}
	return nil, fmt.Errorf("cancel job %d: %w", id, errStateChanged)
}

func (r *JobRepository) cancel(tx *gorm.DB, id uint) error {
	var j models.Job
	if err := tx.First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("job %d: %w", id, common.ErrNotFound)
		}
		return fmt.Errorf("cancel job: %w", err)
	}
	if !j.Status.CanTransition(config.JobStatusCancelled) {
		return fmt.Errorf("job %d is %s: %w", id, j.Status, common.ErrConflict)
	}

	now := r.timestamp()

	switch j.Status {
	case config.JobStatusPending:
		res := tx.Model(&models.Job{}).
			Where("id = ? AND status = ?", id, string(config.JobStatusPending)).
			Updates(map[string]any{
				"status":      string(config.JobStatusCancelled),
				"finished_at": now,
				"updated_at":  now,
			})
		if res.Error != nil {
			return fmt.Errorf("cancel job: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errStateChanged
		}
		return appendLog(tx, id, config.JobStatusCancelled, "job cancelled before execution", now)

	case config.JobStatusProcessing:
		if j.CancelRequested {
			return nil
		}
		res := tx.Model(&models.Job{}).
			Where("id = ? AND status = ?", id, string(config.JobStatusProcessing)).
			Updates(map[string]any{
				"cancel_requested": true,
				"updated_at":       now,
			})
		if res.Error != nil {
			return fmt.Errorf("request cancellation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errStateChanged
		}
		return appendLog(tx, id, config.JobStatusProcessing, "cancellation requested", now)
	}
	return nil
}

// Delete removes a terminal job with its logs, result and artifact row. It
// returns the artifact so the caller can drop the stored bytes.
func (r *JobRepository) Delete(ctx context.Context, id uint) (*models.Artifact, error) {
	var artifact *models.Artifact

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var j models.Job
		if err := tx.Preload("Artifact").First(&j, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("job %d: %w", id, common.ErrNotFound)
			}
			return fmt.Errorf("delete job: %w", err)
		}
		if !j.Status.Terminal() {
			return fmt.Errorf("job %d is %s: %w", id, j.Status, common.ErrConflict)
		}

		n, err := deleteTerminal(tx, []uint{id})
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("job %d: %w", id, common.ErrConflict)
		}

		artifact = j.Artifact
		return nil
	})
	if err != nil {
		return nil, err
	}
	return artifact, nil
}

// DeleteAllTerminal deletes every job matching f, or none of them if any
// matched job is still PENDING or PROCESSING.
func (r *JobRepository) DeleteAllTerminal(ctx context.Context, f dto.JobFilter) (int64, []models.Artifact, error) {
	var (
		deleted   int64
		artifacts []models.Artifact
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := applyJobFilter(tx.Model(&models.Job{}), f).
			Where("status IN ?", config.StatusStrings(config.ActiveStatuses)).
			Count(&active).Error; err != nil {
			return fmt.Errorf("count active jobs: %w", err)
		}
		if active > 0 {
			return fmt.Errorf("%d matched jobs are still active: %w", active, common.ErrConflict)
		}

		var ids []uint
		if err := applyJobFilter(tx.Model(&models.Job{}), f).
			Order("id ASC").
			Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("select jobs: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		for _, chunk := range chunkIDs(ids, deleteChunkSize) {
			var found []models.Artifact
			if err := tx.Where("job_id IN ?", chunk).Find(&found).Error; err != nil {
				return fmt.Errorf("select artifacts: %w", err)
			}
			artifacts = append(artifacts, found...)

			n, err := deleteTerminal(tx, chunk)
			if err != nil {
				return err
			}
			// a job can only stop matching by being deleted concurrently
			if n != int64(len(chunk)) {
				return fmt.Errorf("matched jobs changed during deletion: %w", common.ErrConflict)
			}
			deleted += n
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return deleted, artifacts, nil
}

const deleteChunkSize = 500

// deleteTerminal cascades over dependents and deletes the jobs, guarded on
// their terminal status. It returns how many jobs were removed.
func deleteTerminal(tx *gorm.DB, ids []uint) (int64, error) {
	if err := tx.Where("job_id IN ?", ids).Delete(&models.JobLog{}).Error; err != nil {
		return 0, fmt.Errorf("delete job logs: %w", err)
	}
	for _, m := range models.ResultModels() {
		if err := tx.Where("job_id IN ?", ids).Delete(m).Error; err != nil {
			return 0, fmt.Errorf("delete job results: %w", err)
		}
	}
	if err := tx.Where("job_id IN ?", ids).Delete(&models.Artifact{}).Error; err != nil {
		return 0, fmt.Errorf("delete artifacts: %w", err)
	}

	res := tx.Where("id IN ? AND status IN ?", ids, config.StatusStrings(config.TerminalStatuses)).
		Delete(&models.Job{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func chunkIDs(ids []uint, size int) [][]uint {
	var chunks [][]uint
	for size < len(ids) {
		ids, chunks = ids[size:], append(chunks, ids[:size])
	}
	return append(chunks, ids)
}

func (r *JobRepository) exists(ctx context.Context, id uint) error {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("find job: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %d: %w", id, common.ErrNotFound)
	}
	return nil
}

func appendLog(tx *gorm.DB, jobID uint, status config.JobStatus, message string, at time.Time) error {
	entry := models.JobLog{JobID: jobID, Status: status, Message: message, CreatedAt: at}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("append job log: %w", err)
	}
	return nil
}
