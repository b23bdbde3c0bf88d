package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joshu-sajeev/catalogjobs/common"
	"github.com/joshu-sajeev/catalogjobs/internal/artifact"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"gorm.io/datatypes"
)

type JobService struct {
	repo     JobRepoInterface
	blobs    artifact.Store
	jobTypes config.JobTypeCatalog
	urlTTL   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

type ServiceOption func(*JobService)

// WithURLDelivery makes artifact downloads return presigned links valid for
// ttl when the blob store supports them.
func WithURLDelivery(ttl time.Duration) ServiceOption {
	return func(s *JobService) { s.urlTTL = ttl }
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *JobService) { s.logger = l }
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *JobService) { s.now = now }
}

func NewJobService(repo JobRepoInterface, blobs artifact.Store, jobTypes config.JobTypeCatalog, opts ...ServiceOption) *JobService {
	s := &JobService{
		repo:     repo,
		blobs:    blobs,
		jobTypes: jobTypes,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ JobServiceInterface = (*JobService)(nil)

// messages holds the wording used when a repository error is surfaced.
type messages struct {
	notFound string
	conflict string
	internal string
}

// apiError maps store errors to the HTTP status the producer sees.
func apiError(err error, m messages) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return common.Errf(http.StatusRequestTimeout, "request timed out")
	case errors.Is(err, common.ErrNotFound):
		return common.Errf(http.StatusNotFound, "%s", m.notFound)
	case errors.Is(err, common.ErrConflict):
		return common.NewAPIError(http.StatusConflict, m.conflict, map[string]any{"detail": err.Error()})
	case errors.Is(err, common.ErrExpired):
		return common.Errf(http.StatusGone, "artifact expired")
	case errors.Is(err, common.ErrInvalidPayload):
		return common.Errf(http.StatusBadRequest, "%s", err.Error())
	}
	return common.Errf(http.StatusInternalServerError, "%s", m.internal)
}

func timedOut(ctx context.Context) error {
	if ctx.Err() != nil {
		return common.Errf(http.StatusRequestTimeout, "request timed out")
	}
	return nil
}

// CreateJob validates the payload against the job type, applies per-type
// defaults and stores a PENDING job.
func (s *JobService) CreateJob(ctx context.Context, req *dto.JobCreateDTO) (*dto.JobCreatedDTO, error) {
	if err := timedOut(ctx); err != nil {
		return nil, err
	}

	if _, err := decodePayload(req.Tipo, req.Payload); err != nil {
		return nil, err
	}

	defaults := s.jobTypes.For(req.Tipo)
	job := models.Job{
		Tipo:        req.Tipo,
		Payload:     datatypes.JSON(req.Payload),
		Priority:    defaults.Priority,
		MaxAttempts: defaults.MaxAttempts,
	}
	if req.Priority != nil {
		job.Priority = *req.Priority
	}
	if req.MaxAttempts != nil {
		job.MaxAttempts = *req.MaxAttempts
	}
	if job.MaxAttempts < 1 {
		job.MaxAttempts = 1
	}

	if err := s.repo.Create(ctx, &job); err != nil {
		return nil, apiError(err, messages{internal: "failed to add job to database"})
	}

	s.logger.Info("job enqueued",
		slog.Uint64("job_id", uint64(job.ID)),
		slog.String("tipo", string(job.Tipo)),
		slog.Int("priority", job.Priority),
	)
	return &dto.JobCreatedDTO{ID: job.ID}, nil
}

// GetJobByID retrieves a job by its ID from the repository.
func (s *JobService) GetJobByID(ctx context.Context, id uint) (*dto.JobResponseDTO, error) {
	if err := timedOut(ctx); err != nil {
		return nil, err
	}

	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apiError(err, messages{notFound: "job not found", internal: "failed to get job"})
	}
	resp := toJobResponse(job)
	return &resp, nil
}

// ListJobs returns one page of jobs matching f and the total match count.
func (s *JobService) ListJobs(ctx context.Context, f dto.JobFilter) (*dto.JobListDTO, error) {
	if err := timedOut(ctx); err != nil {
		return nil, err
	}
	if err := checkFilter(f); err != nil {
		return nil, err
	}
	if f.Limit == 0 {
		f.Limit = 50
	}

	jobs, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, apiError(err, messages{internal: "failed to list jobs"})
	}

	items := make([]dto.JobResponseDTO, len(jobs))
	for i := range jobs {
		items[i] = toJobResponse(&jobs[i])
	}
	return &dto.JobListDTO{Items: items, Total: total}, nil
}

func (s *JobService) GetLogs(ctx context.Context, id uint) ([]dto.JobLogDTO, error) {
	if err := timedOut(ctx); err != nil {
		return nil, err
	}

	logs, err := s.repo.Logs(ctx, id)
	if err != nil {
		return nil, apiError(err, messages{notFound: "job not found", internal: "failed to list job logs"})
	}

	out := make([]dto.JobLogDTO, len(logs))
	for i, l := range logs {
		out[i] = dto.JobLogDTO{ID: l.ID, Status: l.Status, Message: l.Message, CreatedAt: l.CreatedAt}
	}
	return out, nil
}

// GetResult returns the result linkage of a DONE job.
func (s *JobService) GetResult(ctx context.Context, id uint) (*dto.JobResultDTO, error) {
	if err := timedOut(ctx); err != nil {
		return nil, err
	}

	res, err := s.repo.Result(ctx, id)
	if err != nil {
		return nil, apiError(err, messages{notFound: "job result not available", internal: "failed to get job result"})
	}
	return &dto.JobResultDTO{JobID: id, Tipo: res.JobType(), Result: res}, nil
}

// CancelJob cancels a PENDING job at once or asks a PROCESSING job to stop.
func (s *JobService) CancelJob(ctx context.Context, id uint) (*dto.JobResponseDTO, error) {
	if err := timedOut(ctx); err != nil {
		return nil, err
	}

	job, err := s.repo.Cancel(ctx, id)
	if err != nil {
		return nil, apiError(err, messages{
			notFound: "job not found",
			conflict: "job already finished",
			internal: "failed to cancel job",
		})
	}

	s.logger.Info("job cancellation accepted",
		slog.Uint64("job_id", uint64(id)),
		slog.String("status", string(job.Status)),
	)
	resp := toJobResponse(job)
	return &resp, nil
}

// DeleteJob removes a terminal job and the bytes of its artifact.
func (s *JobService) DeleteJob(ctx context.Context, id uint) error {
	if err := timedOut(ctx); err != nil {
		return err
	}

	a, err := s.repo.Delete(ctx, id)
	if err != nil {
		return apiError(err, messages{
			notFound: "job not found",
			conflict: "job is still active",
			internal: "failed to delete job",
		})
	}
	if a != nil {
		s.dropArtifact(ctx, *a)
	}
	return nil
}

// DeleteJobs removes every job matching f, refusing the whole request when
// any of them is still active.
func (s *JobService) DeleteJobs(ctx context.Context, f dto.JobFilter) (*dto.BulkDeleteResponseDTO, error) {
	if err := timedOut(ctx); err != nil {
		return nil, err
	}
	if err := checkFilter(f); err != nil {
		return nil, err
	}
	f.Limit, f.Offset = 0, 0

	n, artifacts, err := s.repo.DeleteAllTerminal(ctx, f)
	if err != nil {
		return nil, apiError(err, messages{
			conflict: "matched jobs are still active",
			internal: "failed to delete jobs",
		})
	}
	for _, a := range artifacts {
		s.dropArtifact(ctx, a)
	}

	s.logger.Info("jobs deleted", slog.Int64("count", n))
	return &dto.BulkDeleteResponseDTO{Deleted: n}, nil
}

// dropArtifact removes artifact bytes after the job is gone. A failure only
// leaves an orphaned blob behind.
func (s *JobService) dropArtifact(ctx context.Context, a models.Artifact) {
	if a.PurgedAt != nil {
		return
	}
	if err := s.blobs.Delete(context.WithoutCancel(ctx), a.StorageKey); err != nil {
		s.logger.Warn("failed to delete artifact bytes",
			slog.Uint64("job_id", uint64(a.JobID)),
			slog.String("key", a.StorageKey),
			slog.String("error", err.Error()),
		)
	}
}

// GetArtifact opens the artifact of a job, or presigns a link to it.
func (s *JobService) GetArtifact(ctx context.Context, id uint) (*dto.ArtifactDownload, error) {
	if err := timedOut(ctx); err != nil {
		return nil, err
	}

	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, apiError(err, messages{notFound: "job not found", internal: "failed to get job"})
	}

	a := job.Artifact
	if a == nil {
		return nil, common.Errf(http.StatusNotFound, "job has no artifact")
	}
	now := s.now()
	if a.PurgedAt != nil || a.Expired(now) {
		return nil, apiError(fmt.Errorf("artifact of job %d: %w", id, common.ErrExpired), messages{})
	}

	if presigner, ok := s.blobs.(artifact.Presigner); ok && s.urlTTL > 0 {
		ttl := min(s.urlTTL, a.ExpiresAt.Sub(now))
		url, err := presigner.PresignGet(ctx, a.StorageKey, a.Name, ttl)
		if err != nil {
			return nil, apiError(err, messages{internal: "failed to sign artifact link"})
		}
		return &dto.ArtifactDownload{
			Name:        a.Name,
			ContentType: a.ContentType,
			Size:        a.Size,
			Link:        &dto.ArtifactLinkDTO{URL: url, Name: a.Name, ExpiresAt: now.Add(ttl).UTC()},
		}, nil
	}

	body, err := s.blobs.Open(ctx, a.StorageKey)
	if err != nil {
		return nil, apiError(err, messages{notFound: "artifact not found", internal: "failed to open artifact"})
	}
	return &dto.ArtifactDownload{Name: a.Name, ContentType: a.ContentType, Size: a.Size, Body: body}, nil
}

func checkFilter(f dto.JobFilter) error {
	if f.Tipo != "" && !f.Tipo.Valid() {
		return common.NewAPIError(http.StatusBadRequest, "invalid job type", map[string]any{
			"provided": f.Tipo,
			"allowed":  config.AllowedJobTypes,
		})
	}
	for _, st := range f.Statuses {
		if !st.Valid() {
			return common.NewAPIError(http.StatusBadRequest, "invalid job status", map[string]any{
				"provided": st,
				"allowed":  config.AllStatuses,
			})
		}
	}
	if f.CreatedFrom != nil && f.CreatedTo != nil && !f.CreatedFrom.Before(*f.CreatedTo) {
		return common.Errf(http.StatusBadRequest, "createdFrom must be before createdTo")
	}
	return nil
}

func toJobResponse(j *models.Job) dto.JobResponseDTO {
	resp := dto.JobResponseDTO{
		ID:              j.ID,
		Tipo:            j.Tipo,
		Status:          j.Status,
		Payload:         json.RawMessage(j.Payload),
		Priority:        j.Priority,
		Attempts:        j.Attempts,
		MaxAttempts:     j.MaxAttempts,
		CancelRequested: j.CancelRequested,
		LockedAt:        j.LockedAt,
		HeartbeatAt:     j.HeartbeatAt,
		LastError:       j.LastError,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		FinishedAt:      j.FinishedAt,
	}
	if j.Artifact != nil {
		resp.Artifact = &dto.ArtifactDTO{Name: j.Artifact.Name, ExpiresAt: j.Artifact.ExpiresAt}
	}
	return resp
}
