package job

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
)

// JobRepoInterface defines the job store operations the HTTP side needs.
type JobRepoInterface interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id uint) (*models.Job, error)
	List(ctx context.Context, f dto.JobFilter) ([]models.Job, int64, error)
	Logs(ctx context.Context, id uint) ([]models.JobLog, error)
	Result(ctx context.Context, id uint) (models.ResultLinkage, error)
	Cancel(ctx context.Context, id uint) (*models.Job, error)
	Delete(ctx context.Context, id uint) (*models.Artifact, error)
	DeleteAllTerminal(ctx context.Context, f dto.JobFilter) (int64, []models.Artifact, error)
}

// JobServiceInterface defines the contract for job business logic operations.
type JobServiceInterface interface {
	CreateJob(ctx context.Context, req *dto.JobCreateDTO) (*dto.JobCreatedDTO, error)
	GetJobByID(ctx context.Context, id uint) (*dto.JobResponseDTO, error)
	ListJobs(ctx context.Context, f dto.JobFilter) (*dto.JobListDTO, error)
	GetLogs(ctx context.Context, id uint) ([]dto.JobLogDTO, error)
	GetResult(ctx context.Context, id uint) (*dto.JobResultDTO, error)
	CancelJob(ctx context.Context, id uint) (*dto.JobResponseDTO, error)
	DeleteJob(ctx context.Context, id uint) error
	DeleteJobs(ctx context.Context, f dto.JobFilter) (*dto.BulkDeleteResponseDTO, error)
	GetArtifact(ctx context.Context, id uint) (*dto.ArtifactDownload, error)
}

// JobHandlerInterface defines the contract for HTTP request handlers.
type JobHandlerInterface interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	List(c *gin.Context)
	Logs(c *gin.Context)
	Result(c *gin.Context)
	Cancel(c *gin.Context)
	Delete(c *gin.Context)
	DeleteMany(c *gin.Context)
	Artifact(c *gin.Context)
}
