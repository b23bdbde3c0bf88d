package dto

import (
	"encoding/json"
	"io"
	"time"

	"github.com/joshu-sajeev/catalogjobs/internal/config"
)

type JobCreateDTO struct {
	Tipo        config.JobType  `json:"tipo" validate:"required"`
	Payload     json.RawMessage `json:"payload" validate:"required"`
	Priority    *int            `json:"priority,omitempty" validate:"omitempty,gte=-1000,lte=1000"`
	MaxAttempts *int            `json:"maxAttempts,omitempty" validate:"omitempty,gte=1,lte=20"`
}

type JobCreatedDTO struct {
	ID uint `json:"id"`
}

type ArtifactDTO struct {
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type JobResponseDTO struct {
	ID              uint             `json:"id"`
	Tipo            config.JobType   `json:"tipo"`
	Status          config.JobStatus `json:"status"`
	Payload         json.RawMessage  `json:"payload"`
	Priority        int              `json:"priority"`
	Attempts        int              `json:"attempts"`
	MaxAttempts     int              `json:"maxAttempts"`
	CancelRequested bool             `json:"cancelRequested"`
	LockedAt        *time.Time       `json:"lockedAt,omitempty"`
	HeartbeatAt     *time.Time       `json:"heartbeatAt,omitempty"`
	LastError       string           `json:"lastError,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	FinishedAt      *time.Time       `json:"finishedAt,omitempty"`
	Artifact        *ArtifactDTO     `json:"artifact,omitempty"`
}

type JobListDTO struct {
	Items []JobResponseDTO `json:"items"`
	Total int64            `json:"total"`
}

type JobLogDTO struct {
	ID        uint             `json:"id"`
	Status    config.JobStatus `json:"status"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"createdAt"`
}

type JobResultDTO struct {
	JobID  uint           `json:"jobId"`
	Tipo   config.JobType `json:"tipo"`
	Result any            `json:"result"`
}

type BulkDeleteResponseDTO struct {
	Deleted int64 `json:"deleted"`
}

// ArtifactDownload is either an open byte stream or, when the store hands
// out signed URLs, a link. Exactly one of Body and Link is set.
type ArtifactDownload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.ReadCloser
	Link        *ArtifactLinkDTO
}

// ArtifactLinkDTO is returned instead of the bytes when the blob store hands
// out signed URLs.
type ArtifactLinkDTO struct {
	URL       string    `json:"url"`
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// JobFilter selects jobs for listing and bulk deletion. Zero values do not
// filter.
type JobFilter struct {
	Tipo        config.JobType     `form:"tipo"`
	Statuses    []config.JobStatus `form:"status"`
	CreatedFrom *time.Time         `form:"createdFrom" time_format:"2006-01-02T15:04:05Z07:00"`
	CreatedTo   *time.Time         `form:"createdTo" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit       int                `form:"limit" validate:"gte=0,lte=500"`
	Offset      int                `form:"offset" validate:"gte=0"`
	Order       string             `form:"order" validate:"omitempty,oneof=asc desc"`
}

// Descending reports whether the newest jobs come first.
func (f JobFilter) Descending() bool {
	return f.Order == "desc"
}
