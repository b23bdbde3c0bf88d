package models

import (
	"time"

	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"gorm.io/datatypes"
)

// Job is the durable record of one unit of asynchronous work. LockedAt,
// HeartbeatAt and LockedBy are non-null only while Status is PROCESSING;
// FinishedAt is non-null only once Status is terminal.
type Job struct {
	ID              uint             `gorm:"primaryKey;autoIncrement"`
	Tipo            config.JobType   `gorm:"type:varchar(50);not null;index"`
	Status          config.JobStatus `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_jobs_claim,priority:1"`
	Payload         datatypes.JSON   `gorm:"type:jsonb"`
	Priority        int              `gorm:"not null;default:0;index:idx_jobs_claim,priority:2"`
	Attempts        int              `gorm:"not null;default:0"`
	MaxAttempts     int              `gorm:"not null;default:3"`
	CancelRequested bool             `gorm:"not null;default:false"`
	LockedBy        *string          `gorm:"type:varchar(64)"`
	LockedAt        *time.Time
	HeartbeatAt     *time.Time
	LastError       string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"not null;index:idx_jobs_claim,priority:3"`
	UpdatedAt       time.Time `gorm:"not null"`
	FinishedAt      *time.Time

	Artifact *Artifact `gorm:"foreignKey:JobID"`
}

// Lease identifies one claim of a job. Every write a worker makes on behalf
// of a running job is conditioned on the token still being in place.
type Lease struct {
	JobID uint
	Token string
}

// Lease returns the claim held on j, or false if j is not PROCESSING.
func (j *Job) Lease() (Lease, bool) {
	if j.Status != config.JobStatusProcessing || j.LockedBy == nil {
		return Lease{}, false
	}
	return Lease{JobID: j.ID, Token: *j.LockedBy}, true
}

// JobLog is one append-only entry of a job's event stream.
type JobLog struct {
	ID        uint             `gorm:"primaryKey;autoIncrement"`
	JobID     uint             `gorm:"not null;index:idx_job_logs_job,priority:1"`
	Status    config.JobStatus `gorm:"type:varchar(20);not null"`
	Message   string           `gorm:"type:text;not null"`
	CreatedAt time.Time        `gorm:"not null;index:idx_job_logs_job,priority:2"`
}
