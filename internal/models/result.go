package models

import (
	"time"

	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"gorm.io/datatypes"
)

// ResultLinkage is the business outcome of a DONE job. Exactly one row per
// job is written, inside the transaction that marks the job DONE.
type ResultLinkage interface {
	LinkJob(jobID uint)
	JobType() config.JobType
}

type ImportResult struct {
	ID        uint                 `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID     uint                 `gorm:"not null;uniqueIndex" json:"jobId"`
	Outcome   config.ResultOutcome `gorm:"type:varchar(20);not null" json:"outcome"`
	TotalRows int                  `gorm:"not null" json:"totalRows"`
	Created   int                  `gorm:"not null" json:"created"`
	Updated   int                  `gorm:"not null" json:"updated"`
	Skipped   int                  `gorm:"not null" json:"skipped"`
	Errors    datatypes.JSON       `gorm:"type:jsonb" json:"errors"`
	CreatedAt time.Time            `json:"createdAt"`
}

type BulkDeleteResult struct {
	ID        uint                 `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID     uint                 `gorm:"not null;uniqueIndex" json:"jobId"`
	Outcome   config.ResultOutcome `gorm:"type:varchar(20);not null" json:"outcome"`
	Matched   int                  `gorm:"not null" json:"matched"`
	Deleted   int                  `gorm:"not null" json:"deleted"`
	CreatedAt time.Time            `json:"createdAt"`
}

type AttributeAssignResult struct {
	ID        uint                 `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID     uint                 `gorm:"not null;uniqueIndex" json:"jobId"`
	Outcome   config.ResultOutcome `gorm:"type:varchar(20);not null" json:"outcome"`
	Matched   int                  `gorm:"not null" json:"matched"`
	Updated   int                  `gorm:"not null" json:"updated"`
	Skipped   int                  `gorm:"not null" json:"skipped"`
	Errors    datatypes.JSON       `gorm:"type:jsonb" json:"errors"`
	CreatedAt time.Time            `json:"createdAt"`
}

type StructureAdjustResult struct {
	ID        uint                 `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID     uint                 `gorm:"not null;uniqueIndex" json:"jobId"`
	Outcome   config.ResultOutcome `gorm:"type:varchar(20);not null" json:"outcome"`
	NCM       string               `gorm:"type:varchar(8);not null" json:"ncm"`
	Matched   int                  `gorm:"not null" json:"matched"`
	Adjusted  int                  `gorm:"not null" json:"adjusted"`
	CreatedAt time.Time            `json:"createdAt"`
}

type ExportResult struct {
	ID           uint                 `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID        uint                 `gorm:"not null;uniqueIndex" json:"jobId"`
	Outcome      config.ResultOutcome `gorm:"type:varchar(20);not null" json:"outcome"`
	RowCount     int                  `gorm:"not null" json:"rowCount"`
	ArtifactName string               `gorm:"type:varchar(255);not null" json:"artifactName"`
	CreatedAt    time.Time            `json:"createdAt"`
}

func (r *ImportResult) LinkJob(id uint)          { r.JobID = id }
func (r *BulkDeleteResult) LinkJob(id uint)      { r.JobID = id }
func (r *AttributeAssignResult) LinkJob(id uint) { r.JobID = id }
func (r *StructureAdjustResult) LinkJob(id uint) { r.JobID = id }
func (r *ExportResult) LinkJob(id uint)          { r.JobID = id }

func (*ImportResult) JobType() config.JobType          { return config.JobTypeImportProduct }
func (*BulkDeleteResult) JobType() config.JobType      { return config.JobTypeBulkDelete }
func (*AttributeAssignResult) JobType() config.JobType { return config.JobTypeBulkAttributeAssign }
func (*StructureAdjustResult) JobType() config.JobType { return config.JobTypeStructureAdjust }
func (*ExportResult) JobType() config.JobType          { return config.JobTypeExportProduct }

// NewResult returns an empty result linkage of the type tipo produces.
func NewResult(tipo config.JobType) (ResultLinkage, bool) {
	switch tipo {
	case config.JobTypeImportProduct:
		return &ImportResult{}, true
	case config.JobTypeBulkDelete:
		return &BulkDeleteResult{}, true
	case config.JobTypeBulkAttributeAssign:
		return &AttributeAssignResult{}, true
	case config.JobTypeStructureAdjust:
		return &StructureAdjustResult{}, true
	case config.JobTypeExportProduct:
		return &ExportResult{}, true
	}
	return nil, false
}

// ResultModels lists every result table, for migrations and cascades.
func ResultModels() []any {
	return []any{
		&ImportResult{},
		&BulkDeleteResult{},
		&AttributeAssignResult{},
		&StructureAdjustResult{},
		&ExportResult{},
	}
}

// All lists every model owned by the engine, in dependency order.
func All() []any {
	return append([]any{&Job{}, &JobLog{}, &Artifact{}, &Product{}}, ResultModels()...)
}
