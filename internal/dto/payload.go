package dto

import "github.com/joshu-sajeev/catalogjobs/internal/config"

// ProductFilter narrows the products a bulk job acts on.
type ProductFilter struct {
	CatalogID uint   `json:"catalogId,omitempty"`
	NCM       string `json:"ncm,omitempty" validate:"omitempty,len=8,numeric"`
	Status    string `json:"status,omitempty" validate:"omitempty,oneof=DRAFT ACTIVE INACTIVE"`
	Search    string `json:"search,omitempty" validate:"omitempty,max=120"`
}

// Selection is the bulk selection algebra: either exactly SelectedIDs, or
// every product matching Filters except DeselectedIDs.
type Selection struct {
	AllFiltered   bool          `json:"allFiltered"`
	Filters       ProductFilter `json:"filters"`
	SelectedIDs   []uint        `json:"selectedIds,omitempty" validate:"required_without=AllFiltered,omitempty,min=1,dive,gt=0"`
	DeselectedIDs []uint        `json:"deselectedIds,omitempty" validate:"omitempty,dive,gt=0"`
}

// Payload is implemented by every job payload; the tipo tag selects both the
// handler and the result linkage.
type Payload interface {
	JobType() config.JobType
}

type ImportProductPayload struct {
	CatalogID uint   `json:"catalogId" validate:"required"`
	FileKey   string `json:"fileKey" validate:"required,max=512"`
	FileName  string `json:"fileName" validate:"required,max=255"`
}

type BulkDeletePayload struct {
	Selection
}

type BulkAttributeAssignPayload struct {
	Selection
	Attributes map[string]string `json:"attributes" validate:"required,min=1,dive,keys,required,max=60,endkeys,max=255"`
}

type StructureAdjustPayload struct {
	CatalogID          uint     `json:"catalogId,omitempty"`
	NCM                string   `json:"ncm" validate:"required,len=8,numeric"`
	RequiredAttributes []string `json:"requiredAttributes,omitempty" validate:"omitempty,dive,required,max=60"`
	RemovedAttributes  []string `json:"removedAttributes,omitempty" validate:"omitempty,dive,required,max=60"`
}

type ExportProductPayload struct {
	Filters ProductFilter `json:"filters"`
	Format  string        `json:"format" validate:"required,oneof=csv"`
}

func (ImportProductPayload) JobType() config.JobType       { return config.JobTypeImportProduct }
func (BulkDeletePayload) JobType() config.JobType          { return config.JobTypeBulkDelete }
func (BulkAttributeAssignPayload) JobType() config.JobType { return config.JobTypeBulkAttributeAssign }
func (StructureAdjustPayload) JobType() config.JobType     { return config.JobTypeStructureAdjust }
func (ExportProductPayload) JobType() config.JobType       { return config.JobTypeExportProduct }
