package config

import "slices"

type JobStatus string

type JobType string

// ResultOutcome is the business verdict recorded in a result linkage. It is
// independent of the job status: a DONE job may report PARTIAL_SUCCESS.
type ResultOutcome string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusDone       JobStatus = "DONE"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

const (
	JobTypeImportProduct       JobType = "IMPORT_PRODUCT"
	JobTypeBulkDelete          JobType = "BULK_DELETE"
	JobTypeBulkAttributeAssign JobType = "BULK_ATTRIBUTE_ASSIGN"
	JobTypeStructureAdjust     JobType = "STRUCTURE_ADJUST"
	JobTypeExportProduct       JobType = "EXPORT_PRODUCT"
)

const (
	OutcomeSuccess        ResultOutcome = "SUCCESS"
	OutcomePartialSuccess ResultOutcome = "PARTIAL_SUCCESS"
	OutcomeFailure        ResultOutcome = "FAILURE"
)

var (
	AllowedJobTypes = []JobType{
		JobTypeImportProduct,
		JobTypeBulkDelete,
		JobTypeBulkAttributeAssign,
		JobTypeStructureAdjust,
		JobTypeExportProduct,
	}
	AllStatuses = []JobStatus{
		JobStatusPending,
		JobStatusProcessing,
		JobStatusDone,
		JobStatusFailed,
		JobStatusCancelled,
	}
	TerminalStatuses = []JobStatus{JobStatusDone, JobStatusFailed, JobStatusCancelled}
	ActiveStatuses   = []JobStatus{JobStatusPending, JobStatusProcessing}
)

// transitions lists every legal status change. PROCESSING -> PENDING is only
// taken by the retry policy, the lease monitor and a shutdown requeue.
var transitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusCancelled},
	JobStatusProcessing: {JobStatusDone, JobStatusFailed, JobStatusCancelled, JobStatusPending},
}

func (s JobStatus) Terminal() bool {
	return slices.Contains(TerminalStatuses, s)
}

func (s JobStatus) Valid() bool {
	return slices.Contains(AllStatuses, s)
}

// CanTransition reports whether moving from s to next is allowed.
func (s JobStatus) CanTransition(next JobStatus) bool {
	return slices.Contains(transitions[s], next)
}

func (t JobType) Valid() bool {
	return slices.Contains(AllowedJobTypes, t)
}

// ProducesArtifact reports whether jobs of this type publish a downloadable file.
func (t JobType) ProducesArtifact() bool {
	return t == JobTypeExportProduct
}

// StatusStrings converts statuses for use as query arguments.
func StatusStrings(statuses []JobStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
