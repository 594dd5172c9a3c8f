package model

import (
	"encoding/json"
	"time"
)

// JobStatus is the ExtractionJob lifecycle state.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobOK         JobStatus = "ok"
	JobFailed     JobStatus = "failed"
	JobSkipped    JobStatus = "skipped"
)

// JobMeta is the free-form attempt bookkeeping persisted alongside a job.
// It is read-modify-written by the worker and the stale-requeue RPC.
type JobMeta struct {
	Attempt         int               `json:"attempt"`
	ProcessingStart *time.Time        `json:"processing_start,omitempty"`
	LastErrorStage  string            `json:"last_error_stage,omitempty"`
	RequeueReason   string            `json:"requeue_reason,omitempty"`
	AssignmentID    string            `json:"assignment_id,omitempty"`
	SegmentErrors   map[string]string `json:"segment_errors,omitempty"`

	// SegmentText holds a compilation child job's own excerpt of the
	// parent raw message's text, set once at fan-out time (see
	// CreateSegmentJobs). Parent jobs never set this field.
	SegmentText string `json:"segment_text,omitempty"`
}

// ExtractionJob is the unit of work claimed by the worker pool. Identity is
// (RawID, PipelineVersion).
type ExtractionJob struct {
	ID              string          `json:"id"`
	RawID           string          `json:"raw_id"`
	PipelineVersion string          `json:"pipeline_version"`
	Status          JobStatus       `json:"status"`
	Meta            JobMeta         `json:"meta"`
	Error           json.RawMessage `json:"error,omitempty"`
	LLMModel        string          `json:"llm_model,omitempty"`

	// OwnerID identifies the worker instance currently holding the lease;
	// used by requeue_stale to attribute orphaned jobs in logs.
	OwnerID string `json:"owner_id,omitempty"`

	// SegmentIndex and ParentJobID support compilation messages: a
	// compilation job fans out into N segment jobs sharing ParentJobID,
	// each with a stable SegmentIndex across reprocessings.
	SegmentIndex *int    `json:"segment_index,omitempty"`
	ParentJobID  *string `json:"parent_job_id,omitempty"`

	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// IsSegment reports whether this job is a child of a compilation job.
func (j *ExtractionJob) IsSegment() bool {
	return j != nil && j.ParentJobID != nil
}
