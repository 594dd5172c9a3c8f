// Package queue implements C5, the extraction worker orchestration: a
// fixed-size Pool of Workers, each looping claim → process_one →
// terminate against ExtractionJob rows.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/tutordex/aggregator/pkg/delivery"
	"github.com/tutordex/aggregator/pkg/duplicate"
	aggerrors "github.com/tutordex/aggregator/pkg/errors"
	"github.com/tutordex/aggregator/pkg/extract"
	"github.com/tutordex/aggregator/pkg/model"
)

// Sentinel errors for queue operations.
var (
	ErrNoJobsAvailable = errors.New("no jobs available")
)

// Store is the subset of pkg/store's RPCs the worker pool needs.
// Narrowed to a consumer-defined interface, same pattern as
// pkg/duplicate.Store and pkg/freshness.Store, so Worker/Pool are
// unit-testable against a fake.
type Store interface {
	GetRawMessage(ctx context.Context, rawID string) (*model.RawMessage, error)
	Claim(ctx context.Context, pipelineVersion, ownerID string, limit int) ([]*model.ExtractionJob, error)
	Terminate(ctx context.Context, jobID string, status model.JobStatus, pipelineErr json.RawMessage, assignmentID string) error
	RequeueStale(ctx context.Context, olderThan time.Duration) (int, error)
	UpsertAssignment(ctx context.Context, a *model.Assignment) (*model.Assignment, error)
	CreateSegmentJobs(ctx context.Context, parentJobID, rawID, pipelineVersion string, segments []string) ([]*model.ExtractionJob, error)
	RecordTriageSample(ctx context.Context, jobID, stage, outcome, redactedText string) error
}

// Extractor is the C3 contract consumed by the pipeline (satisfied by
// extract.BreakerExtractor).
type Extractor interface {
	Extract(ctx context.Context, rawText string, agencyHints map[string]string) extract.Result
}

// DuplicateDetector is the C6 contract consumed by the pipeline
// (satisfied by duplicate.Detector).
type DuplicateDetector interface {
	Detect(ctx context.Context, a *model.Assignment) (*duplicate.Result, error)
}

// Fanout is the C8 contract consumed by the pipeline (satisfied by
// delivery.Fanout).
type Fanout interface {
	Deliver(ctx context.Context, a *model.Assignment) (*delivery.Summary, error)
}

// Processor runs process_one for a single claimed job. Separated from
// Worker so the polling/lifecycle machinery can be tested
// independently of pipeline stage logic.
type Processor interface {
	Process(ctx context.Context, job *model.ExtractionJob) aggerrors.Outcome
}

// WorkerStatus is a worker's idle/working health state.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth reports a single worker's health.
type WorkerHealth struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	CurrentJobID  string    `json:"current_job_id,omitempty"`
	JobsProcessed int       `json:"jobs_processed"`
	LastActivity  time.Time `json:"last_activity"`
}

// PoolHealth reports the health of the entire worker pool.
type PoolHealth struct {
	IsHealthy       bool           `json:"is_healthy"`
	PodID           string         `json:"pod_id"`
	ActiveWorkers   int            `json:"active_workers"`
	TotalWorkers    int            `json:"total_workers"`
	WorkerStats     []WorkerHealth `json:"worker_stats"`
	LastRequeueScan time.Time      `json:"last_requeue_scan"`
	JobsRequeued    int            `json:"jobs_requeued"`
}
