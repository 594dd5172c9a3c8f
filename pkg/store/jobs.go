package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tutordex/aggregator/pkg/model"
)

// EnqueueRequest enqueues one job per referenced raw message id.
type EnqueueRequest struct {
	PipelineVersion string
	Channel         string
	MessageIDs      []string
	Force           bool
}

// Enqueue upserts one ExtractionJob per (raw_id, pipeline_version). Rows
// already in the ok status are left untouched unless Force is set, in
// which case they are reset to pending for reprocessing.
func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id FROM raw_messages WHERE channel = $1 AND message_id = ANY($2)`,
		req.Channel, req.MessageIDs)
	if err != nil {
		return 0, fmt.Errorf("resolving raw ids: %w", err)
	}
	var rawIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		rawIDs = append(rawIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	count := 0
	for _, rawID := range rawIDs {
		var tag pgx.CommandTag
		if req.Force {
			tag, err = tx.Exec(ctx, `
				INSERT INTO extraction_jobs (raw_id, pipeline_version, status)
				VALUES ($1, $2, 'pending')
				ON CONFLICT (raw_id, pipeline_version, segment_index)
				DO UPDATE SET status = 'pending', updated_at = now()`,
				rawID, req.PipelineVersion)
		} else {
			tag, err = tx.Exec(ctx, `
				INSERT INTO extraction_jobs (raw_id, pipeline_version, status)
				VALUES ($1, $2, 'pending')
				ON CONFLICT (raw_id, pipeline_version, segment_index)
				DO UPDATE SET status = 'pending', updated_at = now()
				WHERE extraction_jobs.status <> 'ok'`,
				rawID, req.PipelineVersion)
		}
		if err != nil {
			return count, fmt.Errorf("enqueuing raw %s: %w", rawID, err)
		}
		if tag.RowsAffected() > 0 {
			count++
		}
	}

	return count, tx.Commit(ctx)
}

// Claim atomically selects up to limit oldest pending jobs for
// pipelineVersion, flips them to processing, stamps
// processing_started_at, increments the attempt counter, and tags them
// with ownerID. Row-level locking with SKIP LOCKED guarantees concurrent
// claimers never receive overlapping jobs.
func (s *Store) Claim(ctx context.Context, pipelineVersion, ownerID string, limit int) ([]*model.ExtractionJob, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, raw_id, pipeline_version, status, meta, error, llm_model,
		       owner_id, segment_index, parent_job_id, processing_started_at,
		       created_at, updated_at
		FROM extraction_jobs
		WHERE pipeline_version = $1 AND status = 'pending'
		ORDER BY created_at, id
		LIMIT $2
		FOR UPDATE SKIP LOCKED`,
		pipelineVersion, limit)
	if err != nil {
		return nil, fmt.Errorf("selecting claimable jobs: %w", err)
	}

	var claimed []*model.ExtractionJob
	var ids []uuid.UUID
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		claimed = append(claimed, j)
		id, err := uuid.Parse(j.ID)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("parsing job id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return nil, tx.Commit(ctx)
	}

	now := time.Now().UTC()
	for i, j := range claimed {
		meta := j.Meta
		meta.Attempt++
		meta.ProcessingStart = &now
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE extraction_jobs
			SET status = 'processing', processing_started_at = $1, updated_at = $1,
			    owner_id = $2, meta = $3
			WHERE id = $4`,
			now, ownerID, metaJSON, ids[i]); err != nil {
			return nil, fmt.Errorf("claiming job %s: %w", j.ID, err)
		}
		j.Status = model.JobProcessing
		j.Meta = meta
		j.ProcessingStartedAt = &now
		j.OwnerID = ownerID
	}

	return claimed, tx.Commit(ctx)
}

// RequeueStale flips any processing job whose updated_at is older than
// olderThan back to pending, stamping a requeue reason. Called
// periodically by the freshness/orphan supervisor loop. Passing 0 returns
// every currently processing job to pending.
func (s *Store) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `
		UPDATE extraction_jobs
		SET status = 'pending',
		    updated_at = now(),
		    meta = jsonb_set(meta, '{requeue_reason}', '"stale_processing"', true)
		WHERE status = 'processing' AND updated_at < $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("requeuing stale jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Terminate performs the final state transition for a claimed job.
// Non-supervisor callers may only transition out of processing.
func (s *Store) Terminate(ctx context.Context, jobID string, status model.JobStatus, pipelineErr json.RawMessage, assignmentID string) error {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return fmt.Errorf("parsing job id: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE extraction_jobs
		SET status = $1,
		    error = $2,
		    updated_at = now(),
		    meta = jsonb_set(meta, '{assignment_id}', to_jsonb($3::text), true)
		WHERE id = $4 AND status = 'processing'`,
		status, pipelineErr, assignmentID, id)
	if err != nil {
		return fmt.Errorf("terminating job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s not in processing state, refusing terminal transition", jobID)
	}
	return nil
}

// CreateSegmentJobs fans a compilation job out into one pending child job
// per segment, sharing the parent's raw_id and pipeline_version. Each
// child's excerpt is stored in its own meta.segment_text rather than a
// new raw_messages row, since segments are a view over the parent's text,
// not independently-collected posts. Safe to call more than once for the
// same parent: the (raw_id, pipeline_version, segment_index) uniqueness
// constraint makes a repeat call a no-op for already-created segments.
func (s *Store) CreateSegmentJobs(ctx context.Context, parentJobID, rawID, pipelineVersion string, segments []string) ([]*model.ExtractionJob, error) {
	parentID, err := uuid.Parse(parentJobID)
	if err != nil {
		return nil, fmt.Errorf("parsing parent job id: %w", err)
	}
	rid, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parsing raw id: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin segment fan-out tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var out []*model.ExtractionJob
	for i, text := range segments {
		meta := model.JobMeta{SegmentText: text}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return nil, err
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO extraction_jobs (raw_id, pipeline_version, status, meta, segment_index, parent_job_id)
			VALUES ($1, $2, 'pending', $3, $4, $5)
			ON CONFLICT (raw_id, pipeline_version, segment_index) DO UPDATE SET updated_at = extraction_jobs.updated_at
			RETURNING id, raw_id, pipeline_version, status, meta, error, llm_model,
			          owner_id, segment_index, parent_job_id, processing_started_at,
			          created_at, updated_at`,
			rid, pipelineVersion, metaJSON, i, parentID)
		j, err := scanJob(row)
		if err != nil {
			return nil, fmt.Errorf("creating segment job %d: %w", i, err)
		}
		out = append(out, j)
	}

	return out, tx.Commit(ctx)
}

// GetJob loads a single job by id, used by tests and operator tooling.
func (s *Store) GetJob(ctx context.Context, jobID string) (*model.ExtractionJob, error) {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, `
		SELECT id, raw_id, pipeline_version, status, meta, error, llm_model,
		       owner_id, segment_index, parent_job_id, processing_started_at,
		       created_at, updated_at
		FROM extraction_jobs WHERE id = $1`, id)
	return scanJob(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// parentSegmentIndex is the sentinel stored in extraction_jobs.segment_index
// for parent (non-segment) jobs. The column is NOT NULL so the
// (raw_id, pipeline_version, segment_index) unique constraint actually
// applies to parent rows; -1 is translated to a nil model.SegmentIndex on
// read, matching the pre-existing "nil means not a segment" contract.
const parentSegmentIndex = -1

func scanJob(row rowScanner) (*model.ExtractionJob, error) {
	var j model.ExtractionJob
	var metaJSON []byte
	var id, rawID uuid.UUID
	var parentJobID *uuid.UUID
	var segmentIndex int
	if err := row.Scan(&id, &rawID, &j.PipelineVersion, &j.Status, &metaJSON, &j.Error,
		&j.LLMModel, &j.OwnerID, &segmentIndex, &parentJobID, &j.ProcessingStartedAt,
		&j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.ID = id.String()
	j.RawID = rawID.String()
	if segmentIndex != parentSegmentIndex {
		idx := segmentIndex
		j.SegmentIndex = &idx
	}
	if parentJobID != nil {
		s := parentJobID.String()
		j.ParentJobID = &s
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &j.Meta); err != nil {
			return nil, fmt.Errorf("unmarshaling job meta: %w", err)
		}
	}
	return &j, nil
}
