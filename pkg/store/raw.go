package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tutordex/aggregator/pkg/model"
)

// GetRawMessage loads a raw message by id. Soft-deleted rows are still
// returned (with DeletedAt set) so callers can distinguish "missing" from
// "deleted" per the load stage's raw_missing taxonomy.
func (s *Store) GetRawMessage(ctx context.Context, rawID string) (*model.RawMessage, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parsing raw id: %w", err)
	}

	var r model.RawMessage
	var rid uuid.UUID
	err = s.pool.QueryRow(ctx, `
		SELECT id, channel, message_id, text, meta, published_at, source_last_seen, created_at, deleted_at
		FROM raw_messages WHERE id = $1`, id).
		Scan(&rid, &r.Channel, &r.MessageID, &r.Text, &r.Meta, &r.PublishedAt, &r.SourceLastSeen, &r.CreatedAt, &r.DeletedAt)
	if err != nil {
		return nil, err
	}
	r.ID = rid.String()
	return &r, nil
}

// RecordTriageSample persists a redacted failure sample for operator
// inspection (C10). jobID must reference an existing extraction_jobs row.
func (s *Store) RecordTriageSample(ctx context.Context, jobID, stage, outcome, redactedText string) error {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return fmt.Errorf("parsing job id: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO triage_samples (job_id, stage, outcome, redacted_text)
		VALUES ($1, $2, $3, $4)`,
		id, stage, outcome, redactedText)
	if err != nil {
		return fmt.Errorf("recording triage sample for job %s: %w", jobID, err)
	}
	return nil
}
