package store

import (
	"context"
	"fmt"

	"github.com/tutordex/aggregator/pkg/model"
)

// IncrementClicks atomically bumps the click counter for externalID by
// GREATEST(0, delta) and returns the new total. Calling it with delta=0
// never decreases the stored value and simply returns the current count.
// Bumping the counter
// also touches the paired broadcast record's updated_at so the
// click-bucket editor loop notices the change.
func (s *Store) IncrementClicks(ctx context.Context, externalID string, delta int64) (int64, error) {
	if delta < 0 {
		delta = 0
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var count int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO clicks (external_id, count, updated_at)
		VALUES ($1, GREATEST(0, $2), now())
		ON CONFLICT (external_id) DO UPDATE
		SET count = clicks.count + GREATEST(0, $2), updated_at = now()
		RETURNING count`, externalID, delta).Scan(&count); err != nil {
		return 0, fmt.Errorf("incrementing clicks for %s: %w", externalID, err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE broadcast_messages SET updated_at = now() WHERE external_id = $1`, externalID); err != nil {
		return 0, fmt.Errorf("touching broadcast record for %s: %w", externalID, err)
	}

	return count, tx.Commit(ctx)
}

// RecordBroadcast upserts the last broadcast-delivered content/chat/message
// tuple for externalID.
func (s *Store) RecordBroadcast(ctx context.Context, msg *model.BroadcastMessage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO broadcast_messages (external_id, channel, transport_message_id, content, last_click_bucket, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (external_id) DO UPDATE SET
			channel = EXCLUDED.channel,
			transport_message_id = EXCLUDED.transport_message_id,
			content = EXCLUDED.content,
			last_click_bucket = EXCLUDED.last_click_bucket,
			updated_at = now()`,
		msg.ExternalID, msg.Channel, msg.TransportMsgID, msg.Content, msg.LastClickBucket)
	if err != nil {
		return fmt.Errorf("recording broadcast for %s: %w", msg.ExternalID, err)
	}
	return nil
}

// GetBroadcast loads the current broadcast record for externalID, if any.
func (s *Store) GetBroadcast(ctx context.Context, externalID string) (*model.BroadcastMessage, error) {
	var m model.BroadcastMessage
	err := s.pool.QueryRow(ctx, `
		SELECT external_id, channel, transport_message_id, content, last_click_bucket, updated_at
		FROM broadcast_messages WHERE external_id = $1`, externalID).
		Scan(&m.ExternalID, &m.Channel, &m.TransportMsgID, &m.Content, &m.LastClickBucket, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetClicks returns the current click count for externalID.
func (s *Store) GetClicks(ctx context.Context, externalID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT count FROM clicks WHERE external_id = $1`, externalID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CalculateTutorRatingThreshold returns the percentile-based adaptive
// rating threshold for a tutor, derived from their historical rating
// distribution. Tutors with no rating history fall back to 0, which
// admits all matches.
func (s *Store) CalculateTutorRatingThreshold(ctx context.Context, tutorID string, percentile float64) (float64, error) {
	var threshold *float64
	err := s.pool.QueryRow(ctx, `
		SELECT percentile_cont($1) WITHIN GROUP (ORDER BY score)
		FROM ratings WHERE tutor_id = $2`, percentile, tutorID).Scan(&threshold)
	if err != nil {
		return 0, fmt.Errorf("calculating rating threshold for %s: %w", tutorID, err)
	}
	if threshold == nil {
		return 0, nil
	}
	return *threshold, nil
}

// GetTutorAvgRate returns the tutor's average accepted rate across rated
// assignments, used to bias delivery toward compatible listings.
func (s *Store) GetTutorAvgRate(ctx context.Context, tutorID string) (float64, error) {
	var avg *float64
	err := s.pool.QueryRow(ctx, `
		SELECT avg((a.rate_min + a.rate_max) / 2.0)
		FROM ratings r JOIN assignments a ON a.id = r.assignment_id
		WHERE r.tutor_id = $1 AND a.rate_min IS NOT NULL AND a.rate_max IS NOT NULL`, tutorID).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("calculating average rate for %s: %w", tutorID, err)
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}
