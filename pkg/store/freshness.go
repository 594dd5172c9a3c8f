package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RecomputeFreshnessTiers (C7) recomputes freshness_tier for up to
// batchSize open assignments ordered by id after afterID (keyset
// pagination, so repeated calls walk the full open set instead of
// re-examining the same arbitrary rows), from the age of
// source_last_seen (falling back to published_at, then created_at)
// against the configured thresholds (in whole seconds). Returns the
// number of rows examined in this batch and the last id seen, so callers
// can pass it back as the next afterID to continue the walk; examined <
// batchSize means the open set has been fully drained for this tick.
func (s *Store) RecomputeFreshnessTiers(ctx context.Context, afterID string, greenMaxSecs, yellowMaxSecs, orangeMaxSecs float64, batchSize int) (examined int, lastID string, err error) {
	var after any
	if afterID != "" {
		id, perr := uuid.Parse(afterID)
		if perr != nil {
			return 0, "", fmt.Errorf("parsing cursor id: %w", perr)
		}
		after = id
	}

	rows, err := s.pool.Query(ctx, `
		WITH page AS (
			SELECT id, COALESCE(source_last_seen, published_at, created_at) AS ts
			FROM assignments
			WHERE status = 'open' AND ($1::uuid IS NULL OR id > $1)
			ORDER BY id
			LIMIT $5
		), tiered AS (
			SELECT id,
				CASE
					WHEN now() - ts <= make_interval(secs => $2) THEN 'green'
					WHEN now() - ts <= make_interval(secs => $3) THEN 'yellow'
					WHEN now() - ts <= make_interval(secs => $4) THEN 'orange'
					ELSE 'red'
				END AS tier
			FROM page
		)
		UPDATE assignments a
		SET freshness_tier = tiered.tier
		FROM tiered
		WHERE a.id = tiered.id
		RETURNING a.id`,
		after, greenMaxSecs, yellowMaxSecs, orangeMaxSecs, batchSize)
	if err != nil {
		return 0, "", fmt.Errorf("recomputing freshness tiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return 0, "", err
		}
		examined++
		idStr := id.String()
		if idStr > lastID {
			lastID = idStr
		}
	}
	if err := rows.Err(); err != nil {
		return 0, "", err
	}
	if afterID != "" && lastID < afterID {
		lastID = afterID
	}
	return examined, lastID, nil
}
