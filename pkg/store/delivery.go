package store

import (
	"context"
	"fmt"

	"github.com/tutordex/aggregator/pkg/model"
)

// MatchingTutors returns tutor profiles whose subjects and levels
// intersect a's signals/canonical arrays and whose postal coordinates (if
// set) fall within maxDistanceKM of a's. Tutors without stored
// coordinates are treated as unbounded (always in range), matching the
// "external profile" contract where location is optional.
func (s *Store) MatchingTutors(ctx context.Context, a *model.Assignment, maxDistanceKM float64) ([]*model.TutorProfile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, subjects, levels, postal_lat, postal_lon, max_distance_km
		FROM tutor_profiles
		WHERE (subjects && $1::text[] OR subjects && $2::text[])
		  AND levels && $3::text[]
		  AND (
			postal_lat IS NULL OR postal_lon IS NULL OR $4 IS NULL OR $5 IS NULL
			OR (
				6371 * acos(LEAST(1.0, GREATEST(-1.0,
					cos(radians($4)) * cos(radians(postal_lat)) * cos(radians(postal_lon) - radians($5))
					+ sin(radians($4)) * sin(radians(postal_lat))
				))) <= COALESCE(max_distance_km, $6)
			)
		)`,
		a.SubjectsCanonical, a.SignalsSubjects, a.SignalsLevels, a.PostalLat, a.PostalLon, maxDistanceKM)
	if err != nil {
		return nil, fmt.Errorf("querying matching tutors: %w", err)
	}
	defer rows.Close()

	var out []*model.TutorProfile
	for rows.Next() {
		var t model.TutorProfile
		if err := rows.Scan(&t.ID, &t.Subjects, &t.Levels, &t.PostalLat, &t.PostalLon, &t.MaxDistanceKM); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// RecordDMDelivery inserts the (tutor_id, assignment_id) dedup record and
// reports whether this call actually inserted a new row (false means a DM
// was already sent for this pair and the caller should skip resending).
func (s *Store) RecordDMDelivery(ctx context.Context, tutorID, assignmentID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO dm_deliveries (tutor_id, assignment_id)
		VALUES ($1, $2)
		ON CONFLICT (tutor_id, assignment_id) DO NOTHING`,
		tutorID, assignmentID)
	if err != nil {
		return false, fmt.Errorf("recording dm delivery for tutor %s: %w", tutorID, err)
	}
	return tag.RowsAffected() > 0, nil
}
