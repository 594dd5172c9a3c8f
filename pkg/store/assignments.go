package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tutordex/aggregator/pkg/model"
)

// UpsertAssignment inserts or merges an assignment row under the
// (agency_id, external_id) conflict key. Identity/provenance fields are
// set-once (COALESCE keeps the existing value); display/location/numeric
// fields overwrite when the incoming value is non-empty; arrays are
// replaced wholesale, never unioned. bump_count increments only when the
// incoming published_at advances past the stored value; first-seen
// (created_at) is always preserved, since the update never sets it.
func (s *Store) UpsertAssignment(ctx context.Context, a *model.Assignment) (*model.Assignment, error) {
	nearestMRT, err := json.Marshal(a.NearestMRT)
	if err != nil {
		return nil, err
	}
	tutorTypes, err := json.Marshal(a.TutorTypes)
	if err != nil {
		return nil, err
	}
	rateBreakdown, err := json.Marshal(a.RateBreakdown)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO assignments (
			agency_id, external_id, assignment_code, message_link,
			academic_display_text, lesson_schedule, start_date, time_availability_note,
			tutor_types, rate_raw_text, rate_breakdown,
			address, postal_code, postal_code_estimated, postal_lat, postal_lon,
			postal_coords_estimated, region, nearest_mrt,
			rate_min, rate_max,
			signals_subjects, signals_levels, signals_specific_student_levels,
			subjects_canonical, subjects_general, canonicalization_version,
			published_at, source_last_seen, last_seen, bump_count
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19,
			$20, $21,
			$22, $23, $24,
			$25, $26, $27,
			$28, $29, $29, 0
		)
		ON CONFLICT (agency_id, external_id) DO UPDATE SET
			assignment_code = COALESCE(assignments.assignment_code, EXCLUDED.assignment_code),
			message_link = COALESCE(NULLIF(EXCLUDED.message_link, ''), assignments.message_link),
			academic_display_text = COALESCE(NULLIF(EXCLUDED.academic_display_text, ''), assignments.academic_display_text),
			lesson_schedule = EXCLUDED.lesson_schedule,
			start_date = COALESCE(EXCLUDED.start_date, assignments.start_date),
			time_availability_note = COALESCE(NULLIF(EXCLUDED.time_availability_note, ''), assignments.time_availability_note),
			tutor_types = EXCLUDED.tutor_types,
			rate_raw_text = COALESCE(NULLIF(EXCLUDED.rate_raw_text, ''), assignments.rate_raw_text),
			rate_breakdown = EXCLUDED.rate_breakdown,
			address = EXCLUDED.address,
			postal_code = EXCLUDED.postal_code,
			postal_code_estimated = EXCLUDED.postal_code_estimated,
			postal_lat = COALESCE(EXCLUDED.postal_lat, assignments.postal_lat),
			postal_lon = COALESCE(EXCLUDED.postal_lon, assignments.postal_lon),
			postal_coords_estimated = EXCLUDED.postal_coords_estimated,
			region = COALESCE(NULLIF(EXCLUDED.region, ''), assignments.region),
			nearest_mrt = COALESCE(EXCLUDED.nearest_mrt, assignments.nearest_mrt),
			rate_min = COALESCE(EXCLUDED.rate_min, assignments.rate_min),
			rate_max = COALESCE(EXCLUDED.rate_max, assignments.rate_max),
			signals_subjects = EXCLUDED.signals_subjects,
			signals_levels = EXCLUDED.signals_levels,
			signals_specific_student_levels = EXCLUDED.signals_specific_student_levels,
			subjects_canonical = EXCLUDED.subjects_canonical,
			subjects_general = EXCLUDED.subjects_general,
			canonicalization_version = EXCLUDED.canonicalization_version,
			source_last_seen = EXCLUDED.source_last_seen,
			last_seen = now(),
			bump_count = assignments.bump_count +
				CASE WHEN EXCLUDED.published_at > assignments.published_at THEN 1 ELSE 0 END
		RETURNING id, created_at, status, freshness_tier, bump_count,
		          duplicate_group_id, is_primary_in_group, duplicate_confidence_score`,
		a.AgencyID, a.ExternalID, nullIfEmpty(a.AssignmentCode), nullIfEmpty(a.MessageLink),
		nullIfEmpty(a.AcademicDisplayText), a.LessonSchedule, a.StartDate, nullIfEmpty(a.TimeAvailabilityNote),
		tutorTypes, nullIfEmpty(a.RateRawText), rateBreakdown,
		a.Address, a.PostalCode, a.PostalCodeEstimated, a.PostalLat, a.PostalLon,
		a.PostalCoordsEstimated, nullIfEmpty(a.Region), nullJSONIfEmpty(nearestMRT, a.NearestMRT == nil),
		a.RateMin, a.RateMax,
		a.SignalsSubjects, a.SignalsLevels, a.SignalsSpecificStudentLevels,
		a.SubjectsCanonical, a.SubjectsGeneral, a.CanonicalizationVersion,
		a.PublishedAt, a.SourceLastSeen)

	result := *a
	var groupID *uuid.UUID
	var id uuid.UUID
	if err := row.Scan(&id, &result.CreatedAt, &result.Status, &result.FreshnessTier,
		&result.BumpCount, &groupID, &result.IsPrimaryInGroup, &result.DuplicateConfidenceScore); err != nil {
		return nil, fmt.Errorf("upserting assignment %s/%s: %w", a.AgencyID, a.ExternalID, err)
	}
	result.ID = id.String()
	if groupID != nil {
		s := groupID.String()
		result.DuplicateGroupID = &s
	}
	return &result, nil
}

// SetStatus flips an assignment's lifecycle status (used when closing the
// primary of a duplicate group, or by operator tooling).
func (s *Store) SetStatus(ctx context.Context, assignmentID string, status model.AssignmentStatus) error {
	id, err := uuid.Parse(assignmentID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `UPDATE assignments SET status = $1, last_seen = now() WHERE id = $2`, status, id)
	return err
}

// GetAssignment loads a single assignment by id.
func (s *Store) GetAssignment(ctx context.Context, assignmentID string) (*model.Assignment, error) {
	id, err := uuid.Parse(assignmentID)
	if err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, assignmentSelectColumns+` FROM assignments WHERE id = $1`, id)
	return scanAssignment(row)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullJSONIfEmpty(b []byte, empty bool) any {
	if empty {
		return nil
	}
	return b
}

const assignmentSelectColumns = `
	SELECT id, agency_id, external_id, assignment_code, message_link,
	       academic_display_text, lesson_schedule, start_date, time_availability_note,
	       tutor_types, rate_raw_text, rate_breakdown,
	       address, postal_code, postal_code_estimated, postal_lat, postal_lon,
	       postal_coords_estimated, region, nearest_mrt,
	       rate_min, rate_max,
	       signals_subjects, signals_levels, signals_specific_student_levels,
	       subjects_canonical, subjects_general, canonicalization_version,
	       created_at, published_at, source_last_seen, last_seen,
	       status, freshness_tier, bump_count,
	       duplicate_group_id, is_primary_in_group, duplicate_confidence_score`

func scanAssignment(row rowScanner) (*model.Assignment, error) {
	var a model.Assignment
	var id uuid.UUID
	var tutorTypesJSON, rateBreakdownJSON, nearestMRTJSON []byte
	var groupID *uuid.UUID
	var startDate *time.Time

	if err := row.Scan(&id, &a.AgencyID, &a.ExternalID, &a.AssignmentCode, &a.MessageLink,
		&a.AcademicDisplayText, &a.LessonSchedule, &startDate, &a.TimeAvailabilityNote,
		&tutorTypesJSON, &a.RateRawText, &rateBreakdownJSON,
		&a.Address, &a.PostalCode, &a.PostalCodeEstimated, &a.PostalLat, &a.PostalLon,
		&a.PostalCoordsEstimated, &a.Region, &nearestMRTJSON,
		&a.RateMin, &a.RateMax,
		&a.SignalsSubjects, &a.SignalsLevels, &a.SignalsSpecificStudentLevels,
		&a.SubjectsCanonical, &a.SubjectsGeneral, &a.CanonicalizationVersion,
		&a.CreatedAt, &a.PublishedAt, &a.SourceLastSeen, &a.LastSeen,
		&a.Status, &a.FreshnessTier, &a.BumpCount,
		&groupID, &a.IsPrimaryInGroup, &a.DuplicateConfidenceScore); err != nil {
		return nil, err
	}

	a.ID = id.String()
	a.StartDate = startDate
	if groupID != nil {
		s := groupID.String()
		a.DuplicateGroupID = &s
	}
	if len(tutorTypesJSON) > 0 {
		_ = json.Unmarshal(tutorTypesJSON, &a.TutorTypes)
	}
	if len(rateBreakdownJSON) > 0 {
		_ = json.Unmarshal(rateBreakdownJSON, &a.RateBreakdown)
	}
	if len(nearestMRTJSON) > 0 {
		_ = json.Unmarshal(nearestMRTJSON, &a.NearestMRT)
	}
	return &a, nil
}
