package model

import "time"

// AssignmentStatus is the lifecycle status of a canonical assignment.
type AssignmentStatus string

const (
	AssignmentOpen   AssignmentStatus = "open"
	AssignmentClosed AssignmentStatus = "closed"
)

// FreshnessTier is the coarse recency bucket computed by C7.
type FreshnessTier string

const (
	TierGreen  FreshnessTier = "green"
	TierYellow FreshnessTier = "yellow"
	TierOrange FreshnessTier = "orange"
	TierRed    FreshnessTier = "red"
)

// TutorType is a tagged object describing a kind of tutor sought
// (e.g. full-time, part-time, ex-MOE), carried verbatim from extraction.
type TutorType struct {
	Tag   string `json:"tag"`
	Label string `json:"label,omitempty"`
}

// RateBreakdown captures structured per-duration or per-level rate spans
// when the source text expresses more than a single min/max pair.
type RateBreakdown struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// NearestMRT is the computed nearest transit station for a postal code.
type NearestMRT struct {
	Name      string  `json:"name,omitempty"`
	Line      string  `json:"line,omitempty"`
	DistanceM float64 `json:"distance_m,omitempty"`
}

// Assignment is the canonical, query-facing entity. Identity is
// (AgencyID, ExternalID).
type Assignment struct {
	ID             string `json:"id"`
	AgencyID       string `json:"agency_id"`
	ExternalID     string `json:"external_id"`
	AssignmentCode string `json:"assignment_code,omitempty"`
	MessageLink    string `json:"message_link,omitempty"`

	AcademicDisplayText  string          `json:"academic_display_text,omitempty"`
	LessonSchedule       []string        `json:"lesson_schedule,omitempty"`
	StartDate            *time.Time      `json:"start_date,omitempty"`
	TimeAvailabilityNote string          `json:"time_availability_note,omitempty"`
	TutorTypes           []TutorType     `json:"tutor_types,omitempty"`
	RateRawText          string          `json:"rate_raw_text,omitempty"`
	RateBreakdown        []RateBreakdown `json:"rate_breakdown,omitempty"`

	Address               []string    `json:"address,omitempty"`
	PostalCode            []string    `json:"postal_code,omitempty"`
	PostalCodeEstimated   []string    `json:"postal_code_estimated,omitempty"`
	PostalLat             *float64    `json:"postal_lat,omitempty"`
	PostalLon             *float64    `json:"postal_lon,omitempty"`
	PostalCoordsEstimated bool        `json:"postal_coords_estimated"`
	Region                string      `json:"region,omitempty"`
	NearestMRT            *NearestMRT `json:"nearest_mrt,omitempty"`

	RateMin *float64 `json:"rate_min,omitempty"`
	RateMax *float64 `json:"rate_max,omitempty"`

	SignalsSubjects              []string `json:"signals_subjects,omitempty"`
	SignalsLevels                []string `json:"signals_levels,omitempty"`
	SignalsSpecificStudentLevels []string `json:"signals_specific_student_levels,omitempty"`

	SubjectsCanonical       []string `json:"subjects_canonical,omitempty"`
	SubjectsGeneral         []string `json:"subjects_general,omitempty"`
	CanonicalizationVersion int      `json:"canonicalization_version"`

	CreatedAt      time.Time  `json:"created_at"`
	PublishedAt    time.Time  `json:"published_at"`
	SourceLastSeen time.Time  `json:"source_last_seen"`
	LastSeen       time.Time  `json:"last_seen"`

	Status        AssignmentStatus `json:"status"`
	FreshnessTier FreshnessTier    `json:"freshness_tier"`
	BumpCount     int              `json:"bump_count"`

	DuplicateGroupID         *string  `json:"duplicate_group_id,omitempty"`
	IsPrimaryInGroup         bool     `json:"is_primary_in_group"`
	DuplicateConfidenceScore *float64 `json:"duplicate_confidence_score,omitempty"`
}

// SortTimestamp is _sort_ts = coalesce(published_at, created_at, last_seen),
// used by the "newest" keyset pagination ordering in the listing surface.
func (a *Assignment) SortTimestamp() time.Time {
	if !a.PublishedAt.IsZero() {
		return a.PublishedAt
	}
	if !a.CreatedAt.IsZero() {
		return a.CreatedAt
	}
	return a.LastSeen
}

// FreshnessBasis is the timestamp used by C7 to compute FreshnessTier:
// source_last_seen, falling back to published_at then created_at.
func (a *Assignment) FreshnessBasis() time.Time {
	if !a.SourceLastSeen.IsZero() {
		return a.SourceLastSeen
	}
	if !a.PublishedAt.IsZero() {
		return a.PublishedAt
	}
	return a.CreatedAt
}
