// Package extract implements the LLM extractor and its circuit breaker
// (C3): a single-pass prompted extraction from raw post text into the
// canonical JSON shape, guarded by retry/backoff and a sliding-window
// breaker per upstream model.
package extract

import (
	"context"
	"encoding/json"

	aggerrors "github.com/tutordex/aggregator/pkg/errors"
)

// CanonicalExtraction is the typed, validated record the LLM is asked to
// produce. It intentionally mirrors a subset of model.Assignment: the
// boundary converts the LLM's dynamic JSON into this tagged record
// immediately, keeping the raw JSON only for debugging (see Raw).
type CanonicalExtraction struct {
	ExternalID           string   `json:"external_id"`
	AssignmentCode       string   `json:"assignment_code,omitempty"`
	AcademicDisplayText  string   `json:"academic_display_text,omitempty"`
	LessonSchedule       []string `json:"lesson_schedule,omitempty"`
	TimeAvailabilityNote string   `json:"time_availability_note,omitempty"`
	TutorTypeTags        []string `json:"tutor_type_tags,omitempty"`
	RateRawText          string   `json:"rate_raw_text,omitempty"`
	RateMin              *float64 `json:"rate_min,omitempty"`
	RateMax              *float64 `json:"rate_max,omitempty"`
	Address              []string `json:"address,omitempty"`
	PostalCode           []string `json:"postal_code,omitempty"`
	PostalCodeEstimated  []string `json:"postal_code_estimated,omitempty"`
	IsCompilation        bool     `json:"is_compilation"`
	Segments             []string `json:"segments,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Extractor is the C3 contract: a single call turning raw post text plus
// agency hints into a canonical extraction or a taxonomy-tagged failure.
// Implementations must be cancellable via ctx.
type Extractor interface {
	Extract(ctx context.Context, rawText string, agencyHints map[string]string) (*CanonicalExtraction, string, error)
}

// Result is returned by a breaker-wrapped extractor call, pairing the
// extraction with the resolved taxonomy on failure so callers can branch
// without a type switch on err.
type Result struct {
	Extraction *CanonicalExtraction
	ModelID    string
	Err        *aggerrors.PipelineError
}

// UnavailableExtractor is an Extractor that always fails permanently. It
// lets cmd/aggregator start up and serve the listing API even when no LLM
// credential is configured, instead of wiring a nil backend that would
// panic the first time a job reaches stage 4.
type UnavailableExtractor struct{}

// Extract implements Extractor by always returning ErrPermanent.
func (UnavailableExtractor) Extract(_ context.Context, _ string, _ map[string]string) (*CanonicalExtraction, string, error) {
	return nil, "", ErrPermanent
}
