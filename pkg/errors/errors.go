// Package errors defines the structured error taxonomy shared by the
// extraction pipeline. Every terminal or retryable condition produced by
// C2-C8 is represented as one of these sentinel taxonomy codes so that it
// can be serialized into ExtractionJob.error and compared without string
// matching.
package errors

import "fmt"

// Taxonomy is a stable error code written to error_json.error.
type Taxonomy string

const (
	RawMissing             Taxonomy = "raw_missing"
	NonAssignment          Taxonomy = "non_assignment"
	CompilationSplit       Taxonomy = "compilation_split"
	LLMTransient           Taxonomy = "llm_transient"
	CircuitOpen            Taxonomy = "circuit_open"
	Timeout                Taxonomy = "timeout"
	LLMPermanent           Taxonomy = "llm_permanent"
	LLMSchemaInvalid       Taxonomy = "llm_schema_invalid"
	ValidationFailed       Taxonomy = "validation_failed"
	EnrichmentFailed       Taxonomy = "enrichment_failed"
	UpsertConflict         Taxonomy = "upsert_conflict"
	DuplicateDetectionFail Taxonomy = "duplicate_detection_failed"
	DeliveryFailed         Taxonomy = "delivery_failed"
)

// Retryable reports whether a taxonomy code should return the job to
// pending with backoff rather than marking it permanently failed.
func (t Taxonomy) Retryable() bool {
	switch t {
	case LLMTransient, CircuitOpen, Timeout:
		return true
	default:
		return false
	}
}

// Terminal reports whether the code is a skip outcome rather than a failure.
func (t Taxonomy) Terminal() bool {
	switch t {
	case RawMissing, NonAssignment, CompilationSplit:
		return true
	default:
		return false
	}
}

// PipelineError is the structured value persisted at ExtractionJob.error.
// Reasons carries the validation_failed reason codes; it is empty for
// taxonomies that don't decompose into sub-reasons.
type PipelineError struct {
	Taxonomy Taxonomy          `json:"error"`
	Reasons  []string          `json:"errors,omitempty"`
	Stage    string            `json:"stage,omitempty"`
	Detail   string            `json:"detail,omitempty"`
	Segments map[string]string `json:"segment_errors,omitempty"`
}

func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Taxonomy, e.Detail)
	}
	return string(e.Taxonomy)
}

// New builds a PipelineError for the given taxonomy, stage and optional
// reason codes (used by validation_failed).
func New(stage string, t Taxonomy, reasons ...string) *PipelineError {
	return &PipelineError{Taxonomy: t, Stage: stage, Reasons: reasons}
}

// Wrap attaches a taxonomy and stage to an arbitrary underlying error,
// keeping its message as Detail for operator triage.
func Wrap(stage string, t Taxonomy, err error) *PipelineError {
	if err == nil {
		return nil
	}
	return &PipelineError{Taxonomy: t, Stage: stage, Detail: err.Error()}
}
