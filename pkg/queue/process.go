package queue

import (
	"context"
	"strings"
	"time"

	"github.com/tutordex/aggregator/pkg/config"
	"github.com/tutordex/aggregator/pkg/enrich"
	aggerrors "github.com/tutordex/aggregator/pkg/errors"
	"github.com/tutordex/aggregator/pkg/extract"
	"github.com/tutordex/aggregator/pkg/metrics"
	"github.com/tutordex/aggregator/pkg/model"
	"github.com/tutordex/aggregator/pkg/observe"
	"github.com/tutordex/aggregator/pkg/redact"
)

// spamMarkers are literal substrings that mark a post as something other
// than a tutoring assignment (promo/referral spam, not the content this
// pipeline is built to canonicalize).
var spamMarkers = []string{
	"click here to claim",
	"forex signal",
	"crypto giveaway",
	"join our telegram group for free",
}

// prefilterSkip reports whether text is plainly not an assignment: empty,
// an image-only caption, or a known spam marker. This runs before the LLM
// call to avoid spending extraction budget on posts with no chance of
// producing a usable assignment.
func prefilterSkip(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	if len(trimmed) < 12 {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, marker := range spamMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Pipeline implements Processor, running the ten-step process_one
// sequence described for the extraction worker: load, pre-filter,
// compilation check, extract, validate, enrich, upsert, duplicate pass,
// side-effects, terminate.
type Pipeline struct {
	store                Store
	extractor            Extractor
	compilationHeuristic extract.CompilationHeuristic
	duplicates           DuplicateDetector
	fanout               Fanout
	emitter              *observe.Emitter
	metrics              *metrics.Registry
	cfg                  config.QueueConfig
}

// NewPipeline builds a Pipeline bound to its collaborators. metrics may be
// nil (no metrics emitted); emitter may be nil (no event emission).
func NewPipeline(store Store, extractor Extractor, heuristic extract.CompilationHeuristic, duplicates DuplicateDetector, fanout Fanout, emitter *observe.Emitter, reg *metrics.Registry, cfg config.QueueConfig) *Pipeline {
	return &Pipeline{
		store:                store,
		extractor:            extractor,
		compilationHeuristic: heuristic,
		duplicates:           duplicates,
		fanout:               fanout,
		emitter:              emitter,
		metrics:              reg,
		cfg:                  cfg,
	}
}

// Process runs process_one for job and returns the outcome the worker
// should terminate the job with (or Retry, which leaves the row in
// processing for the stale-requeue pass to return to pending).
func (p *Pipeline) Process(ctx context.Context, job *model.ExtractionJob) aggerrors.Outcome {
	// 1. Load.
	raw, err := p.stage("load", job.ID, func() (*model.RawMessage, error) {
		return p.store.GetRawMessage(ctx, job.RawID)
	})
	if err != nil || raw == nil || raw.Deleted() {
		return aggerrors.Skip(aggerrors.RawMissing, "load")
	}

	text := raw.Text
	if job.IsSegment() {
		text = job.Meta.SegmentText
	}

	// 2. Pre-filter.
	if prefilterSkip(text) {
		p.emit("prefilter", job.ID, "skipped", 0, "")
		return aggerrors.Skip(aggerrors.NonAssignment, "prefilter")
	}

	// 3/4. Extract, then reconcile the compilation verdict. The LLM's own
	// is_compilation/segments fields (or the deterministic fallback) are
	// checked before validation, since a compilation job never produces a
	// single canonical assignment of its own.
	start := time.Now()
	res := p.extractor.Extract(ctx, text, map[string]string{"channel": raw.Channel})
	p.observeStage("extract", job.ID, res.Err, time.Since(start))
	if res.Err != nil {
		if !res.Err.Taxonomy.Retryable() {
			p.sampleFailure(ctx, job.ID, "extract", text)
		}
		return extractOutcome(res.Err)
	}
	extraction := res.Extraction

	if !job.IsSegment() {
		isCompilation, segments := extract.Reconcile(p.compilationHeuristic, extraction, text)
		if isCompilation {
			if _, err := p.store.CreateSegmentJobs(ctx, job.ID, job.RawID, job.PipelineVersion, segments); err != nil {
				p.sampleFailure(ctx, job.ID, "compilation_split", text)
				return aggerrors.FailWith(aggerrors.CompilationSplit, "compilation_split", err)
			}
			p.emit("compilation_split", job.ID, "skipped", 0, "")
			return aggerrors.Skip(aggerrors.CompilationSplit, "compilation_split")
		}
	}

	// 5. Validate.
	reasons := validateExtraction(extraction)
	if len(reasons) > 0 {
		p.emit("validate", job.ID, "failed", 0, strings.Join(reasons, ";"))
		p.sampleFailure(ctx, job.ID, "validate", text)
		return aggerrors.Fail(aggerrors.ValidationFailed, "validate", reasons...)
	}

	// 6. Enrich.
	a := assignmentFromExtraction(extraction, raw)
	if err := p.stageErr("enrich", job.ID, func() error { return enrich.Apply(a, text) }); err != nil {
		p.sampleFailure(ctx, job.ID, "enrich", text)
		return aggerrors.FailWith(aggerrors.EnrichmentFailed, "enrich", err)
	}

	// 7. Upsert.
	upserted, err := p.upsert(ctx, job.ID, a)
	if err != nil {
		p.sampleFailure(ctx, job.ID, "upsert", text)
		return aggerrors.FailWith(aggerrors.UpsertConflict, "upsert", err)
	}

	// 8. Duplicate pass — non-blocking.
	if p.duplicates != nil {
		start := time.Now()
		_, dupErr := p.duplicates.Detect(ctx, upserted)
		outcome := "ok"
		if dupErr != nil {
			outcome = "failed"
		}
		p.emit("duplicate", job.ID, outcome, time.Since(start).Milliseconds(), errString(dupErr))
	}

	// 9. Side-effects — non-blocking.
	if p.fanout != nil {
		start := time.Now()
		_, fanoutErr := p.fanout.Deliver(ctx, upserted)
		outcome := "ok"
		if fanoutErr != nil {
			outcome = "failed"
		}
		p.emit("delivery", job.ID, outcome, time.Since(start).Milliseconds(), errString(fanoutErr))
	}

	// 10. Terminate.
	p.emit("terminate", job.ID, "ok", 0, "")
	return aggerrors.Ok(upserted.ID)
}

func (p *Pipeline) upsert(ctx context.Context, jobID string, a *model.Assignment) (*model.Assignment, error) {
	start := time.Now()
	upserted, err := p.store.UpsertAssignment(ctx, a)
	p.observeStage("upsert", jobID, wrapOrNil(err), time.Since(start))
	return upserted, err
}

// extractOutcome maps a C3 taxonomy to the worker's Outcome: retryable
// taxonomies return to pending with backoff rather than failing the job.
func extractOutcome(pe *aggerrors.PipelineError) aggerrors.Outcome {
	if pe.Taxonomy.Retryable() {
		return aggerrors.Retry(pe.Taxonomy, "extract", retryBackoff(pe.Taxonomy))
	}
	return aggerrors.Fail(pe.Taxonomy, "extract")
}

func retryBackoff(t aggerrors.Taxonomy) time.Duration {
	if t == aggerrors.CircuitOpen {
		return 30 * time.Second
	}
	return 5 * time.Second
}

func assignmentFromExtraction(e *extract.CanonicalExtraction, raw *model.RawMessage) *model.Assignment {
	tutorTypes := make([]model.TutorType, 0, len(e.TutorTypeTags))
	for _, tag := range e.TutorTypeTags {
		tutorTypes = append(tutorTypes, model.TutorType{Tag: tag})
	}

	return &model.Assignment{
		AgencyID:             raw.Channel,
		ExternalID:           e.ExternalID,
		AssignmentCode:       e.AssignmentCode,
		AcademicDisplayText:  e.AcademicDisplayText,
		LessonSchedule:       e.LessonSchedule,
		TimeAvailabilityNote: e.TimeAvailabilityNote,
		TutorTypes:           tutorTypes,
		RateRawText:          e.RateRawText,
		RateMin:              e.RateMin,
		RateMax:              e.RateMax,
		Address:              e.Address,
		PostalCode:           e.PostalCode,
		PostalCodeEstimated:  e.PostalCodeEstimated,
		PublishedAt:          raw.PublishedAt,
		SourceLastSeen:       raw.SourceLastSeen,
		Status:               model.AssignmentOpen,
	}
}

// stage runs fn, recording an event/metric pair keyed on whether it
// returned an error, and returns fn's value unchanged.
func (p *Pipeline) stage(name, jobID string, fn func() (*model.RawMessage, error)) (*model.RawMessage, error) {
	start := time.Now()
	v, err := fn()
	p.observeStage(name, jobID, wrapOrNil(err), time.Since(start))
	return v, err
}

func (p *Pipeline) stageErr(name, jobID string, fn func() error) error {
	start := time.Now()
	err := fn()
	p.observeStage(name, jobID, wrapOrNil(err), time.Since(start))
	return err
}

func wrapOrNil(err error) *aggerrors.PipelineError {
	if err == nil {
		return nil
	}
	return aggerrors.Wrap("", "", err)
}

func (p *Pipeline) observeStage(stage, jobID string, pe *aggerrors.PipelineError, d time.Duration) {
	outcome := "ok"
	detail := ""
	if pe != nil {
		outcome = "failed"
		detail = pe.Error()
	}
	p.emit(stage, jobID, outcome, d.Milliseconds(), detail)
}

func (p *Pipeline) emit(stage, jobID, outcome string, durationMS int64, detail string) {
	if p.metrics != nil {
		p.metrics.ObserveStage(stage, outcome, float64(durationMS)/1000)
	}
	if p.emitter != nil {
		p.emitter.Emit(observe.Event{
			Stage:      stage,
			JobID:      jobID,
			Outcome:    outcome,
			DurationMS: durationMS,
			Detail:     detail,
		})
	}
}

// sampleFailure persists a redacted preview of the post that failed stage
// for operator triage. Storage errors are reported as a failed
// triage_sample event, not propagated: a missed triage sample must never fail the job.
func (p *Pipeline) sampleFailure(ctx context.Context, jobID, stage, rawText string) {
	preview := redact.Preview(rawText, 500)
	if err := p.store.RecordTriageSample(ctx, jobID, stage, "failed", preview); err != nil {
		p.emit("triage_sample", jobID, "failed", 0, err.Error())
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
