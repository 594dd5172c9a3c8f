package errors

import "time"

// OutcomeKind discriminates the Outcome sum type.
type OutcomeKind int

const (
	OutcomeOk OutcomeKind = iota
	OutcomeRetry
	OutcomeSkip
	OutcomeFail
)

// Outcome models process_one's result as the polymorphic sum described in
// the design notes: Ok(assignment_id) / Retry(reason, backoff) /
// Skip(reason) / Fail(taxonomy, reasons[]). Exactly one of the payload
// fields is meaningful for a given Kind; callers switch on Kind rather
// than probing fields.
type Outcome struct {
	Kind         OutcomeKind
	AssignmentID string
	Backoff      time.Duration
	Err          *PipelineError
}

// Ok builds the success outcome carrying the upserted assignment id.
func Ok(assignmentID string) Outcome {
	return Outcome{Kind: OutcomeOk, AssignmentID: assignmentID}
}

// Retry builds a requeue-with-backoff outcome for a retryable taxonomy.
func Retry(t Taxonomy, stage string, backoff time.Duration) Outcome {
	return Outcome{Kind: OutcomeRetry, Backoff: backoff, Err: New(stage, t)}
}

// Skip builds a terminal, non-failure outcome (raw_missing, non_assignment).
func Skip(t Taxonomy, stage string) Outcome {
	return Outcome{Kind: OutcomeSkip, Err: New(stage, t)}
}

// Fail builds a terminal failure outcome, optionally carrying validation
// reason codes or per-segment error detail for compilation jobs.
func Fail(t Taxonomy, stage string, reasons ...string) Outcome {
	return Outcome{Kind: OutcomeFail, Err: New(stage, t, reasons...)}
}

// FailWith wraps an arbitrary error under a taxonomy as a Fail outcome.
func FailWith(t Taxonomy, stage string, err error) Outcome {
	return Outcome{Kind: OutcomeFail, Err: Wrap(stage, t, err)}
}
