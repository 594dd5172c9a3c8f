// Package observe implements C10's structured event emission: every
// pipeline stage boundary emits one Event carrying stage, job/assignment
// identity, duration, and outcome. A structured-logging sink plus an
// optional in-memory subscriber channel for tests, with no network
// transport.
package observe

import (
	"log/slog"
	"sync"
	"time"
)

// Event is one stage-boundary observation.
type Event struct {
	Stage        string        `json:"stage"`
	JobID        string        `json:"job_id,omitempty"`
	AssignmentID string        `json:"assignment_id,omitempty"`
	Outcome      string        `json:"outcome"`
	DurationMS   int64         `json:"duration_ms"`
	Detail       string        `json:"detail,omitempty"`
	At           time.Time     `json:"at"`
}

// Sink receives every emitted Event, in addition to the structured log
// line Emit always writes. Tests substitute a channel-backed Sink to
// assert on stage transitions without scraping log output.
type Sink interface {
	Observe(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Observe implements Sink.
func (f SinkFunc) Observe(e Event) { f(e) }

// Recorder is a thread-safe in-memory Sink used by tests to collect
// emitted events for assertion.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Observe implements Sink.
func (r *Recorder) Observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a snapshot of every event recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Emitter logs every Event via slog and forwards it to an optional Sink.
type Emitter struct {
	sink Sink
}

// NewEmitter builds an Emitter. sink may be nil (log-only).
func NewEmitter(sink Sink) *Emitter {
	return &Emitter{sink: sink}
}

// Emit logs e at info level (warn when Outcome indicates failure) and
// forwards it to the configured sink, if any.
func (e *Emitter) Emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	attrs := []any{
		"stage", ev.Stage,
		"outcome", ev.Outcome,
		"duration_ms", ev.DurationMS,
	}
	if ev.JobID != "" {
		attrs = append(attrs, "job_id", ev.JobID)
	}
	if ev.AssignmentID != "" {
		attrs = append(attrs, "assignment_id", ev.AssignmentID)
	}
	if ev.Detail != "" {
		attrs = append(attrs, "detail", ev.Detail)
	}

	if isFailureOutcome(ev.Outcome) {
		slog.Warn("pipeline stage", attrs...)
	} else {
		slog.Info("pipeline stage", attrs...)
	}

	if e.sink != nil {
		e.sink.Observe(ev)
	}
}

func isFailureOutcome(outcome string) bool {
	switch outcome {
	case "failed", "retry", "skipped":
		return true
	default:
		return false
	}
}

// Stage times fn and emits a single Event for it, tagging Outcome "ok" on
// success or "failed" when fn returns an error. Callers needing a
// finer-grained outcome (skip/retry) should call Emit directly instead.
func (e *Emitter) Stage(stage, jobID string, fn func() error) error {
	start := time.Now()
	err := fn()
	outcome := "ok"
	detail := ""
	if err != nil {
		outcome = "failed"
		detail = err.Error()
	}
	e.Emit(Event{
		Stage:      stage,
		JobID:      jobID,
		Outcome:    outcome,
		DurationMS: time.Since(start).Milliseconds(),
		Detail:     detail,
	})
	return err
}
