package extract

import (
	"context"
	"testing"
	"time"

	"github.com/tutordex/aggregator/pkg/config"
	aggerrors "github.com/tutordex/aggregator/pkg/errors"
)

type fakeExtractor struct {
	calls   int
	results []struct {
		extraction *CanonicalExtraction
		modelID    string
		err        error
	}
}

func (f *fakeExtractor) Extract(ctx context.Context, rawText string, agencyHints map[string]string) (*CanonicalExtraction, string, error) {
	r := f.results[f.calls]
	f.calls++
	return r.extraction, r.modelID, r.err
}

func withResult(extraction *CanonicalExtraction, modelID string, err error) struct {
	extraction *CanonicalExtraction
	modelID    string
	err        error
} {
	return struct {
		extraction *CanonicalExtraction
		modelID    string
		err        error
	}{extraction, modelID, err}
}

func testBreakerConfig() config.BreakerConfig {
	return config.BreakerConfig{
		WindowInterval:    time.Minute,
		OpenTimeout:       time.Millisecond,
		FailureRatio:      0.6,
		MinRequests:       10,
		HalfOpenMaxProbes: 1,
	}
}

func TestBreakerExtractorSucceedsFirstTry(t *testing.T) {
	fake := &fakeExtractor{}
	fake.results = append(fake.results, withResult(&CanonicalExtraction{ExternalID: "x1"}, "model-a", nil))

	b := NewBreakerExtractor(fake, "model-a", testBreakerConfig(), 2)
	result := b.Extract(context.Background(), "text", nil)

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Extraction.ExternalID != "x1" {
		t.Errorf("expected extraction to be returned, got %+v", result.Extraction)
	}
}

func TestBreakerExtractorRetriesTransientThenSucceeds(t *testing.T) {
	fake := &fakeExtractor{}
	fake.results = append(fake.results,
		withResult(nil, "model-a", ErrTransient),
		withResult(&CanonicalExtraction{ExternalID: "x2"}, "model-a", nil),
	)

	b := NewBreakerExtractor(fake, "model-a", testBreakerConfig(), 2)
	result := b.Extract(context.Background(), "text", nil)

	if result.Err != nil {
		t.Fatalf("unexpected error after retry: %v", result.Err)
	}
	if fake.calls != 2 {
		t.Errorf("expected 2 calls, got %d", fake.calls)
	}
}

func TestBreakerExtractorSchemaInvalidIsTerminal(t *testing.T) {
	fake := &fakeExtractor{}
	fake.results = append(fake.results, withResult(nil, "model-a", ErrSchemaInvalid))

	b := NewBreakerExtractor(fake, "model-a", testBreakerConfig(), 3)
	result := b.Extract(context.Background(), "text", nil)

	if result.Err == nil {
		t.Fatal("expected an error")
	}
	if result.Err.Taxonomy != aggerrors.LLMSchemaInvalid {
		t.Errorf("expected LLMSchemaInvalid, got %v", result.Err.Taxonomy)
	}
	if fake.calls != 1 {
		t.Errorf("schema-invalid should not be retried, got %d calls", fake.calls)
	}
}

func TestBreakerExtractorOpensAfterFailures(t *testing.T) {
	cfg := testBreakerConfig()
	cfg.MinRequests = 2
	cfg.FailureRatio = 0.5

	fake := &fakeExtractor{}
	for i := 0; i < 10; i++ {
		fake.results = append(fake.results, withResult(nil, "model-a", ErrPermanent))
	}

	b := NewBreakerExtractor(fake, "model-a", cfg, 0)

	var results []Result
	for i := 0; i < 4; i++ {
		results = append(results, b.Extract(context.Background(), "text", nil))
	}

	last := results[len(results)-1]
	if last.Err == nil {
		t.Fatal("expected an error once breaker trips")
	}
	if last.Err.Taxonomy != aggerrors.CircuitOpen {
		t.Errorf("expected circuit to be open after repeated failures, got %v", last.Err.Taxonomy)
	}
}
