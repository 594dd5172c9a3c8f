package extract

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"

	"github.com/tutordex/aggregator/pkg/config"
	aggerrors "github.com/tutordex/aggregator/pkg/errors"
)

// ErrTransient and ErrPermanent classify the underlying extractor error so
// the breaker counts the right outcomes and the pipeline maps to the
// right taxonomy. A real backend (AnthropicExtractor) returns one of these
// sentinels wrapped around the upstream failure.
var (
	ErrTransient      = errors.New("llm transient failure")
	ErrPermanent      = errors.New("llm permanent failure")
	ErrSchemaInvalid  = errors.New("llm response failed schema validation")
)

// BreakerExtractor wraps an Extractor with a sony/gobreaker circuit
// breaker, one instance per upstream model, plus bounded retry with
// exponential backoff and jitter for transient failures. Breaker state is
// process-local, as required by the design notes: no global consensus.
type BreakerExtractor struct {
	inner      Extractor
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
}

// NewBreakerExtractor builds a breaker-guarded extractor for one model.
func NewBreakerExtractor(inner Extractor, modelID string, cfg config.BreakerConfig, maxRetries int) *BreakerExtractor {
	settings := gobreaker.Settings{
		Name:        "llm-extractor-" + modelID,
		Interval:    cfg.WindowInterval,
		Timeout:     cfg.OpenTimeout,
		MaxRequests: cfg.HalfOpenMaxProbes,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
	}
	return &BreakerExtractor{
		inner:      inner,
		breaker:    gobreaker.NewCircuitBreaker(settings),
		maxRetries: maxRetries,
	}
}

// Extract runs the wrapped extractor through the breaker with retry on
// transient failures. On circuit_open it returns immediately without
// calling the inner extractor.
func (b *BreakerExtractor) Extract(ctx context.Context, rawText string, agencyHints map[string]string) Result {
	var lastErr error

	type extractionPair struct {
		extraction *CanonicalExtraction
		modelID    string
	}

	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		out, err := b.breaker.Execute(func() (any, error) {
			extraction, modelID, err := b.inner.Extract(ctx, rawText, agencyHints)
			if err != nil {
				return nil, err
			}
			return extractionPair{extraction, modelID}, nil
		})

		if err == nil {
			pair := out.(extractionPair)
			return Result{Extraction: pair.extraction, ModelID: pair.modelID}
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{Err: aggerrors.New("extract", aggerrors.CircuitOpen)}
		}

		lastErr = err
		if !errors.Is(err, ErrTransient) || attempt == b.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return Result{Err: aggerrors.New("extract", aggerrors.Timeout)}
		case <-time.After(backoff(attempt)):
		}
	}

	return Result{Err: classify(lastErr)}
}

func classify(err error) *aggerrors.PipelineError {
	switch {
	case errors.Is(err, ErrSchemaInvalid):
		return aggerrors.Wrap("extract", aggerrors.LLMSchemaInvalid, err)
	case errors.Is(err, ErrTransient):
		return aggerrors.Wrap("extract", aggerrors.LLMTransient, err)
	case errors.Is(err, context.DeadlineExceeded):
		return aggerrors.New("extract", aggerrors.Timeout)
	default:
		return aggerrors.Wrap("extract", aggerrors.LLMPermanent, err)
	}
}

// backoff returns exponential backoff with full jitter for retry attempt
// n, bounded at 10s so a flapping upstream doesn't stall a worker for
// minutes inside a single job.
func backoff(n int) time.Duration {
	base := time.Duration(1<<uint(n)) * 200 * time.Millisecond
	if base > 10*time.Second {
		base = 10 * time.Second
	}
	return time.Duration(rand.Int63n(int64(base) + 1))
}
