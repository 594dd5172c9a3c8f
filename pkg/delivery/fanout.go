package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/tutordex/aggregator/pkg/config"
	"github.com/tutordex/aggregator/pkg/model"
)

// Store is the subset of pkg/store's delivery RPCs C8 needs.
type Store interface {
	MatchingTutors(ctx context.Context, a *model.Assignment, maxDistanceKM float64) ([]*model.TutorProfile, error)
	CalculateTutorRatingThreshold(ctx context.Context, tutorID string, percentile float64) (float64, error)
	RecordDMDelivery(ctx context.Context, tutorID, assignmentID string) (bool, error)
	RecordBroadcast(ctx context.Context, msg *model.BroadcastMessage) error
	GetBroadcast(ctx context.Context, externalID string) (*model.BroadcastMessage, error)
	GetClicks(ctx context.Context, externalID string) (int64, error)
}

// ratingPercentile is the percentile used to derive a tutor's adaptive
// acceptance threshold from their rating history.
const ratingPercentile = 0.4

// Fanout drives C8: for a newly upserted assignment, filters to
// primary-only, matches tutors, applies the adaptive rating threshold and
// per-tutor/per-channel rate limits, and dispatches DM + broadcast
// content through Transport.
type Fanout struct {
	store     Store
	transport Transport
	redis     *redis.Client
	cfg       config.DeliveryConfig

	dmLimiter        *rate.Limiter
	broadcastLimiter *rate.Limiter
}

// New builds a Fanout. redisClient may be nil, in which case cross-process
// dedup falls back to the store's own (tutor_id, assignment_id) unique
// constraint only (still correct, just one extra round trip under load).
func New(store Store, transport Transport, redisClient *redis.Client, cfg config.DeliveryConfig) *Fanout {
	return &Fanout{
		store:            store,
		transport:        transport,
		redis:            redisClient,
		cfg:              cfg,
		dmLimiter:        rate.NewLimiter(rate.Limit(float64(cfg.DMRatePerMinute)/60.0), cfg.DMRatePerMinute),
		broadcastLimiter: rate.NewLimiter(rate.Limit(float64(cfg.BroadcastRatePerMinute)/60.0), cfg.BroadcastRatePerMinute),
	}
}

// Summary reports what Deliver actually did, for metrics/triage.
type Summary struct {
	Skipped        bool
	DMsSent        int
	DMsDeduped     int
	BroadcastSent  bool
	DegradedMode   bool // broadcast throughput saturated; the broadcast was skipped, no shortened note is sent
}

// Deliver runs the full C8 pass for a. Never returns an error to the
// caller in a way that should fail the upsert: delivery_failed is logged
// non-fatally and the upsert stands. The error return here is surfaced
// only for metrics/triage bookkeeping by the caller, never treated as a
// pipeline failure.
func (f *Fanout) Deliver(ctx context.Context, a *model.Assignment) (*Summary, error) {
	if !a.IsPrimaryInGroup {
		return &Summary{Skipped: true}, nil
	}

	summary := &Summary{}

	tutors, err := f.store.MatchingTutors(ctx, a, f.cfg.DMMaxDistanceKMDefault)
	if err != nil {
		return summary, fmt.Errorf("matching tutors: %w", err)
	}

	for _, t := range tutors {
		sent, err := f.dispatchDM(ctx, a, t)
		if err != nil {
			slog.Warn("dm dispatch failed", "assignment_id", a.ID, "tutor_id", t.ID, "error", err)
			continue
		}
		if sent {
			summary.DMsSent++
		} else {
			summary.DMsDeduped++
		}
	}

	mode := f.cfg.BroadcastDuplicateMode
	if a.DuplicateGroupID != nil && mode == config.BroadcastAll {
		// the mode is not otherwise consulted: non-primary members were
		// already skipped above, whatever the mode.
	}

	if !f.broadcastLimiter.Allow() {
		summary.DegradedMode = true
		slog.Warn("broadcast throughput saturated, skipping broadcast", "assignment_id", a.ID)
		return summary, nil
	}

	content := broadcastContent(a, summary.DegradedMode)
	if _, err := f.transport.Broadcast(ctx, "assignments", content, ""); err != nil {
		return summary, fmt.Errorf("broadcasting assignment %s: %w", a.ID, err)
	}
	if err := f.store.RecordBroadcast(ctx, &model.BroadcastMessage{
		ExternalID: a.ExternalID,
		Channel:    "assignments",
		Content:    content,
	}); err != nil {
		return summary, fmt.Errorf("recording broadcast for %s: %w", a.ExternalID, err)
	}
	summary.BroadcastSent = true

	return summary, nil
}

// dispatchDM applies the adaptive rating threshold and dedup checks for
// one tutor and, if the tutor clears them, sends (or rate-limit-queues)
// the DM. Returns sent=false when the pair was already delivered
// (dedup), not an error.
func (f *Fanout) dispatchDM(ctx context.Context, a *model.Assignment, t *model.TutorProfile) (bool, error) {
	if f.cfg.DMSkipDuplicates && a.DuplicateGroupID != nil && !a.IsPrimaryInGroup {
		return false, nil
	}

	if already, err := f.dedupSeen(ctx, t.ID, a.ID); err != nil {
		return false, err
	} else if already {
		return false, nil
	}

	threshold, err := f.cachedRatingThreshold(ctx, t.ID)
	if err != nil {
		return false, fmt.Errorf("loading rating threshold: %w", err)
	}
	if threshold > 0 && !ratingPasses(a, threshold) {
		return false, nil
	}

	inserted, err := f.store.RecordDMDelivery(ctx, t.ID, a.ID)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	if !f.dmLimiter.Allow() {
		if err := f.dmLimiter.Wait(ctx); err != nil {
			return false, fmt.Errorf("waiting for dm rate limit: %w", err)
		}
	}

	idempotencyKey := t.ID + ":" + a.ID
	if _, err := f.transport.SendDM(ctx, t.ID, dmContent(a), idempotencyKey); err != nil {
		return false, fmt.Errorf("sending dm to %s: %w", t.ID, err)
	}
	return true, nil
}

// ratingPasses is a placeholder acceptance rule: assignments whose
// confidence score (when present) meets or exceeds the tutor's
// percentile threshold pass. Assignments with no duplicate scoring yet
// (the common case — most are never duplicated) always pass, since the
// threshold is calibrated against rating outcomes, not duplicate scores;
// it gates on DuplicateConfidenceScore only as the one numeric signal on
// Assignment comparable to a rating-derived threshold.
func ratingPasses(a *model.Assignment, threshold float64) bool {
	if a.DuplicateConfidenceScore == nil {
		return true
	}
	return *a.DuplicateConfidenceScore >= threshold
}

func dmContent(a *model.Assignment) string {
	return fmt.Sprintf("%s\n%s", a.AcademicDisplayText, a.MessageLink)
}

func broadcastContent(a *model.Assignment, degraded bool) string {
	if degraded {
		return fmt.Sprintf("%s (see listing for details)", a.AcademicDisplayText)
	}
	return fmt.Sprintf("%s\n%s", a.AcademicDisplayText, a.MessageLink)
}

// dedupSeen checks the redis fast-path dedup set before falling back to
// the store's unique constraint. redis being unavailable/nil is treated
// as a cache miss, not an error — RecordDMDelivery remains the source of
// truth.
func (f *Fanout) dedupSeen(ctx context.Context, tutorID, assignmentID string) (bool, error) {
	if f.redis == nil {
		return false, nil
	}
	key := "dm-dedup:" + tutorID + ":" + assignmentID
	ok, err := f.redis.SetNX(ctx, key, 1, 7*24*time.Hour).Result()
	if err != nil {
		slog.Warn("redis dedup check failed, falling back to store", "error", err)
		return false, nil
	}
	return !ok, nil
}

// cachedRatingThreshold reads the tutor's adaptive threshold from redis
// when available, falling back to the store (and populating the cache)
// on a miss.
func (f *Fanout) cachedRatingThreshold(ctx context.Context, tutorID string) (float64, error) {
	key := "rating-threshold:" + tutorID
	if f.redis != nil {
		if v, err := f.redis.Get(ctx, key).Float64(); err == nil {
			return v, nil
		}
	}

	threshold, err := f.store.CalculateTutorRatingThreshold(ctx, tutorID, ratingPercentile)
	if err != nil {
		return 0, err
	}

	if f.redis != nil {
		f.redis.Set(ctx, key, threshold, time.Hour)
	}
	return threshold, nil
}

// ClickBucket returns the index of the highest boundary count has
// crossed, used to decide whether a broadcast post needs re-editing.
func ClickBucket(count int64, boundaries []int64) int {
	sorted := append([]int64(nil), boundaries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	bucket := 0
	for i, b := range sorted {
		if count >= b {
			bucket = i + 1
		}
	}
	return bucket
}

// MaybeEditOnClick re-renders the broadcast post for externalID when the
// click count has crossed into a new bucket since the last edit. Call
// this from increment_clicks's caller (the public-facing click redirect
// handler), not from the extraction pipeline.
func (f *Fanout) MaybeEditOnClick(ctx context.Context, externalID string) error {
	msg, err := f.store.GetBroadcast(ctx, externalID)
	if err != nil {
		return fmt.Errorf("loading broadcast record for %s: %w", externalID, err)
	}
	count, err := f.store.GetClicks(ctx, externalID)
	if err != nil {
		return fmt.Errorf("loading click count for %s: %w", externalID, err)
	}

	bucket := ClickBucket(count, f.cfg.ClickBucketBoundaries)
	if bucket == msg.LastClickBucket {
		return nil
	}

	content := fmt.Sprintf("%s\n%d clicks", msg.Content, count)
	if _, err := f.transport.Broadcast(ctx, msg.Channel, content, msg.TransportMsgID); err != nil {
		return fmt.Errorf("editing broadcast for %s: %w", externalID, err)
	}

	msg.LastClickBucket = bucket
	return f.store.RecordBroadcast(ctx, msg)
}
