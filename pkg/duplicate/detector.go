package duplicate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tutordex/aggregator/pkg/config"
	"github.com/tutordex/aggregator/pkg/model"
)

// Store is the subset of pkg/store's duplicate-grouping RPCs the detector
// needs. Modeled as a narrow consumer-defined interface so the detector is
// unit-testable against a fake.
type Store interface {
	CandidateAssignments(ctx context.Context, excludeAgencyID string, windowDays, batchSize int) ([]*model.Assignment, error)
	LinkGroup(ctx context.Context, newAssignmentID string, groupIDs []string, members []string, avgScore float64, algoVersion int) (string, error)
}

// Detector runs C6 against one newly persisted assignment at a time. It
// holds no mutable state beyond its configuration; every call is
// independent and safe to run from multiple workers concurrently (the
// transactional group mutation inside Store.LinkGroup is what prevents
// races, not anything here).
type Detector struct {
	store Store
	cfg   config.DuplicateConfig
}

// New builds a Detector bound to store and cfg, read once at
// initialization rather than per call.
func New(store Store, cfg config.DuplicateConfig) *Detector {
	return &Detector{store: store, cfg: cfg}
}

// Result reports what the detection pass did for triage/metrics.
type Result struct {
	GroupID     string
	MatchCount  int
	AvgScore    float64
	BestTier    MatchTier
}

// Detect runs the candidate search + weighted scoring + group
// create/merge for a. Detector errors never propagate as pipeline
// failures; callers should log Detect's error and let the upsert stand
// unlinked. Returns a nil Result when no candidate crosses the linkable
// threshold.
func (d *Detector) Detect(ctx context.Context, a *model.Assignment) (*Result, error) {
	candidates, err := d.store.CandidateAssignments(ctx, a.AgencyID, d.cfg.TimeWindowDays, d.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("querying duplicate candidates: %w", err)
	}

	var matches []model.MatchCandidate
	for _, c := range candidates {
		score := Score(a, c, d.cfg.Weights)
		tier := Classify(score, d.cfg)
		if !tier.Linkable() {
			continue
		}
		matches = append(matches, model.MatchCandidate{Assignment: c, Score: score})
	}

	if len(matches) == 0 {
		return nil, nil
	}

	groupIDs := distinctGroupIDs(matches)
	members := make([]string, 0, len(matches)+1)
	members = append(members, a.ID)
	sum := 0.0
	bestTier := TierNone
	for _, m := range matches {
		members = append(members, m.Assignment.ID)
		sum += m.Score
		if t := Classify(m.Score, d.cfg); t == TierHigh || bestTier != TierHigh && t == TierMedium {
			bestTier = t
		}
	}
	avg := sum / float64(len(matches))

	groupID, err := d.store.LinkGroup(ctx, a.ID, groupIDs, members, avg, d.cfg.DetectionAlgoVersion)
	if err != nil {
		return nil, fmt.Errorf("linking duplicate group: %w", err)
	}

	slog.Debug("duplicate group linked",
		"assignment_id", a.ID, "group_id", groupID, "match_count", len(matches), "avg_score", formatScore(avg))

	return &Result{GroupID: groupID, MatchCount: len(matches), AvgScore: avg, BestTier: bestTier}, nil
}

func distinctGroupIDs(matches []model.MatchCandidate) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range matches {
		if m.Assignment.DuplicateGroupID == nil {
			continue
		}
		gid := *m.Assignment.DuplicateGroupID
		if !seen[gid] {
			seen[gid] = true
			out = append(out, gid)
		}
	}
	return out
}
