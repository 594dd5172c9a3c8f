package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tutordex/aggregator/pkg/model"
)

// CandidateAssignments returns open assignments from agencies other than
// excludeAgencyID, published within the last windowDays, ordered
// published_at desc and limited to batchSize. This bounds the cost of
// C6's candidate search per detection.
func (s *Store) CandidateAssignments(ctx context.Context, excludeAgencyID string, windowDays, batchSize int) ([]*model.Assignment, error) {
	rows, err := s.pool.Query(ctx, assignmentSelectColumns+`
		FROM assignments
		WHERE status = 'open'
		  AND agency_id <> $1
		  AND published_at >= now() - make_interval(days => $2)
		ORDER BY published_at DESC
		LIMIT $3`,
		excludeAgencyID, windowDays, batchSize)
	if err != nil {
		return nil, fmt.Errorf("querying duplicate candidates: %w", err)
	}
	defer rows.Close()

	var out []*model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// groupStat is a pre-mutation snapshot of a locked duplicate_groups row,
// used to roll avg_confidence_score forward instead of overwriting it with
// just this detection pass's batch mean.
type groupStat struct {
	memberCount int
	avg         float64
}

// LinkGroup performs the group create/merge/promote logic from C6 inside
// a single transaction. groupIDs is the set of distinct pre-existing
// groups referenced by the new assignment's matches (zero, one, or more).
// members is the full set of assignment ids that must end up in the
// resulting group (the new assignment plus every matched candidate).
// Groups are locked in ascending id order to avoid deadlocking against a
// concurrent merge touching an overlapping pair.
func (s *Store) LinkGroup(ctx context.Context, newAssignmentID string, groupIDs []string, members []string, avgScore float64, algoVersion int) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin duplicate link tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sorted := append([]string(nil), groupIDs...)
	sort.Strings(sorted)

	var targetGroupID string
	stats := map[string]groupStat{}
	switch len(sorted) {
	case 0:
		targetGroupID, err = createGroup(ctx, tx, avgScore, algoVersion)
	case 1:
		targetGroupID = sorted[0]
		st, lerr := lockGroup(ctx, tx, targetGroupID)
		if lerr != nil {
			return "", lerr
		}
		stats[targetGroupID] = st
	default:
		for _, gid := range sorted {
			st, lerr := lockGroup(ctx, tx, gid)
			if lerr != nil {
				return "", lerr
			}
			stats[gid] = st
		}
		targetGroupID, err = earliestGroup(ctx, tx, sorted)
	}
	if err != nil {
		return "", err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE assignments SET duplicate_group_id = $1, is_primary_in_group = false
		WHERE id = ANY($2::uuid[])`, targetGroupID, members); err != nil {
		return "", fmt.Errorf("reassigning members to group %s: %w", targetGroupID, err)
	}

	// Groups merged away (every locked group other than targetGroupID):
	// any of their members not in this detection's match set keep
	// pointing at them, so they are only resolved once genuinely empty.
	// A group still holding members after the merge stays active with a
	// corrected member_count rather than being marked resolved.
	for _, gid := range sorted {
		if gid == targetGroupID {
			continue
		}
		var remaining int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM assignments WHERE duplicate_group_id = $1`, gid).Scan(&remaining); err != nil {
			return "", fmt.Errorf("counting remaining members of merged-away group %s: %w", gid, err)
		}
		if remaining == 0 {
			if _, err := tx.Exec(ctx, `
				UPDATE duplicate_groups
				SET member_count = 0, primary_assignment_id = NULL, status = 'resolved'
				WHERE id = $1`, gid); err != nil {
				return "", fmt.Errorf("resolving merged-away group %s: %w", gid, err)
			}
		} else if _, err := tx.Exec(ctx, `
			UPDATE duplicate_groups SET member_count = $1 WHERE id = $2`, remaining, gid); err != nil {
			return "", fmt.Errorf("updating merged-away group %s member count: %w", gid, err)
		}
	}

	primaryID, err := promotePrimary(ctx, tx, targetGroupID)
	if err != nil {
		return "", err
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM assignments WHERE duplicate_group_id = $1`, targetGroupID).Scan(&count); err != nil {
		return "", err
	}

	rolledAvg := rollAvgConfidence(stats, targetGroupID, count, avgScore)

	if _, err := tx.Exec(ctx, `
		UPDATE duplicate_groups
		SET member_count = $1, primary_assignment_id = $2, avg_confidence_score = $3
		WHERE id = $4`, count, primaryID, rolledAvg, targetGroupID); err != nil {
		return "", fmt.Errorf("updating group %s: %w", targetGroupID, err)
	}

	return targetGroupID, tx.Commit(ctx)
}

// rollAvgConfidence folds this detection pass's batch mean (avgScore) into
// the weighted average of whatever groups were locked prior to mutation,
// rather than overwriting avg_confidence_score outright. Groups that did
// not exist before this call (the create-new-group path) contribute zero
// weight, so the result reduces to avgScore as before.
func rollAvgConfidence(stats map[string]groupStat, targetGroupID string, newCount int, avgScore float64) float64 {
	var priorWeighted float64
	var priorCount int
	for _, st := range stats {
		priorWeighted += st.avg * float64(st.memberCount)
		priorCount += st.memberCount
	}
	added := newCount - priorCount
	if added <= 0 {
		if newCount == 0 {
			return avgScore
		}
		return priorWeighted / float64(priorCount)
	}
	return (priorWeighted + avgScore*float64(added)) / float64(newCount)
}

func createGroup(ctx context.Context, tx pgx.Tx, avgScore float64, algoVersion int) (string, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `
		INSERT INTO duplicate_groups (member_count, avg_confidence_score, status, detection_algorithm_version)
		VALUES (0, $1, 'active', $2) RETURNING id`, avgScore, algoVersion).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("creating duplicate group: %w", err)
	}
	return id.String(), nil
}

// lockGroup locks groupID's row FOR UPDATE and returns its pre-mutation
// member_count/avg_confidence_score, used to roll the average forward.
func lockGroup(ctx context.Context, tx pgx.Tx, groupID string) (groupStat, error) {
	var st groupStat
	if err := tx.QueryRow(ctx, `
		SELECT member_count, avg_confidence_score FROM duplicate_groups WHERE id = $1 FOR UPDATE`,
		groupID).Scan(&st.memberCount, &st.avg); err != nil {
		return groupStat{}, fmt.Errorf("locking group %s: %w", groupID, err)
	}
	return st, nil
}

func earliestGroup(ctx context.Context, tx pgx.Tx, groupIDs []string) (string, error) {
	var id uuid.UUID
	if err := tx.QueryRow(ctx, `
		SELECT id FROM duplicate_groups WHERE id = ANY($1) ORDER BY created_at ASC, id ASC LIMIT 1`,
		groupIDs).Scan(&id); err != nil {
		return "", fmt.Errorf("selecting earliest group: %w", err)
	}
	return id.String(), nil
}

// promotePrimary recomputes the group's primary as the member with the
// earliest published_at (tie-break: id asc), clears every other member's
// is_primary_in_group flag, and sets the winner's flag atomically. The
// unique partial index on (duplicate_group_id) WHERE is_primary_in_group
// guarantees at most one primary per group even under concurrent calls.
func promotePrimary(ctx context.Context, tx pgx.Tx, groupID string) (string, error) {
	if _, err := tx.Exec(ctx, `
		UPDATE assignments SET is_primary_in_group = false WHERE duplicate_group_id = $1`, groupID); err != nil {
		return "", fmt.Errorf("clearing primaries for group %s: %w", groupID, err)
	}

	var winnerID uuid.UUID
	err := tx.QueryRow(ctx, `
		SELECT id FROM assignments
		WHERE duplicate_group_id = $1 AND status = 'open'
		ORDER BY published_at ASC, id ASC LIMIT 1`, groupID).Scan(&winnerID)
	if err != nil {
		if err == pgx.ErrNoRows {
			err = tx.QueryRow(ctx, `
				SELECT id FROM assignments
				WHERE duplicate_group_id = $1
				ORDER BY published_at ASC, id ASC LIMIT 1`, groupID).Scan(&winnerID)
		}
		if err != nil {
			return "", fmt.Errorf("selecting primary for group %s: %w", groupID, err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE assignments SET is_primary_in_group = true WHERE id = $1`, winnerID); err != nil {
		return "", fmt.Errorf("promoting primary %s: %w", winnerID, err)
	}
	return winnerID.String(), nil
}

// PromotePrimary is the standalone entry point used when the current
// primary's status flips to closed and a new tie-break winner must be
// elected outside of a fresh link operation.
func (s *Store) PromotePrimary(ctx context.Context, groupID string) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	if _, err := lockGroup(ctx, tx, groupID); err != nil {
		return "", err
	}
	winner, err := promotePrimary(ctx, tx, groupID)
	if err != nil {
		return "", err
	}
	if _, err := tx.Exec(ctx, `UPDATE duplicate_groups SET primary_assignment_id = $1 WHERE id = $2`, winner, groupID); err != nil {
		return "", err
	}
	return winner, tx.Commit(ctx)
}

// GetGroup loads a duplicate group by id.
func (s *Store) GetGroup(ctx context.Context, groupID string) (*model.DuplicateGroup, error) {
	var g model.DuplicateGroup
	var id uuid.UUID
	var primaryID *uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT id, primary_assignment_id, member_count, avg_confidence_score, status, detection_algorithm_version
		FROM duplicate_groups WHERE id = $1`, groupID).
		Scan(&id, &primaryID, &g.MemberCount, &g.AvgConfidenceScore, &g.Status, &g.DetectionAlgorithmVersion)
	if err != nil {
		return nil, err
	}
	g.ID = id.String()
	if primaryID != nil {
		s := primaryID.String()
		g.PrimaryAssignmentID = &s
	}
	return &g, nil
}
