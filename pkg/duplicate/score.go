// Package duplicate implements the duplicate detector (C6): candidate
// search, weighted multi-signal scoring, and group create/merge/promote.
// The scoring half is a pure function over two assignments and a weight
// table; the group-mutation half delegates to the store's transactional
// LinkGroup/PromotePrimary RPCs so locking stays inside a single
// connection pool, per the deterministic-id-order discipline in the
// design notes.
package duplicate

import (
	"strconv"
	"strings"
	"time"

	"github.com/tutordex/aggregator/pkg/config"
	"github.com/tutordex/aggregator/pkg/model"
)

// Score computes the weighted signal score in [0, 100] for candidate c
// against new assignment a.
func Score(a, c *model.Assignment, w config.DuplicateWeights) float64 {
	total := postalScore(a, c, w) +
		jaccardScore(subjectsOf(a), subjectsOf(c))*w.Subjects +
		jaccardScore(levelsOf(a), levelsOf(c))*w.Levels +
		rateScore(a, c)*w.Rate +
		codeScore(a, c, w) +
		temporalScore(a, c, w) +
		availabilityScore(a, c)*w.TimeAvailability

	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}
	return total
}

// postalScore awards full weight for an exact 6-digit postal match, and
// w.PostalFuzzyFactor of the weight for a fuzzy match: same first two
// digits with at most 2 differing digits elsewhere. The tolerance is fixed
// at 2 here; DuplicateConfig.FuzzyPostalTolerance is not read.
func postalScore(a, c *model.Assignment, w config.DuplicateWeights) float64 {
	for _, pa := range a.PostalCode {
		for _, pc := range c.PostalCode {
			if pa == pc && len(pa) == 6 {
				return w.Postal
			}
		}
	}
	for _, pa := range a.PostalCode {
		for _, pc := range c.PostalCode {
			if fuzzyPostalMatch(pa, pc, 2) {
				return w.Postal * w.PostalFuzzyFactor
			}
		}
	}
	return 0
}

func fuzzyPostalMatch(a, b string, tolerance int) bool {
	if len(a) != 6 || len(b) != 6 {
		return false
	}
	if a[:2] != b[:2] {
		return false
	}
	diff := 0
	for i := 2; i < 6; i++ {
		if a[i] != b[i] {
			diff++
		}
	}
	return diff <= tolerance
}

func subjectsOf(a *model.Assignment) []string {
	if len(a.SubjectsCanonical) > 0 {
		return a.SubjectsCanonical
	}
	return a.SignalsSubjects
}

func levelsOf(a *model.Assignment) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range a.SignalsLevels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	for _, l := range a.SignalsSpecificStudentLevels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

// jaccardScore returns |intersection| / |union| for two string sets,
// treated as sets (duplicates collapsed); 0 when the union is empty.
func jaccardScore(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := toSet(a)
	setB := toSet(b)
	inter := 0
	for k := range setA {
		if setB[k] {
			inter++
		}
	}
	union := len(setA)
	for k := range setB {
		if !setA[k] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, it := range items {
		s[it] = true
	}
	return s
}

// rateScore returns 1 when [min_A, max_A] intersects [min_C, max_C], 0
// otherwise (including when either assignment lacks rate bounds).
func rateScore(a, c *model.Assignment) float64 {
	if a.RateMin == nil || a.RateMax == nil || c.RateMin == nil || c.RateMax == nil {
		return 0
	}
	if *a.RateMin > *c.RateMax || *c.RateMin > *a.RateMax {
		return 0
	}
	return 1
}

// codeScore awards full weight for an exact normalized assignment-code
// match (common prefixes stripped, uppercased) and w.CodePrefixFactor for
// a prefix match.
func codeScore(a, c *model.Assignment, w config.DuplicateWeights) float64 {
	na, nc := normalizeCode(a.AssignmentCode), normalizeCode(c.AssignmentCode)
	if na == "" || nc == "" {
		return 0
	}
	if na == nc {
		return w.AssignmentCode
	}
	if strings.HasPrefix(na, nc) || strings.HasPrefix(nc, na) {
		return w.AssignmentCode * w.CodePrefixFactor
	}
	return 0
}

var codePrefixes = []string{"REF-", "REF#", "REF", "ASG-", "ASG", "ID-", "#"}

func normalizeCode(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	for _, p := range codePrefixes {
		c = strings.TrimPrefix(c, p)
	}
	return strings.TrimSpace(c)
}

// temporalScore awards full weight when the two assignments' published_at
// timestamps are within 48h of each other, w.TemporalDecay at 96h, 0
// beyond that.
func temporalScore(a, c *model.Assignment, w config.DuplicateWeights) float64 {
	delta := a.PublishedAt.Sub(c.PublishedAt)
	if delta < 0 {
		delta = -delta
	}
	switch {
	case delta <= 48*time.Hour:
		return w.Temporal
	case delta <= 96*time.Hour:
		return w.Temporal * w.TemporalDecay
	default:
		return 0
	}
}

// availabilityScore returns 1 when both assignments carry a non-empty
// time-availability note and one is a lexical substring of the other
// (case-insensitive), else 0.
func availabilityScore(a, c *model.Assignment) float64 {
	ta := strings.ToLower(strings.TrimSpace(a.TimeAvailabilityNote))
	tc := strings.ToLower(strings.TrimSpace(c.TimeAvailabilityNote))
	if ta == "" || tc == "" {
		return 0
	}
	if strings.Contains(ta, tc) || strings.Contains(tc, ta) {
		return 1
	}
	return 0
}

// MatchTier classifies a score against the configured thresholds.
type MatchTier string

const (
	TierHigh   MatchTier = "high"
	TierMedium MatchTier = "medium"
	TierLow    MatchTier = "low"
	TierNone   MatchTier = "none"
)

// Classify returns the match tier for score against cfg's thresholds.
// Only TierMedium and above are linkable.
func Classify(score float64, cfg config.DuplicateConfig) MatchTier {
	switch {
	case score >= cfg.ThresholdHigh:
		return TierHigh
	case score >= cfg.ThresholdMedium:
		return TierMedium
	case score >= cfg.ThresholdLow:
		return TierLow
	default:
		return TierNone
	}
}

// Linkable reports whether tier crosses the "only matches >= medium are
// linked" bar.
func (t MatchTier) Linkable() bool {
	return t == TierHigh || t == TierMedium
}

func formatScore(s float64) string {
	return strconv.FormatFloat(s, 'f', 2, 64)
}
