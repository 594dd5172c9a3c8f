package enrich

import "github.com/tutordex/aggregator/pkg/model"

// Apply runs the full deterministic enrichment chain over a canonical
// assignment built from LLM output plus the raw text: signal rollups,
// geo resolution, subject canonicalization, and rate fallback parsing.
// All steps are pure and idempotent; running Apply twice on the same
// input is the identity.
func Apply(a *model.Assignment, rawText string) error {
	levels, specificLevels, subjects := TokenizeSignals(rawText)
	a.SignalsLevels = dedupAppend(a.SignalsLevels, levels...)
	a.SignalsSpecificStudentLevels = dedupAppend(a.SignalsSpecificStudentLevels, specificLevels...)
	a.SignalsSubjects = dedupAppend(a.SignalsSubjects, subjects...)

	if err := ApplyCanonicalization(a); err != nil {
		return err
	}

	if err := EnrichGeo(a); err != nil {
		return err
	}

	if a.RateMin == nil || a.RateMax == nil {
		if min, max := ParseRate(rawText); min != nil {
			if a.RateMin == nil {
				a.RateMin = min
			}
			if a.RateMax == nil {
				a.RateMax = max
			}
		}
	}

	return nil
}
