package enrich

import (
	"testing"

	"github.com/tutordex/aggregator/pkg/model"
)

func TestApplyIsIdempotent(t *testing.T) {
	text := "Sec 3 Math, Tampines 520123, $40/hr, Mon 7-9pm"
	a := &model.Assignment{PostalCode: []string{"520123"}}

	if err := Apply(a, text); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	first := *a

	if err := Apply(a, text); err != nil {
		t.Fatalf("second Apply: %v", err)
	}

	if len(a.SignalsLevels) != len(first.SignalsLevels) {
		t.Errorf("signals_levels grew on re-application: %v vs %v", a.SignalsLevels, first.SignalsLevels)
	}
	if a.CanonicalizationVersion != first.CanonicalizationVersion {
		t.Errorf("canonicalization_version changed on re-application")
	}
	if *a.PostalLat != *first.PostalLat {
		t.Errorf("postal lat changed on re-application")
	}
}

func TestEnrichGeoResolvesExactPostal(t *testing.T) {
	a := &model.Assignment{PostalCode: []string{"520123"}}
	if err := EnrichGeo(a); err != nil {
		t.Fatalf("EnrichGeo: %v", err)
	}
	if a.Region != "East" {
		t.Errorf("expected region East, got %q", a.Region)
	}
	if a.PostalLat == nil || a.PostalLon == nil {
		t.Fatal("expected coordinates to be set")
	}
	if a.PostalCoordsEstimated {
		t.Error("expected exact match, not estimated")
	}
}

func TestTokenizeSignals(t *testing.T) {
	levels, specific, subjects := TokenizeSignals("Sec 3 Math tuition needed, Tampines")
	if !contains(levels, "Secondary") {
		t.Errorf("expected Secondary level, got %v", levels)
	}
	if !contains(specific, "Sec 3") {
		t.Errorf("expected Sec 3 specific level, got %v", specific)
	}
	if !contains(subjects, "math") {
		t.Errorf("expected math subject, got %v", subjects)
	}
}

func TestCanonicalizeSubjectsDropsUnknown(t *testing.T) {
	canonical, general, err := CanonicalizeSubjects([]string{"math", "underwater basket weaving"})
	if err != nil {
		t.Fatalf("CanonicalizeSubjects: %v", err)
	}
	if len(canonical) != 1 || canonical[0] != "MATH.SEC_EMATH" {
		t.Errorf("expected single math canonical code, got %v", canonical)
	}
	if len(general) != 1 || general[0] != "MATH" {
		t.Errorf("expected MATH general category, got %v", general)
	}
}

func TestParseRate(t *testing.T) {
	min, max := ParseRate("Rate: $40-60/hr for experienced tutors")
	if min == nil || max == nil {
		t.Fatal("expected rate span to be parsed")
	}
	if *min != 40 || *max != 60 {
		t.Errorf("expected 40-60, got %v-%v", *min, *max)
	}
}

func contains(items []string, target string) bool {
	for _, i := range items {
		if i == target {
			return true
		}
	}
	return false
}
