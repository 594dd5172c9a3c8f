package extract

import "testing"

func TestMarkerCompilationHeuristicSplitsNumbered(t *testing.T) {
	text := "1) Sec 3 Math, Tampines, $40/hr\n2) JC Physics, Jurong, $60/hr\n"
	isCompilation, segments := MarkerCompilationHeuristic{}.Split(text)
	if !isCompilation {
		t.Fatal("expected compilation to be detected")
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d: %v", len(segments), segments)
	}
}

func TestMarkerCompilationHeuristicIgnoresSingleAssignment(t *testing.T) {
	text := "Sec 3 Math tutor needed, Tampines, $40/hr"
	isCompilation, segments := MarkerCompilationHeuristic{}.Split(text)
	if isCompilation {
		t.Errorf("did not expect compilation, got segments %v", segments)
	}
	if segments != nil {
		t.Errorf("expected nil segments, got %v", segments)
	}
}

func TestReconcilePrefersExtractionSegments(t *testing.T) {
	extraction := &CanonicalExtraction{IsCompilation: true, Segments: []string{"a", "b"}}
	isCompilation, segments := Reconcile(MarkerCompilationHeuristic{}, extraction, "irrelevant text")
	if !isCompilation || len(segments) != 2 {
		t.Fatalf("expected extraction's own segments to win, got %v", segments)
	}
}

func TestReconcileFallsBackToHeuristic(t *testing.T) {
	extraction := &CanonicalExtraction{IsCompilation: true}
	text := "1) Sec 3 Math\n2) JC Physics\n"
	isCompilation, segments := Reconcile(MarkerCompilationHeuristic{}, extraction, text)
	if !isCompilation || len(segments) != 2 {
		t.Fatalf("expected heuristic fallback, got %v / %v", isCompilation, segments)
	}
}
