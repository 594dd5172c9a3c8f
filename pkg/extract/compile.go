package extract

import "strings"

// CompilationHeuristic decides whether a raw post bundles more than one
// independent assignment and, if so, splits it into per-assignment
// segments. The LLM's own is_compilation/segments fields are treated as
// authoritative when present; this heuristic exists as a deterministic
// fallback for when the model omits segments despite flagging a
// compilation, or when a non-LLM path needs the same answer.
type CompilationHeuristic interface {
	Split(rawText string) (isCompilation bool, segments []string)
}

// compilationMarkers are literal line-start tokens agencies commonly use
// to delimit multiple assignments bundled in a single post.
var compilationMarkers = []string{
	"1)", "2)", "3)", "4)", "5)", "6)", "7)", "8)", "9)",
	"1.", "2.", "3.", "4.", "5.", "6.", "7.", "8.", "9.",
	"#1", "#2", "#3", "#4", "#5",
}

// MarkerCompilationHeuristic splits on repeated numbered/hash markers at
// the start of a line, the most common compilation format observed in
// agency broadcast channels.
type MarkerCompilationHeuristic struct{}

// Split implements CompilationHeuristic.
func (MarkerCompilationHeuristic) Split(rawText string) (bool, []string) {
	lines := strings.Split(rawText, "\n")

	var segments []string
	var current strings.Builder
	markerCount := 0

	flush := func() {
		text := strings.TrimSpace(current.String())
		if text != "" {
			segments = append(segments, text)
		}
		current.Reset()
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if startsWithMarker(trimmed) {
			markerCount++
			flush()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	flush()

	if markerCount < 2 || len(segments) < 2 {
		return false, nil
	}
	return true, segments
}

func startsWithMarker(line string) bool {
	for _, m := range compilationMarkers {
		if strings.HasPrefix(line, m) {
			return true
		}
	}
	return false
}

// Reconcile merges the LLM's own compilation verdict with the
// deterministic fallback: a post is a compilation only when the model
// flagged it as one. The model's segments win when it reported more than
// one; otherwise the heuristic's split is used if it found one.
func Reconcile(h CompilationHeuristic, extraction *CanonicalExtraction, rawText string) (bool, []string) {
	if !extraction.IsCompilation {
		return false, nil
	}
	if len(extraction.Segments) > 1 {
		return true, extraction.Segments
	}
	return h.Split(rawText)
}
