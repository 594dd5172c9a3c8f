package enrich

import (
	"regexp"
	"strings"
)

var levelKeywords = map[string]*regexp.Regexp{
	"Primary":   regexp.MustCompile(`(?i)\bprimary\b|\bpri\b`),
	"Secondary": regexp.MustCompile(`(?i)\bsecondary\b|\bsec\b`),
	"JC":        regexp.MustCompile(`(?i)\bjc\b|junior college`),
	"IB":        regexp.MustCompile(`(?i)\bib\b|international baccalaureate`),
	"IGCSE":     regexp.MustCompile(`(?i)\bigcse\b`),
}

var levelOrder = []string{"Primary", "Secondary", "JC", "IB", "IGCSE"}

var specificLevelPattern = regexp.MustCompile(`(?i)\b(p|pri|sec|jc)\s?([1-6])\b`)

var subjectKeywords = []string{
	"math", "maths", "mathematics", "a math", "amath", "e math", "emath",
	"english", "science", "physics", "chemistry", "biology",
	"chinese", "higher chinese", "malay", "tamil",
	"geography", "history", "social studies", "literature", "economics",
}

var specificLevelCanon = map[string]string{"p": "P", "pri": "P", "sec": "Sec", "jc": "JC"}

// TokenizeSignals scans raw text for level keywords, specific student
// levels (Sec 3, P5, ...), and subject mentions, emitting deduplicated
// arrays independent of the LLM. This is the deterministic fallback used
// when the LLM omits or disagrees with these rollups.
func TokenizeSignals(text string) (levels, specificLevels, subjects []string) {
	levels = dedupAppend(nil, matchLevels(text)...)
	specificLevels = dedupAppend(nil, matchSpecificLevels(text)...)
	subjects = dedupAppend(nil, matchSubjects(text)...)
	return
}

func matchLevels(text string) []string {
	var out []string
	for _, name := range levelOrder {
		if levelKeywords[name].MatchString(text) {
			out = append(out, name)
		}
	}
	return out
}

func matchSpecificLevels(text string) []string {
	var out []string
	for _, m := range specificLevelPattern.FindAllStringSubmatch(text, -1) {
		prefix := specificLevelCanon[strings.ToLower(m[1])]
		if prefix == "" {
			continue
		}
		out = append(out, prefix+" "+m[2])
	}
	return out
}

func matchSubjects(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, kw := range subjectKeywords {
		if strings.Contains(lower, kw) {
			out = append(out, kw)
		}
	}
	return out
}

func dedupAppend(dst []string, items ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, d := range dst {
		seen[d] = true
	}
	for _, it := range items {
		if !seen[it] {
			seen[it] = true
			dst = append(dst, it)
		}
	}
	return dst
}
