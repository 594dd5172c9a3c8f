// Package redact strips phone-number-shaped digit runs from text before
// it is persisted for operator triage (C10), scoped to the one pattern
// the pipeline's failure-sample path actually needs.
package redact

import "regexp"

// digitRun matches runs of at least 8 characters that start and end with
// a digit and otherwise hold digits, spaces, dashes, or dots (plus an
// optional leading +), so 8 or more unseparated digits — long enough to catch local and international
// phone numbers while leaving postal codes (6 digits) and short codes
// untouched.
var digitRun = regexp.MustCompile(`\+?\d[\d\s.-]{6,}\d`)

const redactedPlaceholder = "[redacted]"

// Text returns s with every phone-number-shaped digit run replaced by a
// fixed placeholder. Safe to call on arbitrary raw post text before
// storing it as a triage sample.
func Text(s string) string {
	return digitRun.ReplaceAllString(s, redactedPlaceholder)
}

// Preview redacts s and truncates it to maxLen runes, appending an
// ellipsis marker when truncated. Used to bound the size of stored
// triage samples.
func Preview(s string, maxLen int) string {
	redacted := Text(s)
	runes := []rune(redacted)
	if len(runes) <= maxLen {
		return redacted
	}
	return string(runes[:maxLen]) + "…"
}
