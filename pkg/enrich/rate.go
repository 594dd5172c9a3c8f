package enrich

import (
	"regexp"
	"strconv"
)

// rateSpanPattern matches rate-bearing spans like "$40/hr", "$40-60/hr",
// "$40 to $60 per hour".
var rateSpanPattern = regexp.MustCompile(`(?i)\$\s*(\d+(?:\.\d+)?)\s*(?:-|to)?\s*\$?\s*(\d+(?:\.\d+)?)?\s*(?:/|per)?\s*(?:hr|hour)`)

// ParseRate extracts rate_min/rate_max from a rate-bearing text span when
// the LLM did not supply numerics. Returns (nil, nil) when no rate span is
// found.
func ParseRate(text string) (min, max *float64) {
	m := rateSpanPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, nil
	}
	lo, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, nil
	}
	hi := lo
	if m[2] != "" {
		if v, err := strconv.ParseFloat(m[2], 64); err == nil {
			hi = v
		}
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	return &lo, &hi
}
