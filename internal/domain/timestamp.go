package domain

import (
	"regexp"
	"time"
)

// timestampGrammar is one accepted timestamp shape. The pattern pins the exact
// shape (Go's parser is more lenient about fractional seconds than the sensor
// format allows); the layout does the conversion.
type timestampGrammar struct {
	pattern *regexp.Regexp
	layout  string
}

// Grammars are tried in order and the first match wins: fractional seconds
// (1-6 digits) first, then whole seconds. Offsets are ±HHMM, ±HH:MM or Z.
var (
	legacyTimestampGrammars = grammarsFor(`"\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`, `"2006-01-02 15:04:05`, `"`)

	compactTimestampGrammars = grammarsFor(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`, `2006-01-02T15:04:05`, ``)
)

// grammarsFor expands one date-time shape into its four variants: with and
// without fractional seconds, each with a compact or colon-separated offset.
// quote wraps the whole value when the layout stores it quoted.
func grammarsFor(pattern, layout, quote string) []timestampGrammar {
	type variant struct{ frac, fracLayout, offset, offsetLayout string }
	variants := []variant{
		{`\.\d{1,6}`, ".999999", `(?:Z|[+-]\d{4})`, "Z0700"},
		{`\.\d{1,6}`, ".999999", `[+-]\d{2}:\d{2}`, "Z07:00"},
		{``, ``, `(?:Z|[+-]\d{4})`, "Z0700"},
		{``, ``, `[+-]\d{2}:\d{2}`, "Z07:00"},
	}

	grammars := make([]timestampGrammar, 0, len(variants))
	for _, v := range variants {
		grammars = append(grammars, timestampGrammar{
			pattern: regexp.MustCompile(`^` + pattern + v.frac + v.offset + regexp.QuoteMeta(quote) + `$`),
			layout:  layout + v.fracLayout + v.offsetLayout + quote,
		})
	}
	return grammars
}

// parseTimestamp returns the first successful parse of value, or false when
// no grammar accepts it. Out-of-range components (month 13, hour 25) fail the
// grammar they matched and fall through to the next one.
func parseTimestamp(value string, grammars []timestampGrammar) (time.Time, bool) {
	for _, g := range grammars {
		if !g.pattern.MatchString(value) {
			continue
		}
		t, err := time.Parse(g.layout, value)
		if err != nil {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}
