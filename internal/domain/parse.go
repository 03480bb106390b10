package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// compactClockCorrection is applied to every compact-layout timestamp.
// See the package documentation for why legacy timestamps are left alone.
const compactClockCorrection = -8 * time.Hour

var errNotFinite = errors.New("value is not finite")

// column binds a positional index in a split line to a field or tag name.
type column struct {
	index int
	name  string
}

// layout describes how the columns of one schema variant map onto a record.
type layout struct {
	variant         SchemaVariant
	timestampColumn int
	grammars        []timestampGrammar
	correction      time.Duration
	tags            []column
	fields          []column
}

var legacyLayout = layout{
	variant:         VariantLegacy,
	timestampColumn: 7,
	grammars:        legacyTimestampGrammars,
	tags: []column{
		{0, TagCar},
		{1, TagSerialNumber},
	},
	fields: []column{
		{2, FieldLatitude},
		{3, FieldLongitude},
		{4, FieldPM10},
		{5, FieldPM25},
		{6, FieldSpeed},
	},
}

var compactLayout = layout{
	variant:         VariantCompact,
	timestampColumn: 0,
	grammars:        compactTimestampGrammars,
	correction:      compactClockCorrection,
	tags: []column{
		{1, TagSerialNumber},
	},
	fields: []column{
		{2, FieldPM25},
		{3, FieldPM10},
	},
}

// ParseResult is the outcome of parsing one sensor log.
type ParseResult struct {
	Variant SchemaVariant
	Records []MeasurementRecord // in input line order
	Skipped []SkippedLine
	Empty   bool // the source had no data lines
}

// Lines returns the number of data lines examined.
func (r ParseResult) Lines() int {
	return len(r.Records) + len(r.Skipped)
}

// Parse detects the layout from the header column count and parses every
// data line. An empty source yields Empty with no error.
func Parse(f RawFile) (ParseResult, error) {
	if !f.DataPresent {
		return ParseResult{Empty: true}, nil
	}

	variant, err := DetectVariant(f.ColumnCount)
	if err != nil {
		return ParseResult{}, err
	}

	switch variant {
	case VariantLegacy:
		return ParseLegacy(f)
	case VariantCompact:
		return ParseCompact(f)
	default:
		return ParseResult{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, variant)
	}
}

// ParseLegacy parses f as the 8-column layout regardless of its header.
func ParseLegacy(f RawFile) (ParseResult, error) {
	return legacyLayout.parse(f)
}

// ParseCompact parses f as the 4-column layout regardless of its header.
// Every timestamp is shifted back 8 hours.
func ParseCompact(f RawFile) (ParseResult, error) {
	return compactLayout.parse(f)
}

// lineOutcome tags the result of a single data line.
type lineOutcome int

const (
	lineAccepted lineOutcome = iota
	lineSkipped
)

type lineResult struct {
	outcome lineOutcome
	record  MeasurementRecord
	reason  error
}

func (l layout) parse(f RawFile) (ParseResult, error) {
	result := ParseResult{Variant: l.variant}
	if !f.DataPresent {
		result.Empty = true
		return result, nil
	}

	data := f.dataLines()
	result.Records = make([]MeasurementRecord, 0, len(data))
	for i, line := range data {
		lineNo := i + 2 // header is line 1
		res, err := l.parseLine(lineNo, line)
		if err != nil {
			return ParseResult{}, err
		}
		switch res.outcome {
		case lineAccepted:
			result.Records = append(result.Records, res.record)
		case lineSkipped:
			result.Skipped = append(result.Skipped, SkippedLine{Line: lineNo, Reason: res.reason})
		}
	}
	return result, nil
}

// parseLine converts one data line. Structural defects (a timestamp no
// grammar accepts, a mapped column that is absent) are returned as errors and
// abort the parse. A field that does not coerce is reported as a skipped line.
// A blank line has an empty timestamp and so fails the grammar.
func (l layout) parseLine(lineNo int, line string) (lineResult, error) {
	line = strings.TrimSuffix(line, "\n")
	cols := strings.Split(line, ",")

	var raw string
	if l.timestampColumn < len(cols) {
		raw = cols[l.timestampColumn]
	}
	ts, ok := parseTimestamp(raw, l.grammars)
	if !ok {
		return lineResult{}, &TimestampError{Line: lineNo, Value: raw}
	}
	ts = ts.Add(l.correction)

	if err := l.checkColumns(lineNo, cols); err != nil {
		return lineResult{}, err
	}

	fields := make(map[string]float64, len(l.fields))
	for _, c := range l.fields {
		v, err := parseNumber(cols[c.index])
		if err != nil {
			return skip(fmt.Errorf("field %s: %w", c.name, err)), nil
		}
		fields[c.name] = v
	}

	tags := make(map[string]string, len(l.tags))
	for _, c := range l.tags {
		tags[c.name] = cols[c.index]
	}

	return lineResult{
		outcome: lineAccepted,
		record: MeasurementRecord{
			Time:        ts,
			Measurement: MeasurementName,
			Fields:      fields,
			Tags:        tags,
		},
	}, nil
}

// checkColumns returns a *ColumnError for the first mapped column, in column
// order, that the line does not have.
func (l layout) checkColumns(lineNo int, cols []string) error {
	var missing *column
	for _, set := range [][]column{l.tags, l.fields} {
		for i := range set {
			if set[i].index >= len(cols) && (missing == nil || set[i].index < missing.index) {
				missing = &set[i]
			}
		}
	}
	if missing == nil {
		return nil
	}
	return &ColumnError{Line: lineNo, Column: missing.name, Index: missing.index, Got: len(cols)}
}

func skip(reason error) lineResult {
	return lineResult{outcome: lineSkipped, reason: reason}
}

// parseNumber accepts a decimal with optional surrounding whitespace.
// NaN and infinities parse but cannot be stored as fields, so they are rejected.
func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q: %w", s, errNotFinite)
	}
	return v, nil
}
