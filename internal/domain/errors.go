package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned when the header column count matches no known layout.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrTimestampGrammar is wrapped by every TimestampError.
	ErrTimestampGrammar = errors.New("timestamp matches no known grammar")

	// ErrMissingColumn is wrapped by every ColumnError.
	ErrMissingColumn = errors.New("missing column")
)

// TimestampError reports a data line whose timestamp could not be parsed.
// It is fatal for the whole parse.
type TimestampError struct {
	Line  int // 1-based line number in the file, header is line 1
	Value string
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, ErrTimestampGrammar, e.Value)
}

func (e *TimestampError) Unwrap() error {
	return ErrTimestampGrammar
}

// ColumnError reports a data line with fewer columns than its layout maps.
// Like a TimestampError it is fatal for the whole parse.
type ColumnError struct {
	Line   int
	Column string // field or tag name of the first absent column
	Index  int
	Got    int // columns present on the line
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("line %d: %s %q (column %d, line has %d)", e.Line, ErrMissingColumn, e.Column, e.Index, e.Got)
}

func (e *ColumnError) Unwrap() error {
	return ErrMissingColumn
}

// SkippedLine is a data line dropped because one of its fields did not coerce.
type SkippedLine struct {
	Line   int
	Reason error
}
