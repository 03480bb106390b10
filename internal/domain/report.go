package domain

import "time"

// Outcome classifies how a single sensor log was handled.
type Outcome string

const (
	OutcomeWritten     Outcome = "written"
	OutcomeEmpty       Outcome = "empty"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeUnsupported Outcome = "unsupported"
	OutcomeParseError  Outcome = "parse_error"
	OutcomeWriteError  Outcome = "write_error"
	OutcomeReadError   Outcome = "read_error"
)

// Failed reports whether the outcome counts as a failed file.
func (o Outcome) Failed() bool {
	switch o {
	case OutcomeWritten, OutcomeEmpty, OutcomeDuplicate:
		return false
	default:
		return true
	}
}

// FileReport summarizes what happened to one sensor log during an ingest run.
type FileReport struct {
	Name    string    `json:"name"`
	Variant string    `json:"variant,omitempty"`
	Outcome Outcome   `json:"outcome"`
	Records int       `json:"records"`
	Skipped int       `json:"skipped"`
	At      time.Time `json:"at"`
}

// RunReport summarizes one pass over all files listed by a source.
type RunReport struct {
	ID         string       `json:"id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Files      []FileReport `json:"files"`
}

// Written returns the number of records stored during the run.
func (r RunReport) Written() int {
	n := 0
	for _, f := range r.Files {
		if f.Outcome == OutcomeWritten {
			n += f.Records
		}
	}
	return n
}

// Failures returns the number of files that did not make it into the sink.
func (r RunReport) Failures() int {
	n := 0
	for _, f := range r.Files {
		if f.Outcome.Failed() {
			n++
		}
	}
	return n
}
