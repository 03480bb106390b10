// Command inspect parses Nova PM sensor logs offline and reports what the ETL
// service would write for each file: detected layout, record count and the
// lines that would be skipped. Nothing is sent to InfluxDB.
//
// Usage:
//
//	go run ./cmd/inspect data/*.csv
//	go run ./cmd/inspect -json -skipped data/legacy.csv
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/nova-pm-etl/internal/domain"
)

// fileResult is the JSON shape printed per file with -json.
type fileResult struct {
	Path    string                     `json:"path"`
	Variant string                     `json:"variant,omitempty"`
	Records []domain.MeasurementRecord `json:"records,omitempty"`
	Count   int                        `json:"count"`
	Skipped []skippedLine              `json:"skipped,omitempty"`
	Empty   bool                       `json:"empty,omitempty"`
	Error   string                     `json:"error,omitempty"`
}

type skippedLine struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

func main() {
	asJSON := flag.Bool("json", false, "print parsed records as JSON")
	showSkipped := flag.Bool("skipped", false, "list skipped lines with their reason")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: inspect [-json] [-skipped] FILE...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	os.Exit(run(os.Stdout, flag.Args(), *asJSON, *showSkipped))
}

// run inspects every path and returns the process exit code: 0 when every
// file parsed, 1 otherwise.
func run(w io.Writer, paths []string, asJSON, showSkipped bool) int {
	code := 0
	results := make([]fileResult, 0, len(paths))
	for _, path := range paths {
		res := inspect(path, asJSON || showSkipped)
		if res.Error != "" {
			code = 1
		}
		results = append(results, res)
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: encode results: %v\n", err)
			return 1
		}
		return code
	}

	for _, res := range results {
		switch {
		case res.Error != "":
			fmt.Fprintf(w, "%-40s FAIL  %s\n", res.Path, res.Error)
		case res.Empty:
			fmt.Fprintf(w, "%-40s EMPTY\n", res.Path)
		default:
			fmt.Fprintf(w, "%-40s %-8s %d records, %d skipped\n", res.Path, res.Variant, res.Count, len(res.Skipped))
		}
		if showSkipped {
			for _, s := range res.Skipped {
				fmt.Fprintf(w, "    line %d: %s\n", s.Line, s.Reason)
			}
		}
	}
	return code
}

func inspect(path string, withDetail bool) fileResult {
	res := fileResult{Path: path}

	raw, err := domain.LoadRawFile(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	parsed, err := domain.Parse(raw)
	if err != nil {
		res.Error = describe(err)
		return res
	}
	if parsed.Empty {
		res.Empty = true
		return res
	}

	res.Variant = parsed.Variant.String()
	res.Count = len(parsed.Records)
	for _, s := range parsed.Skipped {
		res.Skipped = append(res.Skipped, skippedLine{Line: s.Line, Reason: s.Reason.Error()})
	}
	if withDetail {
		res.Records = parsed.Records
	}
	return res
}

func describe(err error) string {
	var tsErr *domain.TimestampError
	if errors.As(err, &tsErr) {
		return fmt.Sprintf("bad timestamp on line %d: %q", tsErr.Line, tsErr.Value)
	}
	return err.Error()
}
