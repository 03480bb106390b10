package domain

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// newlineNormalizer folds CRLF and bare CR line endings into LF.
var newlineNormalizer = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// RawFile is the full content of one sensor log, split into lines.
// Each line keeps its trailing newline, if it had one.
type RawFile struct {
	Lines       []string
	ColumnCount int  // comma-separated fields in the header line
	DataPresent bool // false when there is at most a header line
}

// NewRawFile splits content into lines and inspects the header.
func NewRawFile(content string) RawFile {
	content = newlineNormalizer.Replace(content)

	lines := strings.SplitAfter(content, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	f := RawFile{Lines: lines}
	if len(lines) <= 1 {
		return f
	}
	f.DataPresent = true
	f.ColumnCount = len(strings.Split(lines[0], ","))
	return f
}

// ReadRawFile reads r to EOF and builds a RawFile from it.
func ReadRawFile(r io.Reader) (RawFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return RawFile{}, fmt.Errorf("read sensor log: %w", err)
	}
	return NewRawFile(string(data)), nil
}

// LoadRawFile reads the sensor log at path.
func LoadRawFile(path string) (RawFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return RawFile{}, fmt.Errorf("open sensor log: %w", err)
	}
	defer f.Close()
	return ReadRawFile(f)
}

// dataLines returns the lines after the header.
func (f RawFile) dataLines() []string {
	if len(f.Lines) <= 1 {
		return nil
	}
	return f.Lines[1:]
}
