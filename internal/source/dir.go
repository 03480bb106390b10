package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Dir reads sensor logs from a local directory. Subdirectories are ignored.
type Dir struct {
	root    string
	pattern string
}

func NewDir(root, pattern string) *Dir {
	return &Dir{root: root, pattern: pattern}
}

// List returns matching file names in lexical order.
func (d *Dir) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.root, err)
	}

	var names []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() {
			continue
		}
		ok, err := matchBase(d.pattern, e.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Open opens a file previously returned by List.
func (d *Dir) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(d.root, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("open sensor log: %w", err)
	}
	return f, nil
}
