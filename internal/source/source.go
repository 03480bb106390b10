// Package source lists and opens sensor log files from a local directory or
// an S3-compatible bucket.
package source

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/couchcryptid/nova-pm-etl/internal/config"
)

// Source lists and opens sensor log files. It matches pipeline.Source.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// New builds the source selected by SOURCE_KIND.
func New(ctx context.Context, cfg *config.Config) (Source, error) {
	switch cfg.SourceKind {
	case config.SourceDir:
		return NewDir(cfg.InputDir, cfg.InputPattern), nil
	case config.SourceS3:
		s3src, err := NewS3(ctx, S3Options{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UseSSL:          cfg.S3UseSSL,
			Pattern:         cfg.InputPattern,
		})
		if err != nil {
			return nil, err
		}
		return s3src, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.SourceKind)
	}
}

// matchBase applies a glob pattern to the last element of a slash-separated name.
func matchBase(pattern, name string) (bool, error) {
	ok, err := path.Match(pattern, path.Base(name))
	if err != nil {
		return false, fmt.Errorf("bad input pattern %q: %w", pattern, err)
	}
	return ok, nil
}
