package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/nova-pm-etl/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS ingested_files (
    name        TEXT PRIMARY KEY,
    run_id      UUID NOT NULL,
    variant     TEXT NOT NULL DEFAULT '',
    outcome     TEXT NOT NULL,
    records     INTEGER NOT NULL,
    skipped     INTEGER NOT NULL,
    ingested_at TIMESTAMPTZ NOT NULL
)`

const seenSQL = `SELECT EXISTS (SELECT 1 FROM ingested_files WHERE name = $1)`

const recordSQL = `INSERT INTO ingested_files (name, run_id, variant, outcome, records, skipped, ingested_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (name) DO UPDATE
SET run_id = EXCLUDED.run_id,
    variant = EXCLUDED.variant,
    outcome = EXCLUDED.outcome,
    records = EXCLUDED.records,
    skipped = EXCLUDED.skipped,
    ingested_at = EXCLUDED.ingested_at`

// querier is the subset of *pgxpool.Pool used by the ledger.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger tracks which sensor log files were already ingested.
// It implements pipeline.Ledger.
type Ledger struct {
	db     querier
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens a connection pool and makes sure the ledger table exists.
func Connect(ctx context.Context, databaseURL string, logger *slog.Logger) (*Ledger, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect ledger database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping ledger database: %w", err)
	}

	l := &Ledger{db: pool, pool: pool, logger: logger}
	if err := l.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return l, nil
}

// EnsureSchema creates the ledger table if it is missing.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create ledger table: %w", err)
	}
	return nil
}

// Seen reports whether a file with this name was recorded before.
func (l *Ledger) Seen(ctx context.Context, name string) (bool, error) {
	var seen bool
	if err := l.db.QueryRow(ctx, seenSQL, name).Scan(&seen); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query ledger for %s: %w", name, err)
	}
	return seen, nil
}

// Record upserts the outcome of one file.
func (l *Ledger) Record(ctx context.Context, runID string, r domain.FileReport) error {
	_, err := l.db.Exec(ctx, recordSQL,
		r.Name, runID, r.Variant, string(r.Outcome), r.Records, r.Skipped, r.At,
	)
	if err != nil {
		return fmt.Errorf("record %s in ledger: %w", r.Name, err)
	}
	l.logger.Debug("ledger updated", "file", r.Name, "outcome", r.Outcome)
	return nil
}

func (l *Ledger) Close() {
	if l.pool != nil {
		l.pool.Close()
	}
}
