package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/nova-pm-etl/internal/domain"
	"github.com/couchcryptid/nova-pm-etl/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Source lists and opens sensor log files.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Sink stores a whole batch of records in one synchronous call.
type Sink interface {
	Write(ctx context.Context, bucket, org string, records []domain.MeasurementRecord) error
}

// Pinger is implemented by sinks that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Publisher forwards stored records to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, runID string, records []domain.MeasurementRecord) error
}

// Ledger remembers which files were already ingested.
type Ledger interface {
	Seen(ctx context.Context, name string) (bool, error)
	Record(ctx context.Context, runID string, report domain.FileReport) error
}

// Target names the InfluxDB destination. Both values are passed through untouched.
type Target struct {
	Bucket string
	Org    string
}

// Pipeline reads sensor logs from a source, parses them and writes the
// records to the sink, one file at a time.
type Pipeline struct {
	source    Source
	sink      Sink
	target    Target
	publisher Publisher
	ledger    Ledger
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock

	runMu   sync.Mutex
	ready   atomic.Bool
	lastRun atomic.Pointer[domain.RunReport]
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithPublisher forwards written records to p after each successful sink write.
func WithPublisher(p Publisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

// WithLedger skips files the ledger has already seen and records new ones.
func WithLedger(l Ledger) Option {
	return func(pl *Pipeline) { pl.ledger = l }
}

// WithClock swaps the time source used for reports and durations.
func WithClock(c clockwork.Clock) Option {
	return func(pl *Pipeline) { pl.clock = c }
}

// New creates a Pipeline with the given stages and observability.
func New(src Source, sink Sink, target Target, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:  src,
		sink:    sink,
		target:  target,
		logger:  logger,
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ready reports whether at least one ingest run has completed.
func (p *Pipeline) Ready() bool {
	return p.ready.Load()
}

// LastRun returns the report of the most recently completed run.
func (p *Pipeline) LastRun() (domain.RunReport, bool) {
	r := p.lastRun.Load()
	if r == nil {
		return domain.RunReport{}, false
	}
	return *r, true
}

// CheckReadiness returns nil once a run has completed and the sink is reachable.
func (p *Pipeline) CheckReadiness(ctx context.Context) error {
	if !p.ready.Load() {
		return errors.New("no ingest run has completed yet")
	}
	if pinger, ok := p.sink.(Pinger); ok {
		if err := pinger.Ping(ctx); err != nil {
			return fmt.Errorf("sink unreachable: %w", err)
		}
	}
	return nil
}

// Run ingests every file the source lists, in order. A failing file does not
// stop the run; all failures are returned joined.
func (p *Pipeline) Run(ctx context.Context) (domain.RunReport, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	report := domain.RunReport{ID: uuid.NewString(), StartedAt: p.clock.Now()}
	logger := p.logger.With("run_id", report.ID)

	p.metrics.RunInProgress.Set(1)
	defer p.metrics.RunInProgress.Set(0)

	names, err := p.source.List(ctx)
	if err != nil {
		return report, fmt.Errorf("list sensor logs: %w", err)
	}
	logger.Info("ingest run started", "files", len(names))

	var errs []error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		fr, err := p.ingest(ctx, report.ID, name)
		report.Files = append(report.Files, fr)
		if err != nil {
			logger.Error("ingest file failed", "file", name, "outcome", fr.Outcome, "error", err)
			errs = append(errs, err)
		}
	}

	report.FinishedAt = p.clock.Now()
	p.metrics.RunDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	p.metrics.LastRunFinished.Set(float64(report.FinishedAt.Unix()))
	last := report
	p.lastRun.Store(&last)
	p.ready.Store(true)

	logger.Info("ingest run finished",
		"files", len(report.Files),
		"records_written", report.Written(),
		"failures", len(errs),
	)
	return report, errors.Join(errs...)
}

// IngestFile ingests a single named file outside of a full run.
func (p *Pipeline) IngestFile(ctx context.Context, name string) (domain.FileReport, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.ingest(ctx, uuid.NewString(), name)
}

func (p *Pipeline) ingest(ctx context.Context, runID, name string) (domain.FileReport, error) {
	logger := p.logger.With("run_id", runID, "file", name)
	fr := domain.FileReport{Name: name}

	if p.ledger != nil {
		seen, err := p.ledger.Seen(ctx, name)
		if err != nil {
			return p.finish(fr, domain.OutcomeReadError), fmt.Errorf("check ledger for %s: %w", name, err)
		}
		if seen {
			logger.Debug("already ingested, skipping")
			return p.finish(fr, domain.OutcomeDuplicate), nil
		}
	}

	raw, err := p.read(ctx, name)
	if err != nil {
		return p.finish(fr, domain.OutcomeReadError), err
	}

	result, err := domain.Parse(raw)
	if err != nil {
		outcome := domain.OutcomeParseError
		if errors.Is(err, domain.ErrUnsupportedFormat) {
			outcome = domain.OutcomeUnsupported
		}
		return p.finish(fr, outcome), fmt.Errorf("parse %s: %w", name, err)
	}

	if result.Empty {
		logger.Info("sensor log has no data")
		fr = p.finish(fr, domain.OutcomeEmpty)
		p.remember(ctx, logger, runID, fr)
		return fr, nil
	}

	fr.Variant = result.Variant.String()
	fr.Records = len(result.Records)
	fr.Skipped = len(result.Skipped)
	p.metrics.RecordsParsed.Add(float64(fr.Records))
	p.metrics.LinesSkipped.Add(float64(fr.Skipped))
	for _, s := range result.Skipped {
		logger.Debug("line skipped", "line", s.Line, "reason", s.Reason)
	}

	if len(result.Records) > 0 {
		start := p.clock.Now()
		if err := p.sink.Write(ctx, p.target.Bucket, p.target.Org, result.Records); err != nil {
			p.metrics.SinkErrors.Inc()
			return p.finish(fr, domain.OutcomeWriteError), fmt.Errorf("write %s: %w", name, err)
		}
		p.metrics.WriteDuration.Observe(p.clock.Since(start).Seconds())
		p.metrics.RecordsWritten.Add(float64(len(result.Records)))

		if p.publisher != nil {
			if err := p.publisher.Publish(ctx, runID, result.Records); err != nil {
				p.metrics.PublishErrors.Inc()
				logger.Warn("publish records failed", "error", err)
			}
		}
	}

	logger.Info("sensor log ingested",
		"variant", fr.Variant,
		"records", fr.Records,
		"skipped", fr.Skipped,
	)
	fr = p.finish(fr, domain.OutcomeWritten)
	p.remember(ctx, logger, runID, fr)
	return fr, nil
}

func (p *Pipeline) read(ctx context.Context, name string) (domain.RawFile, error) {
	rc, err := p.source.Open(ctx, name)
	if err != nil {
		return domain.RawFile{}, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	raw, err := domain.ReadRawFile(rc)
	if err != nil {
		return domain.RawFile{}, fmt.Errorf("read %s: %w", name, err)
	}
	return raw, nil
}

// finish stamps the outcome and counts the file.
func (p *Pipeline) finish(fr domain.FileReport, outcome domain.Outcome) domain.FileReport {
	fr.Outcome = outcome
	fr.At = p.clock.Now()
	p.metrics.FilesProcessed.WithLabelValues(string(outcome), fr.Variant).Inc()
	return fr
}

// remember records a handled file in the ledger. Failures are logged only:
// the data is already stored and a later rerun overwrites identical points.
func (p *Pipeline) remember(ctx context.Context, logger *slog.Logger, runID string, fr domain.FileReport) {
	if p.ledger == nil {
		return
	}
	if err := p.ledger.Record(ctx, runID, fr); err != nil {
		logger.Warn("record ingest in ledger failed", "error", err)
	}
}
