package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/nova-pm-etl/internal/domain"
	"github.com/couchcryptid/nova-pm-etl/internal/observability"
	"github.com/couchcryptid/nova-pm-etl/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	legacyLog = "Car,SerialNumber,Latitude,Longitude,PM10,PM2.5,Speed,Timestamp\n" +
		"CAR1,SN42,51.5,-0.1,12.3,8.7,5.0,\"2021-06-01 10:00:00+0100\"\n" +
		"CAR1,SN42,51.6,-0.1,oops,8.7,5.0,\"2021-06-01 10:01:00+0100\"\n"
	compactLog = "Timestamp,SerialNumber,PM2.5,PM10\n" +
		"2021-06-01T10:00:00+0100,SN7,8.7,12.3\n" +
		"2021-06-01T10:01:00+0100,SN7,8.9,12.1\n"
	badTimestampLog = "Timestamp,SerialNumber,PM2.5,PM10\n" +
		"2021-06-01 10:00:00,SN7,8.7,12.3\n"
	shortLineLog = "Timestamp,SerialNumber,PM2.5,PM10\n" +
		"2021-06-01T10:00:00+0100,SN7,8.7\n"
	unsupportedLog = "a,b,c\n1,2,3\n"
	headerOnlyLog  = "Timestamp,SerialNumber,PM2.5,PM10\n"
)

// --- mocks ---

type mockSource struct {
	files   map[string]string
	listErr error
	openErr map[string]error
}

func (m *mockSource) List(_ context.Context) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	names := make([]string, 0, len(m.files))
	for n := range m.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m *mockSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if err := m.openErr[name]; err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(m.files[name])), nil
}

type sinkCall struct {
	bucket, org string
	records     []domain.MeasurementRecord
}

type mockSink struct {
	mu      sync.Mutex
	calls   []sinkCall
	err     error
	pingErr error
}

func (m *mockSink) Write(_ context.Context, bucket, org string, records []domain.MeasurementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sinkCall{bucket: bucket, org: org, records: records})
	return m.err
}

func (m *mockSink) Ping(_ context.Context) error { return m.pingErr }

type mockPublisher struct {
	runIDs  []string
	records int
	err     error
}

func (m *mockPublisher) Publish(_ context.Context, runID string, records []domain.MeasurementRecord) error {
	m.runIDs = append(m.runIDs, runID)
	m.records += len(records)
	return m.err
}

type mockLedger struct {
	seen      map[string]bool
	recorded  []domain.FileReport
	seenErr   error
	recordErr error
}

func (m *mockLedger) Seen(_ context.Context, name string) (bool, error) {
	if m.seenErr != nil {
		return false, m.seenErr
	}
	return m.seen[name], nil
}

func (m *mockLedger) Record(_ context.Context, _ string, r domain.FileReport) error {
	m.recorded = append(m.recorded, r)
	return m.recordErr
}

var target = pipeline.Target{Bucket: "air", Org: "lab"}

func newTestPipeline(src pipeline.Source, sink pipeline.Sink, opts ...pipeline.Option) *pipeline.Pipeline {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return pipeline.New(src, sink, target, logger, observability.NewMetricsForTesting(), opts...)
}

func outcomes(r domain.RunReport) map[string]domain.Outcome {
	m := make(map[string]domain.Outcome, len(r.Files))
	for _, f := range r.Files {
		m[f.Name] = f.Outcome
	}
	return m
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	src := &mockSource{files: map[string]string{"a.csv": legacyLog, "b.csv": compactLog}}
	sink := &mockSink{}
	p := newTestPipeline(src, sink)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sink.calls, 2)
	for _, c := range sink.calls {
		assert.Equal(t, "air", c.bucket)
		assert.Equal(t, "lab", c.org)
	}
	assert.Len(t, sink.calls[0].records, 1)
	assert.Len(t, sink.calls[1].records, 2)

	want := []domain.FileReport{
		{Name: "a.csv", Variant: "legacy", Outcome: domain.OutcomeWritten, Records: 1, Skipped: 1},
		{Name: "b.csv", Variant: "compact", Outcome: domain.OutcomeWritten, Records: 2, Skipped: 0},
	}
	ignoreAt := cmp.FilterPath(func(p cmp.Path) bool { return p.Last().String() == ".At" }, cmp.Ignore())
	if diff := cmp.Diff(want, report.Files, ignoreAt); diff != "" {
		t.Errorf("file reports mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, report.Written())
	assert.NotEmpty(t, report.ID)
	assert.True(t, p.Ready())
}

func TestPipeline_Run_CompactClockCorrection(t *testing.T) {
	src := &mockSource{files: map[string]string{"b.csv": compactLog}}
	sink := &mockSink{}
	p := newTestPipeline(src, sink)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	got := sink.calls[0].records[0].Time
	assert.True(t, got.Equal(time.Date(2021, 6, 1, 2, 0, 0, 0, time.FixedZone("", 3600))), got.String())
}

func TestPipeline_Run_ContinuesPastFailures(t *testing.T) {
	src := &mockSource{
		files: map[string]string{
			"1-bad-ts.csv":      badTimestampLog,
			"1-short.csv":       shortLineLog,
			"2-unsupported.csv": unsupportedLog,
			"3-unreadable.csv":  "",
			"4-good.csv":        compactLog,
			"5-header.csv":      headerOnlyLog,
		},
		openErr: map[string]error{"3-unreadable.csv": errors.New("permission denied")},
	}
	sink := &mockSink{}
	p := newTestPipeline(src, sink)

	report, err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTimestampGrammar)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
	assert.ErrorIs(t, err, domain.ErrMissingColumn)
	assert.Contains(t, err.Error(), "permission denied")

	assert.Equal(t, map[string]domain.Outcome{
		"1-bad-ts.csv":      domain.OutcomeParseError,
		"1-short.csv":       domain.OutcomeParseError,
		"2-unsupported.csv": domain.OutcomeUnsupported,
		"3-unreadable.csv":  domain.OutcomeReadError,
		"4-good.csv":        domain.OutcomeWritten,
		"5-header.csv":      domain.OutcomeEmpty,
	}, outcomes(report))
	assert.Equal(t, 4, report.Failures())

	// Only the good file reaches the sink.
	require.Len(t, sink.calls, 1)
	assert.Len(t, sink.calls[0].records, 2)
	assert.True(t, p.Ready())
}

func TestPipeline_Run_SinkError(t *testing.T) {
	src := &mockSource{files: map[string]string{"b.csv": compactLog}}
	sink := &mockSink{err: errors.New("401 unauthorized")}
	pub := &mockPublisher{}
	ledger := &mockLedger{}
	p := newTestPipeline(src, sink, pipeline.WithPublisher(pub), pipeline.WithLedger(ledger))

	report, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401 unauthorized")
	assert.Equal(t, domain.OutcomeWriteError, report.Files[0].Outcome)
	assert.Zero(t, pub.records, "nothing is published when the write fails")
	assert.Empty(t, ledger.recorded, "failed files stay out of the ledger")
}

func TestPipeline_Run_ListError(t *testing.T) {
	p := newTestPipeline(&mockSource{listErr: errors.New("no such bucket")}, &mockSink{})

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list sensor logs")
	assert.False(t, p.Ready())
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	src := &mockSource{files: map[string]string{"b.csv": compactLog}}
	sink := &mockSink{}
	p := newTestPipeline(src, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Files)
	assert.Empty(t, sink.calls)
}

func TestPipeline_Run_AllLinesSkippedWritesNothing(t *testing.T) {
	log := "Timestamp,SerialNumber,PM2.5,PM10\n2021-06-01T10:00:00+0100,SN7,x,y\n"
	sink := &mockSink{}
	p := newTestPipeline(&mockSource{files: map[string]string{"a.csv": log}}, sink)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sink.calls)
	assert.Equal(t, domain.OutcomeWritten, report.Files[0].Outcome)
	assert.Equal(t, 1, report.Files[0].Skipped)
}

func TestPipeline_Publisher(t *testing.T) {
	src := &mockSource{files: map[string]string{"a.csv": legacyLog, "b.csv": compactLog}}
	pub := &mockPublisher{}
	p := newTestPipeline(src, &mockSink{}, pipeline.WithPublisher(pub))

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, pub.records)
	assert.Equal(t, []string{report.ID, report.ID}, pub.runIDs)
}

func TestPipeline_PublishErrorIsNotFatal(t *testing.T) {
	src := &mockSource{files: map[string]string{"b.csv": compactLog}}
	pub := &mockPublisher{err: errors.New("broker down")}
	p := newTestPipeline(src, &mockSink{}, pipeline.WithPublisher(pub))

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeWritten, report.Files[0].Outcome)
}

func TestPipeline_Ledger(t *testing.T) {
	src := &mockSource{files: map[string]string{"a.csv": legacyLog, "b.csv": compactLog, "c.csv": headerOnlyLog}}
	sink := &mockSink{}
	ledger := &mockLedger{seen: map[string]bool{"a.csv": true}}
	p := newTestPipeline(src, sink, pipeline.WithLedger(ledger))

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]domain.Outcome{
		"a.csv": domain.OutcomeDuplicate,
		"b.csv": domain.OutcomeWritten,
		"c.csv": domain.OutcomeEmpty,
	}, outcomes(report))
	require.Len(t, sink.calls, 1)

	require.Len(t, ledger.recorded, 2)
	assert.Equal(t, "b.csv", ledger.recorded[0].Name)
	assert.Equal(t, "c.csv", ledger.recorded[1].Name)
}

func TestPipeline_LedgerErrors(t *testing.T) {
	src := &mockSource{files: map[string]string{"b.csv": compactLog}}

	t.Run("seen", func(t *testing.T) {
		sink := &mockSink{}
		p := newTestPipeline(src, sink, pipeline.WithLedger(&mockLedger{seenErr: errors.New("db down")}))
		_, err := p.Run(context.Background())
		require.Error(t, err)
		assert.Empty(t, sink.calls)
	})

	t.Run("record", func(t *testing.T) {
		sink := &mockSink{}
		p := newTestPipeline(src, sink, pipeline.WithLedger(&mockLedger{recordErr: errors.New("db down")}))
		_, err := p.Run(context.Background())
		require.NoError(t, err)
		assert.Len(t, sink.calls, 1)
	})
}

func TestPipeline_IngestFile(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	src := &mockSource{files: map[string]string{"b.csv": compactLog}}
	p := newTestPipeline(src, &mockSink{}, pipeline.WithClock(clock))

	fr, err := p.IngestFile(context.Background(), "b.csv")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeWritten, fr.Outcome)
	assert.Equal(t, 2, fr.Records)
	assert.Equal(t, clock.Now(), fr.At)
	assert.False(t, p.Ready(), "a single file does not complete a run")
}

func TestPipeline_CheckReadiness(t *testing.T) {
	src := &mockSource{files: map[string]string{}}
	sink := &mockSink{}
	p := newTestPipeline(src, sink)

	require.Error(t, p.CheckReadiness(context.Background()))

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.CheckReadiness(context.Background()))

	sink.pingErr = errors.New("connection refused")
	err = p.CheckReadiness(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink unreachable")
}

func TestPipeline_LastRun(t *testing.T) {
	src := &mockSource{files: map[string]string{"b.csv": compactLog, "c.csv": unsupportedLog}}
	p := newTestPipeline(src, &mockSink{})

	_, ok := p.LastRun()
	assert.False(t, ok)

	report, err := p.Run(context.Background())
	require.Error(t, err)

	last, ok := p.LastRun()
	require.True(t, ok)
	assert.Equal(t, report.ID, last.ID)
	assert.Len(t, last.Files, 2)
	assert.Equal(t, 1, last.Failures())
}
