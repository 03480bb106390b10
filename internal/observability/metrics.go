package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "novapm_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ingest pipeline.
type Metrics struct {
	FilesProcessed  *prometheus.CounterVec // labels: outcome, variant
	RecordsParsed   prometheus.Counter
	LinesSkipped    prometheus.Counter
	RecordsWritten  prometheus.Counter
	SinkErrors      prometheus.Counter
	PublishErrors   prometheus.Counter
	RunInProgress   prometheus.Gauge
	LastRunFinished prometheus.Gauge

	WriteDuration prometheus.Histogram
	RunDuration   prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FilesProcessed,
		m.RecordsParsed,
		m.LinesSkipped,
		m.RecordsWritten,
		m.SinkErrors,
		m.PublishErrors,
		m.RunInProgress,
		m.LastRunFinished,
		m.WriteDuration,
		m.RunDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FilesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Sensor log files handled, by outcome and detected layout.",
		}, []string{"outcome", "variant"}),
		RecordsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_parsed_total",
			Help:      "Measurement records produced by the parser.",
		}),
		LinesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_skipped_total",
			Help:      "Data lines dropped because a field failed to coerce.",
		}),
		RecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Measurement records accepted by InfluxDB.",
		}),
		SinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed batch writes to InfluxDB.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed record publishes to Kafka.",
		}),
		RunInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_in_progress",
			Help:      "1 while an ingest run is active, 0 otherwise.",
		}),
		LastRunFinished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_finished_timestamp_seconds",
			Help:      "Unix time the last ingest run finished.",
		}),
		WriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_duration_seconds",
			Help:      "Duration of one synchronous batch write to InfluxDB.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 150},
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete ingest run over all listed files.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		}),
	}
}
