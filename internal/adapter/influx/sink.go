package influx

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/couchcryptid/nova-pm-etl/internal/config"
	"github.com/couchcryptid/nova-pm-etl/internal/domain"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Sink writes measurement records to InfluxDB.
// It implements pipeline.Sink and pipeline.Pinger.
type Sink struct {
	client influxdb2.Client
	logger *slog.Logger
}

// NewSink creates an InfluxDB client for the configured host. The request
// timeout applies to each whole batch write.
func NewSink(cfg *config.Config, logger *slog.Logger) *Sink {
	return newSink(cfg.InfluxURL(), cfg.InfluxToken, timeoutSeconds(cfg.InfluxTimeout), logger)
}

// timeoutSeconds rounds d up to whole seconds; the client treats 0 as no timeout.
func timeoutSeconds(d time.Duration) uint {
	if d <= 0 {
		return 1
	}
	return uint(math.Ceil(d.Seconds()))
}

func newSink(url, token string, timeoutSeconds uint, logger *slog.Logger) *Sink {
	opts := influxdb2.DefaultOptions().SetHTTPRequestTimeout(timeoutSeconds)
	return &Sink{
		client: influxdb2.NewClientWithOptions(url, token, opts),
		logger: logger,
	}
}

// Write sends all records as one blocking request. The bucket and org are
// passed through unchanged.
func (s *Sink) Write(ctx context.Context, bucket, org string, records []domain.MeasurementRecord) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*write.Point, len(records))
	for i := range records {
		points[i] = toPoint(records[i])
	}

	w := s.client.WriteAPIBlocking(org, bucket)
	if err := w.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("influx write %d points to %s/%s: %w", len(points), org, bucket, err)
	}
	s.logger.Debug("influx batch written", "points", len(points), "bucket", bucket)
	return nil
}

// Ping reports whether the InfluxDB server answers.
func (s *Sink) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influx ping: %w", err)
	}
	if !ok {
		return fmt.Errorf("influx ping: server not ready")
	}
	return nil
}

func (s *Sink) Close() error {
	s.client.Close()
	return nil
}

func toPoint(r domain.MeasurementRecord) *write.Point {
	return influxdb2.NewPoint(r.Measurement, r.Tags, r.InfluxFields(), r.Time)
}
