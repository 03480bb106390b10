package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/nova-pm-etl/internal/adapter/http"
	"github.com/couchcryptid/nova-pm-etl/internal/adapter/influx"
	kafkaadapter "github.com/couchcryptid/nova-pm-etl/internal/adapter/kafka"
	"github.com/couchcryptid/nova-pm-etl/internal/adapter/postgres"
	"github.com/couchcryptid/nova-pm-etl/internal/config"
	"github.com/couchcryptid/nova-pm-etl/internal/observability"
	"github.com/couchcryptid/nova-pm-etl/internal/pipeline"
	"github.com/couchcryptid/nova-pm-etl/internal/scheduler"
	"github.com/couchcryptid/nova-pm-etl/internal/source"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := source.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to create source", "kind", cfg.SourceKind, "error", err)
		return 1
	}

	sink := influx.NewSink(cfg, logger)
	defer sink.Close()

	opts := []pipeline.Option{}

	// Kafka publishing is feature-flagged via KAFKA_ENABLED / KAFKA_TOPIC.
	if cfg.KafkaEnabled {
		publisher := kafkaadapter.NewPublisher(cfg, logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		opts = append(opts, pipeline.WithPublisher(publisher))
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	if cfg.LedgerEnabled() {
		ledger, err := postgres.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Error("failed to connect ingest ledger", "error", err)
			return 1
		}
		defer ledger.Close()
		opts = append(opts, pipeline.WithLedger(ledger))
		logger.Info("ingest ledger enabled")
	}

	target := pipeline.Target{Bucket: cfg.InfluxBucket, Org: cfg.InfluxOrg}
	p := pipeline.New(src, sink, target, logger, metrics, opts...)

	if cfg.ScheduleInterval == 0 {
		report, err := p.Run(ctx)
		if err != nil {
			logger.Error("ingest run failed", "run_id", report.ID, "failures", report.Failures(), "error", err)
			return 1
		}
		return 0
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start periodic ingest.
	sched := scheduler.New(p, cfg.ScheduleInterval, logger)
	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		return 1
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return 0
}
