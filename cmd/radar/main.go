package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/storm-radar-service/internal/adapter/archive"
	httpadapter "github.com/couchcryptid/storm-radar-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-radar-service/internal/adapter/kafka"
	"github.com/couchcryptid/storm-radar-service/internal/cache"
	"github.com/couchcryptid/storm-radar-service/internal/colormap"
	"github.com/couchcryptid/storm-radar-service/internal/config"
	"github.com/couchcryptid/storm-radar-service/internal/domain"
	"github.com/couchcryptid/storm-radar-service/internal/fetch"
	"github.com/couchcryptid/storm-radar-service/internal/observability"
	"github.com/couchcryptid/storm-radar-service/internal/pipeline"
	"github.com/couchcryptid/storm-radar-service/internal/station"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	colors, err := colormap.Default(domain.Reflectivity)
	if err != nil {
		logger.Error("failed to load color tables", "error", err)
		os.Exit(1)
	}
	site := station.MustLookup(cfg.Station)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := cache.Open(ctx, cache.Options{
		Dir:      cfg.CacheDir,
		MaxBytes: cfg.CacheMaxBytes,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to open cache", "dir", cfg.CacheDir, "error", err)
		os.Exit(1)
	}

	client := archive.NewClient(cfg.ArchiveBaseURL, cfg.ArchiveTimeout, metrics, logger)
	svc := fetch.New(client, store, fetch.Options{
		Retry: fetch.RetryPolicy{
			MaxRetries: cfg.RetryMaxAttempts,
			BaseDelay:  cfg.RetryBaseDelay,
			MaxDelay:   cfg.RetryMaxDelay,
		},
		MaxConcurrent: cfg.MaxConcurrentFetches,
		PollInterval:  cfg.PollInterval,
	}, metrics, logger)

	// Publishing is feature-flagged via KAFKA_ENABLED.
	var publisher pipeline.Publisher = pipeline.LogPublisher{Logger: logger}
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	p := pipeline.New(svc, publisher, site, colors, logger, metrics)
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, store, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start radar pipeline.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("cache close error", "error", err)
	}

	logger.Info("shutdown complete")
}
