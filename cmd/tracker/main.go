package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/storm-cell-tracker/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-cell-tracker/internal/adapter/kafka"
	"github.com/couchcryptid/storm-cell-tracker/internal/adapter/mapbox"
	"github.com/couchcryptid/storm-cell-tracker/internal/adapter/statestore"
	"github.com/couchcryptid/storm-cell-tracker/internal/config"
	"github.com/couchcryptid/storm-cell-tracker/internal/detect"
	"github.com/couchcryptid/storm-cell-tracker/internal/domain"
	"github.com/couchcryptid/storm-cell-tracker/internal/observability"
	"github.com/couchcryptid/storm-cell-tracker/internal/pipeline"
	"github.com/couchcryptid/storm-cell-tracker/internal/track"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	// Place-name enrichment is feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		cached, err := mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		if err != nil {
			logger.Error("failed to create geocoding cache", "error", err)
			os.Exit(1)
		}
		geocoder = cached
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	detector := detect.NewDetector(detect.Options{
		Threshold:     cfg.ReflectivityThreshold,
		MaxIterations: cfg.MaxGrowthIterations,
		ContourStep:   cfg.ContourStep,
		HailCoreStep:  cfg.HailCoreStep,
		HailCode:      cfg.HailPrecipCode,
	}, logger, metrics)
	store := statestore.NewFileStore(cfg.StatePath, logger)
	processor := pipeline.NewProcessor(detector, track.New(logger), store, geocoder, cfg.DetectionWindow, logger, metrics)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)

	p := pipeline.New(reader, processor, writer, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, processor, logger)

	logger.Info("storm cell tracker starting",
		"source_topic", cfg.KafkaSourceTopic,
		"sink_topic", cfg.KafkaSinkTopic,
		"state_path", store.Path(),
		"threshold", cfg.ReflectivityThreshold,
		"window", !cfg.DetectionWindow.IsZero(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start tracking pipeline.
	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Let the in-flight frame finish its state save before closing the clients.
	select {
	case <-pipelineDone:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
