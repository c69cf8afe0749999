package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/minute/internal/api"
	"github.com/MikeSquared-Agency/minute/internal/config"
	"github.com/MikeSquared-Agency/minute/internal/extract"
	"github.com/MikeSquared-Agency/minute/internal/hermes"
	"github.com/MikeSquared-Agency/minute/internal/pipeline"
	"github.com/MikeSquared-Agency/minute/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("minute starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// Extraction client
	if cfg.AnthropicAPIKey == "" {
		slog.Error("ANTHROPIC_API_KEY is required")
		os.Exit(1)
	}
	ext := extract.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, extract.ClientOpts{
		RatePerSec: cfg.ExtractRatePerSec,
		MaxRetries: cfg.ExtractRetries,
	}, slog.Default())
	slog.Info("extraction client ready", "model", cfg.AnthropicModel)

	// NATS/Hermes
	hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer hermesClient.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Pipeline, the main processing loop
	pipe := pipeline.New(cfg, db, ext, hermesClient, slog.Default())

	// Subscribe to thread-ingest events
	if err := hermesClient.Subscribe(hermes.SubjectThreadIngested, pipe.HandleThreadIngested); err != nil {
		slog.Error("failed to subscribe to thread events", "error", err)
		os.Exit(1)
	}

	// Subscribe to review verdicts
	if err := hermesClient.Subscribe(hermes.SubjectReviewVerdict, pipe.HandleReviewVerdict); err != nil {
		slog.Error("failed to subscribe to review verdicts", "error", err)
		os.Exit(1)
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, db, pipe)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Announce registration
	if err := hermesClient.Publish(hermes.SubjectRegistered, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"port":      cfg.Port,
		"model":     cfg.AnthropicModel,
	}); err != nil {
		slog.Warn("failed to publish registration", "error", err)
	}

	slog.Info("minute ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("minute stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
