package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"moneta/internal/amqp"
	"moneta/internal/config"
	"moneta/internal/services"
	"moneta/internal/storage"
)

func main() {
	// Load .env for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting moneta-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var pub services.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without event publishing", "error", err)
		} else {
			defer amqpClient.Close()
			pub = amqpClient
		}
	}

	processor := services.NewMonthlyProcessor(repo, services.DefaultScorePolicy(), pub)
	settings := cfg.Settings()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Month tick configured",
		"interval", cfg.TickInterval,
		"fiscal_start_day", settings.FiscalMonthStartDay,
		"sqlite_db", cfg.SQLiteDBPath)

	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()

	// Run an initial tick on startup so a restart never misses a month
	// boundary.
	if err := processor.RunMonthTick(ctx, time.Now(), settings, time.Local); err != nil {
		logger.Error("Initial month tick failed", "error", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if err := processor.RunMonthTick(ctx, now, settings, time.Local); err != nil {
					logger.Error("Month tick failed", "error", err)
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()
	logger.Info("moneta-worker shutdown complete")
}
