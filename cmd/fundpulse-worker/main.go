package main

import (
	"context"
	"errors"
	"os"
	"time"

	"fundpulse/internal/amqp"
	"fundpulse/internal/cli"
	"fundpulse/internal/core"
	"fundpulse/internal/feeds"
	"fundpulse/internal/feeds/google"
	"fundpulse/internal/feeds/rest"
	"fundpulse/internal/log"
	"fundpulse/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting fundpulse-worker")

	cfg := cli.LoadAndValidateConfig(logger.Logger)

	repo := cli.InitSQLite(logger.Logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// The worker pulls from the administrator's system of record: the
	// Sheets workbook when configured, otherwise the upstream API.
	var upstream feeds.Feed
	switch {
	case cfg.GoogleSpreadsheetID != "":
		sheetsClient, err := google.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		upstream = sheetsClient
		logger.Info("Syncing from Google Sheets", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	case cfg.UpstreamURL != "":
		upstream = rest.NewClient(cfg.UpstreamURL, cfg.FeedTimeout)
		logger.Info("Syncing from upstream API", "upstream", cfg.UpstreamURL)
	default:
		logger.Error("No upstream configured: set GOOGLE_SPREADSHEET_ID or UPSTREAM_URL")
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	subjects := []core.Subject{{Sheet: cfg.DefaultSheet}}
	if cfg.DefaultInvestor != "" {
		subjects = append(subjects, core.Subject{Investor: cfg.DefaultInvestor, Sheet: cfg.DefaultSheet})
	}

	// The worker answers refresh requests; it never publishes into the
	// queue it consumes.
	refreshWorker := worker.NewRefreshWorker(upstream, repo, nil, subjects, cfg.FeedTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := refreshWorker.StartupSync(ctx); err != nil {
		logger.Error("Startup sync failed", "error", err)
		// Keep running; the schedule and refresh requests will retry.
	}

	if err := refreshWorker.Start(ctx, cfg.SyncSchedule); err != nil {
		logger.Error("Failed to start sync schedule", "error", err)
		os.Exit(1)
	}

	go func() {
		handler := func(msg *amqp.RefreshMessage) error {
			return refreshWorker.HandleRefreshMessage(ctx, msg)
		}
		if err := amqpClient.ConsumeRefresh(ctx, handler); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Refresh consumption failed", "error", err)
			}
			cancel()
		}
	}()

	shutdownCtx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func() {
		refreshWorker.Stop()
		cancel()
	})

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Worker stopped gracefully")
}
