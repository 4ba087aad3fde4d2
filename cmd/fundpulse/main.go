package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"fundpulse/internal/amqp"
	"fundpulse/internal/backend"
	"fundpulse/internal/cli"
	apphttp "fundpulse/internal/http"
	"fundpulse/internal/log"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger.Logger)

	ctx := context.Background()

	feedCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid feed configuration", "error", err)
		os.Exit(1)
	}

	factory := backend.NewFactory(logger.Logger)
	result, err := factory.CreateFeed(ctx, feedCfg)
	if err != nil {
		logger.Error("Failed to initialize feed backend", "error", err, "backend", cfg.FeedBackend)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer func() {
			if err := result.Cleanup(); err != nil {
				logger.Error("Feed cleanup failed", "error", err)
			}
		}()
	}

	// AMQP is optional; without it manual refreshes stay local to this
	// instance.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, refreshes stay local", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
			logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	}

	opts := apphttp.Options{
		Addr:             ":" + cfg.Port,
		Feed:             result.Feed,
		FetchTimeout:     cfg.FeedTimeout,
		AllocationMinPct: cfg.AllocationMinPct,
		DefaultSheet:     cfg.DefaultSheet,
		DefaultInvestor:  cfg.DefaultInvestor,
	}
	if amqpClient != nil {
		opts.Refresh = amqpClient
	}

	srv := apphttp.NewServer(opts)

	// Configure server timeouts and limits. WriteTimeout stays disabled
	// because the event stream holds its response open indefinitely.
	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 120 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	shutdownCtx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(stopCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	logger.Info("Starting fundpulse server",
		"port", cfg.Port,
		"backend", cfg.FeedBackend,
		"default_sheet", cfg.DefaultSheet)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
