// Package main provides the price ingestion entry point. By default it runs
// once and exits; with -schedule it keeps ingesting every INGEST_INTERVAL.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wallet-pnl/internal/adapter"
	"github.com/wallet-pnl/internal/app"
	"github.com/wallet-pnl/internal/config"
	"github.com/wallet-pnl/internal/ingest"
	"github.com/wallet-pnl/internal/storage"
	"github.com/wallet-pnl/internal/worker"
)

func main() {
	schedule := flag.Bool("schedule", false, "Keep running and ingest every INGEST_INTERVAL")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := app.InitLogging(cfg)

	prices, err := app.OpenPrices(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open price store")
	}
	defer prices.Close()

	opts, err := ingest.OptionsFromConfig(&cfg.Ingest)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load ingest options")
	}

	// Runs are locked and recorded in Redis when it is reachable
	var state ingest.RunState
	store, closeState, err := app.OpenIngestState(cfg)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, running without ingest lock")
	} else {
		defer closeState()
		state = store
	}

	coingecko := adapter.NewCoinGeckoClient(&cfg.CoinGecko, nil)
	ingester := ingest.NewIngester(coingecko, prices.Backend, state, opts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !*schedule {
		summary, err := ingester.Run(ctx)
		if err != nil {
			if errors.Is(err, storage.ErrLockHeld) {
				logger.Warn("Another ingest run holds the lock, exiting")
				return
			}
			logger.WithError(err).Error("Ingest run failed")
			os.Exit(1)
		}
		if len(summary.Failures) > 0 && len(summary.TokensIngested) == 0 {
			os.Exit(1)
		}
		return
	}

	w, err := worker.NewIngestWorker(&worker.IngestWorkerConfig{
		Runner:   ingester,
		Interval: cfg.Ingest.Interval,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create ingest worker")
	}
	if err := w.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start ingest worker")
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := w.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Ingest worker did not stop cleanly")
	}
}
