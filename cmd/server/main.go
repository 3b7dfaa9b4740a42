// Package main provides the API server entry point for the wallet PnL service.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wallet-pnl/internal/adapter"
	"github.com/wallet-pnl/internal/api"
	"github.com/wallet-pnl/internal/app"
	"github.com/wallet-pnl/internal/config"
	"github.com/wallet-pnl/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := app.InitLogging(cfg)
	logger.Info("Wallet PnL API server starting")

	prices, err := app.OpenPrices(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open price store")
	}
	defer prices.Close()

	checks := map[string]api.HealthCheck{
		prices.Name: prices.Ping,
	}

	deps := api.Dependencies{Checks: checks}

	// Redis only backs the ingest status endpoint; the API works without it
	state, closeState, err := app.OpenIngestState(cfg)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, ingest status disabled")
	} else {
		defer closeState()
		deps.IngestStatus = state
	}

	if cfg.Allium.APIKey == "" {
		logger.Warn("API_KEY is not set; balance requests will be rejected upstream")
	}
	allium := adapter.NewAlliumClient(&cfg.Allium, nil)
	deps.Upstreams = []*adapter.Provider{allium.Provider()}

	pnlService := service.NewPnLService(allium, prices.Backend, &cfg.PnL)

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    cfg.Server.RequestTimeout + 15*time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RequestTimeout:  cfg.Server.RequestTimeout,
		RateLimitRPS:    cfg.Server.RateLimitRPS,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
	}

	server := api.NewServer(serverConfig, pnlService, deps)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host":       cfg.Server.Host,
		"port":       cfg.Server.Port,
		"priceStore": prices.Name,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
