// Package main applies the price store schema migrations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/wallet-pnl/internal/app"
	"github.com/wallet-pnl/internal/config"
	"github.com/wallet-pnl/internal/logging"
	"github.com/wallet-pnl/internal/storage"
)

type migration func(ctx context.Context, cfg *config.Config, path string, logger *logging.Logger) error

// ClickHouse has no migrate driver wired here, so only forward runs exist
var actions = map[string]map[string]migration{
	config.PriceStorePostgres: {
		"up":      postgresUp,
		"down":    postgresDown,
		"version": postgresVersion,
	},
	config.PriceStoreClickHouse: {
		"up": clickHouseUp,
	},
}

func main() {
	action := flag.String("action", "up", "migration action: up, down, version")
	backend := flag.String("db", "", "price store: postgres or clickhouse (default: PRICE_STORE)")
	path := flag.String("path", "", "migrations directory (default: migrations/<db>)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := app.InitLogging(cfg)

	if *backend == "" {
		*backend = cfg.PriceStore.Backend
	}
	if *path == "" {
		*path = "migrations/" + *backend
	}

	run, err := lookup(*backend, *action)
	if err != nil {
		logger.WithError(err).Fatal("Invalid migration request")
	}

	logger = logger.WithFields(map[string]interface{}{
		"db":     *backend,
		"action": *action,
		"path":   *path,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := run(ctx, cfg, *path, logger); err != nil {
		logger.WithError(err).Fatal("Migration failed")
	}
}

func lookup(backend, action string) (migration, error) {
	byAction, ok := actions[backend]
	if !ok {
		return nil, fmt.Errorf("unknown database type: %s", backend)
	}
	run, ok := byAction[action]
	if !ok {
		supported := make([]string, 0, len(byAction))
		for name := range byAction {
			supported = append(supported, name)
		}
		sort.Strings(supported)
		return nil, fmt.Errorf("%s does not support action %q (supported: %s)", backend, action, strings.Join(supported, ", "))
	}
	return run, nil
}

func postgresUp(_ context.Context, cfg *config.Config, path string, logger *logging.Logger) error {
	if err := storage.RunMigrations(cfg.Database.Postgres.URL(), path); err != nil {
		return err
	}
	logger.Info("Postgres migrations applied")
	return nil
}

func postgresDown(_ context.Context, cfg *config.Config, path string, logger *logging.Logger) error {
	if err := storage.RollbackMigrations(cfg.Database.Postgres.URL(), path); err != nil {
		return err
	}
	logger.Info("Rolled back one Postgres migration")
	return nil
}

func postgresVersion(_ context.Context, cfg *config.Config, path string, logger *logging.Logger) error {
	version, dirty, err := storage.MigrationVersion(cfg.Database.Postgres.URL(), path)
	if err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{
		"version": version,
		"dirty":   dirty,
	}).Info("Postgres schema version")
	return nil
}

func clickHouseUp(ctx context.Context, cfg *config.Config, path string, logger *logging.Logger) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("migrations directory %s: %w", path, err)
	}

	db, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("Error closing ClickHouse connection")
		}
	}()

	if err := storage.RunClickHouseMigrations(ctx, db, path); err != nil {
		return err
	}
	logger.WithField("database", db.Database()).Info("ClickHouse migrations applied")
	return nil
}
