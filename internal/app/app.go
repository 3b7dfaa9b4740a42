// Package app wires configuration into the stores and services shared by the
// command line entry points.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/wallet-pnl/internal/config"
	"github.com/wallet-pnl/internal/logging"
	"github.com/wallet-pnl/internal/storage"
	"github.com/wallet-pnl/internal/types"
)

// PriceBackend reads and writes the hourly price history
type PriceBackend interface {
	QueryPrices(ctx context.Context, tokenID string, start, end time.Time) ([]types.PricePoint, error)
	UpsertPrices(ctx context.Context, tokenID string, points []types.PricePoint) (int, error)
}

// Prices is an opened price backend
type Prices struct {
	Backend PriceBackend
	Name    string
	Ping    func(ctx context.Context) error
	close   func()
}

// Close releases the backend's connections
func (p *Prices) Close() {
	if p.close != nil {
		p.close()
	}
}

// OpenPrices connects to the price store selected by PRICE_STORE
func OpenPrices(cfg *config.Config) (*Prices, error) {
	switch cfg.PriceStore.Backend {
	case config.PriceStoreClickHouse:
		db, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		return &Prices{
			Backend: storage.NewClickHousePriceRepository(db),
			Name:    config.PriceStoreClickHouse,
			Ping:    db.Ping,
			close: func() {
				if err := db.Close(); err != nil {
					logging.GetGlobalLogger().WithError(err).Warn("Error closing ClickHouse connection")
				}
			},
		}, nil

	case config.PriceStorePostgres:
		db, err := storage.NewPostgresDB(&cfg.Database.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		return &Prices{
			Backend: storage.NewPriceRepository(db),
			Name:    config.PriceStorePostgres,
			Ping:    db.Ping,
			close:   db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown price store backend: %s", cfg.PriceStore.Backend)
	}
}

// OpenIngestState connects to Redis for the ingest lock and run history.
// Without Redis the caller runs unlocked; the error says why.
func OpenIngestState(cfg *config.Config) (*storage.IngestStateStore, func(), error) {
	store, err := storage.NewRedisStore(&cfg.Database.Redis)
	if err != nil {
		return nil, func() {}, err
	}
	closeFn := func() {
		if err := store.Close(); err != nil {
			logging.GetGlobalLogger().WithError(err).Warn("Error closing Redis connection")
		}
	}
	return storage.NewIngestStateStore(store), closeFn, nil
}

// InitLogging installs the global logger from config
func InitLogging(cfg *config.Config) *logging.Logger {
	logger := logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Debug("Structured logging initialized")
	return logger
}
