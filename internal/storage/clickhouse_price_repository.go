package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wallet-pnl/internal/types"
)

// ClickHousePriceRepository stores token prices in a ReplacingMergeTree table.
// Rewrites of the same (token_id, timestamp) collapse on merge; reads use
// FINAL so they never see the superseded row.
type ClickHousePriceRepository struct {
	db *ClickHouseDB
}

// NewClickHousePriceRepository creates a new ClickHouse price repository
func NewClickHousePriceRepository(db *ClickHouseDB) *ClickHousePriceRepository {
	return &ClickHousePriceRepository{db: db}
}

// QueryPrices returns tokenID's prices with timestamps in [start, end] ordered by timestamp
func (r *ClickHousePriceRepository) QueryPrices(ctx context.Context, tokenID string, start, end time.Time) ([]types.PricePoint, error) {
	query := `
		SELECT timestamp, price
		FROM token_prices FINAL
		WHERE token_id = ? AND timestamp BETWEEN ? AND ?
		ORDER BY timestamp
	`

	rows, err := r.db.conn.Query(ctx, query, tokenID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query prices for %s: %w", tokenID, err)
	}
	defer rows.Close()

	var points []types.PricePoint
	for rows.Next() {
		var (
			ts    time.Time
			price decimal.Decimal
		)
		if err := rows.Scan(&ts, &price); err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		points = append(points, types.PricePoint{
			TokenID:   tokenID,
			Timestamp: ts.UTC(),
			Price:     price,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price rows: %w", err)
	}

	return points, nil
}

// UpsertPrices appends one token's points as a single insert block
func (r *ClickHousePriceRepository) UpsertPrices(ctx context.Context, tokenID string, points []types.PricePoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	batch, err := r.db.conn.PrepareBatch(ctx, "INSERT INTO token_prices (token_id, timestamp, price, updated_at)")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch: %w", err)
	}

	now := time.Now().UTC()
	for _, p := range points {
		if err := batch.Append(tokenID, p.Timestamp.UTC(), p.Price, now); err != nil {
			_ = batch.Abort()
			return 0, fmt.Errorf("failed to append price for %s: %w", tokenID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("failed to send batch for %s: %w", tokenID, err)
	}

	return len(points), nil
}
