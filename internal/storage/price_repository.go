package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/wallet-pnl/internal/types"
)

// PriceRepository reads and writes the token_prices table in Postgres
type PriceRepository struct {
	db *PostgresDB
}

// NewPriceRepository creates a new Postgres price repository
func NewPriceRepository(db *PostgresDB) *PriceRepository {
	return &PriceRepository{db: db}
}

// QueryPrices returns tokenID's prices with timestamps in [start, end], both
// ends inclusive, ordered by timestamp.
func (r *PriceRepository) QueryPrices(ctx context.Context, tokenID string, start, end time.Time) ([]types.PricePoint, error) {
	query := `
		SELECT timestamp, price::text
		FROM token_prices
		WHERE token_id = $1 AND timestamp BETWEEN $2 AND $3
		ORDER BY timestamp
	`

	rows, err := r.db.pool.Query(ctx, query, tokenID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query prices for %s: %w", tokenID, err)
	}
	defer rows.Close()

	var points []types.PricePoint
	for rows.Next() {
		var (
			ts       time.Time
			priceStr string
		)
		if err := rows.Scan(&ts, &priceStr); err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("invalid stored price %q for %s: %w", priceStr, tokenID, err)
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

// UpsertPrices writes one token's points in a single transaction. A point at
// an existing (token_id, timestamp) replaces the stored price.
func (r *PriceRepository) UpsertPrices(ctx context.Context, tokenID string, points []types.PricePoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO token_prices (token_id, timestamp, price)
		VALUES ($1, $2, $3::numeric)
		ON CONFLICT (token_id, timestamp) DO UPDATE
		SET price = EXCLUDED.price
	`

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, p := range points {
			batch.Queue(query, tokenID, p.Timestamp.UTC(), p.Price.String())
		}

		br := tx.SendBatch(ctx, batch)
		for i := range points {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("failed to upsert price %d for %s: %w", i, tokenID, err)
			}
		}
		return br.Close()
	})
	if err != nil {
		return 0, err
	}

	return len(points), nil
}

// TokenIDs lists every token with at least one stored price
func (r *PriceRepository) TokenIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT DISTINCT token_id FROM token_prices ORDER BY token_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	tokens, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan tokens: %w", err)
	}
	return tokens, nil
}
