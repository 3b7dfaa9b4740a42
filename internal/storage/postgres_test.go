package storage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-pnl/internal/config"
	"github.com/wallet-pnl/internal/types"
)

func testPostgresConfig() *config.PostgresConfig {
	return &config.PostgresConfig{
		Host:           "localhost",
		Port:           "5432",
		Database:       "wallet_pnl_test",
		User:           "postgres",
		Password:       "postgres",
		MaxConnections: 4,
	}
}

// setupTestPostgres connects, migrates and clears token_prices, or skips
func setupTestPostgres(t *testing.T) *PostgresDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testPostgresConfig()
	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	require.NoError(t, RunMigrations(cfg.URL(), "../../migrations/postgres"))

	_, err = db.Pool().Exec(testContext(t), "TRUNCATE token_prices")
	require.NoError(t, err)
	return db
}

func TestNewPostgresDB(t *testing.T) {
	db := setupTestPostgres(t)

	if err := db.Ping(testContext(t)); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if db.Pool() == nil {
		t.Error("Pool() returned nil")
	}
}

func TestPriceRepository_UpsertAndQuery(t *testing.T) {
	db := setupTestPostgres(t)
	repo := NewPriceRepository(db)
	ctx := testContext(t)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := []types.PricePoint{
		{TokenID: "bitcoin", Timestamp: t0, Price: decimal.RequireFromString("42000.123456789012345")},
		{TokenID: "bitcoin", Timestamp: t0.Add(time.Hour), Price: decimal.RequireFromString("42100")},
		{TokenID: "bitcoin", Timestamp: t0.Add(2 * time.Hour), Price: decimal.RequireFromString("42200")},
	}

	n, err := repo.UpsertPrices(ctx, "bitcoin", points)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Rewriting an existing hour replaces its price
	n, err = repo.UpsertPrices(ctx, "bitcoin", []types.PricePoint{
		{TokenID: "bitcoin", Timestamp: t0.Add(time.Hour), Price: decimal.RequireFromString("1")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.QueryPrices(ctx, "bitcoin", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, t0, got[0].Timestamp)
	assert.True(t, decimal.RequireFromString("42000.123456789012345").Equal(got[0].Price))
	assert.True(t, decimal.RequireFromString("1").Equal(got[1].Price))

	none, err := repo.QueryPrices(ctx, "ethereum", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)

	tokens, err := repo.TokenIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bitcoin"}, tokens)
}

func TestPriceRepository_UpsertEmpty(t *testing.T) {
	repo := NewPriceRepository(nil)
	n, err := repo.UpsertPrices(testContext(t), "bitcoin", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPostgresPoolConfig(t *testing.T) {
	cfg := testPostgresConfig()
	cfg.MaxConnections = 1

	poolConfig, err := postgresPoolConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, int32(1), poolConfig.MaxConns)
	assert.Equal(t, int32(1), poolConfig.MinConns)
	assert.Equal(t, "wallet_pnl_test", poolConfig.ConnConfig.Database)
	assert.Equal(t, uint16(5432), poolConfig.ConnConfig.Port)
	assert.Equal(t, "UTC", poolConfig.ConnConfig.RuntimeParams["timezone"])
	assert.Equal(t, "wallet-pnl", poolConfig.ConnConfig.RuntimeParams["application_name"])
}

func TestPostgresPoolConfig_DefaultsPoolSize(t *testing.T) {
	cfg := testPostgresConfig()
	cfg.MaxConnections = 0

	poolConfig, err := postgresPoolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(4), poolConfig.MaxConns)
	assert.Equal(t, int32(2), poolConfig.MinConns)
}
