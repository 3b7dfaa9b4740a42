package config

import (
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_HOST", "testhost")
	t.Setenv("INGEST_LOCK_TTL", "30s")
	t.Setenv("PRICE_STORE", "ClickHouse")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}
	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}
	if cfg.Ingest.LockTTL != 30*time.Second {
		t.Errorf("Ingest.LockTTL = %v, want %v", cfg.Ingest.LockTTL, 30*time.Second)
	}
	if cfg.PriceStore.Backend != PriceStoreClickHouse {
		t.Errorf("PriceStore.Backend = %v, want %v", cfg.PriceStore.Backend, PriceStoreClickHouse)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.PriceStore.Backend != PriceStorePostgres {
		t.Errorf("PriceStore.Backend = %v, want %v", cfg.PriceStore.Backend, PriceStorePostgres)
	}
	if cfg.PnL.DefaultLookback != 7*24*time.Hour {
		t.Errorf("PnL.DefaultLookback = %v, want 168h", cfg.PnL.DefaultLookback)
	}
	if cfg.Ingest.TopN != 10 || cfg.Ingest.Days != 7 {
		t.Errorf("Ingest = %+v, want topN=10 days=7", cfg.Ingest)
	}
	if cfg.Ingest.Interval != time.Hour {
		t.Errorf("Ingest.Interval = %v, want 1h", cfg.Ingest.Interval)
	}
	if cfg.Database.Redis.KeyPrefix != "pnl" {
		t.Errorf("Redis.KeyPrefix = %q, want %q", cfg.Database.Redis.KeyPrefix, "pnl")
	}
	if !cfg.PnL.ValidateEVMAddress {
		t.Error("PnL.ValidateEVMAddress = false, want true")
	}
}

// Malformed numeric, duration and bool values fall back to their defaults
// rather than failing the load.
func TestLoadConfig_MalformedValuesFallBack(t *testing.T) {
	tests := []struct {
		key   string
		value string
		check func(t *testing.T, cfg *Config)
	}{
		{
			key:   "RATE_LIMIT_RPS",
			value: "fast",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Server.RateLimitRPS != 20 {
					t.Errorf("Server.RateLimitRPS = %d, want 20", cfg.Server.RateLimitRPS)
				}
			},
		},
		{
			key:   "INGEST_INTERVAL",
			value: "hourly",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Ingest.Interval != time.Hour {
					t.Errorf("Ingest.Interval = %v, want 1h", cfg.Ingest.Interval)
				}
			},
		},
		{
			key:   "PNL_DEFAULT_LOOKBACK",
			value: "7",
			check: func(t *testing.T, cfg *Config) {
				if cfg.PnL.DefaultLookback != 7*24*time.Hour {
					t.Errorf("PnL.DefaultLookback = %v, want 168h", cfg.PnL.DefaultLookback)
				}
			},
		},
		{
			key:   "PNL_VALIDATE_EVM_ADDRESS",
			value: "maybe",
			check: func(t *testing.T, cfg *Config) {
				if !cfg.PnL.ValidateEVMAddress {
					t.Error("PnL.ValidateEVMAddress = false, want default true")
				}
			},
		},
		{
			key:   "PNL_VALIDATE_EVM_ADDRESS",
			value: "false",
			check: func(t *testing.T, cfg *Config) {
				if cfg.PnL.ValidateEVMAddress {
					t.Error("PnL.ValidateEVMAddress = true, want false")
				}
			},
		},
		{
			key:   "REDIS_DB",
			value: "3",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Database.Redis.DB != 3 {
					t.Errorf("Redis.DB = %d, want 3", cfg.Database.Redis.DB)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			cfg, err := LoadConfig()
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoadConfig_RejectsUnknownPriceStore(t *testing.T) {
	t.Setenv("PRICE_STORE", "sqlite")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() error = nil, want error for unknown price store")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{name: "zero rate limit", mutate: func(cfg *Config) { cfg.Server.RateLimitRPS = 0 }},
		{name: "negative burst", mutate: func(cfg *Config) { cfg.Server.RateLimitBurst = -1 }},
		{name: "zero top n", mutate: func(cfg *Config) { cfg.Ingest.TopN = 0 }},
		{name: "zero days", mutate: func(cfg *Config) { cfg.Ingest.Days = 0 }},
		{name: "zero coingecko rps", mutate: func(cfg *Config) { cfg.CoinGecko.RPS = 0 }},
		{name: "negative lookback", mutate: func(cfg *Config) { cfg.PnL.DefaultLookback = -time.Hour }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() error = nil, want error")
			}
		})
	}
}

func TestPostgresConfig_URL(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: "5433", Database: "prices", User: "u", Password: "p"}

	want := "postgres://u:p@db:5433/prices?sslmode=disable"
	if got := cfg.URL(); got != want {
		t.Errorf("URL() = %v, want %v", got, want)
	}

	cfg.Password = "p@ss/word"
	want = "postgres://u:p%40ss%2Fword@db:5433/prices?sslmode=disable"
	if got := cfg.URL(); got != want {
		t.Errorf("URL() = %v, want %v", got, want)
	}
}
