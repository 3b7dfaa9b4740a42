// Package config provides configuration management for the wallet PnL service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Price store backends
const (
	PriceStorePostgres   = "postgres"
	PriceStoreClickHouse = "clickhouse"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	PriceStore PriceStoreConfig
	PnL        PnLConfig
	Allium     AlliumConfig
	CoinGecko  CoinGeckoConfig
	Ingest     IngestConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           string
	Host           string
	RequestTimeout time.Duration
	RateLimitRPS   int
	RateLimitBurst int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL returns the postgres:// URL shared by the pool and the migration tool.
// Credentials are escaped.
func (c PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
	// KeyPrefix namespaces every key this service writes
	KeyPrefix string
}

// PriceStoreConfig selects where historical prices are read from and written to
type PriceStoreConfig struct {
	Backend string
}

// PnLConfig holds computation defaults
type PnLConfig struct {
	DefaultLookback time.Duration
	// ValidateEVMAddress rejects wallet addresses that are not 0x-prefixed hex
	ValidateEVMAddress bool
}

// AlliumConfig holds balance source configuration
type AlliumConfig struct {
	APIKey   string
	QueryURL string
	Timeout  time.Duration
}

// CoinGeckoConfig holds market data provider configuration
type CoinGeckoConfig struct {
	APIKey  string
	BaseURL string
	RPS     int
	Timeout time.Duration
}

// IngestConfig holds price ingestion configuration
type IngestConfig struct {
	TopN       int
	Days       int
	VsCurrency string
	TokensFile string
	LockTTL    time.Duration
	// Interval between scheduled runs of the ingest worker
	Interval time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional; variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8000"),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			RequestTimeout: getEnvAs("REQUEST_TIMEOUT", 60*time.Second, time.ParseDuration),
			RateLimitRPS:   getEnvAs("RATE_LIMIT_RPS", 20, strconv.Atoi),
			RateLimitBurst: getEnvAs("RATE_LIMIT_BURST", 10, strconv.Atoi),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("DB_HOST", "localhost"),
				Port:           getEnv("DB_PORT", "5432"),
				Database:       getEnv("DB_NAME", "wallet_pnl"),
				User:           getEnv("DB_USER", "postgres"),
				Password:       getEnv("DB_PASSWORD", ""),
				MaxConnections: getEnvAs("DB_MAX_CONNECTIONS", 20, strconv.Atoi),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "wallet_pnl"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAs("REDIS_DB", 0, strconv.Atoi),
				MaxConnections: getEnvAs("REDIS_MAX_CONNECTIONS", 10, strconv.Atoi),
				KeyPrefix:      getEnv("REDIS_KEY_PREFIX", "pnl"),
			},
		},
		PriceStore: PriceStoreConfig{
			Backend: strings.ToLower(getEnv("PRICE_STORE", PriceStorePostgres)),
		},
		PnL: PnLConfig{
			DefaultLookback:    getEnvAs("PNL_DEFAULT_LOOKBACK", 7*24*time.Hour, time.ParseDuration),
			ValidateEVMAddress: getEnvAs("PNL_VALIDATE_EVM_ADDRESS", true, strconv.ParseBool),
		},
		Allium: AlliumConfig{
			APIKey:   getEnv("API_KEY", ""),
			QueryURL: getEnv("ALLIUM_QUERY_URL", "https://api.allium.so/api/v1/explorer/queries/UWHFUe3BPTFpd7EDVIiI/run"),
			Timeout:  getEnvAs("ALLIUM_TIMEOUT", 30*time.Second, time.ParseDuration),
		},
		CoinGecko: CoinGeckoConfig{
			APIKey:  getEnv("COINGECKO_API_KEY", ""),
			BaseURL: getEnv("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3"),
			RPS:     getEnvAs("COINGECKO_RPS", 1, strconv.Atoi),
			Timeout: getEnvAs("COINGECKO_TIMEOUT", 30*time.Second, time.ParseDuration),
		},
		Ingest: IngestConfig{
			TopN:       getEnvAs("INGEST_TOP_N", 10, strconv.Atoi),
			Days:       getEnvAs("INGEST_DAYS", 7, strconv.Atoi),
			VsCurrency: getEnv("INGEST_VS_CURRENCY", "usd"),
			TokensFile: getEnv("INGEST_TOKENS_FILE", ""),
			LockTTL:    getEnvAs("INGEST_LOCK_TTL", 10*time.Minute, time.ParseDuration),
			Interval:   getEnvAs("INGEST_INTERVAL", time.Hour, time.ParseDuration),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks values that have no safe fallback
func (c *Config) Validate() error {
	switch c.PriceStore.Backend {
	case PriceStorePostgres, PriceStoreClickHouse:
	default:
		return fmt.Errorf("unknown PRICE_STORE %q (want %s or %s)", c.PriceStore.Backend, PriceStorePostgres, PriceStoreClickHouse)
	}
	if c.Server.RateLimitRPS <= 0 || c.Server.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit must be positive (rps=%d, burst=%d)", c.Server.RateLimitRPS, c.Server.RateLimitBurst)
	}
	if c.Ingest.TopN <= 0 || c.Ingest.Days <= 0 {
		return fmt.Errorf("ingest top-n and days must be positive (topN=%d, days=%d)", c.Ingest.TopN, c.Ingest.Days)
	}
	if c.CoinGecko.RPS <= 0 {
		return fmt.Errorf("COINGECKO_RPS must be positive, got %d", c.CoinGecko.RPS)
	}
	if c.PnL.DefaultLookback <= 0 {
		return fmt.Errorf("PNL_DEFAULT_LOOKBACK must be positive, got %s", c.PnL.DefaultLookback)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAs parses an environment variable, keeping the default when it is
// unset or malformed
func getEnvAs[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	if value, err := parse(raw); err == nil {
		return value
	}
	return defaultValue
}
