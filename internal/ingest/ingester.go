// Package ingest loads hourly token prices from the market data provider
// into the price store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wallet-pnl/internal/adapter"
	"github.com/wallet-pnl/internal/config"
	"github.com/wallet-pnl/internal/logging"
	"github.com/wallet-pnl/internal/types"
)

// MarketDataProvider ranks tokens and serves their price history
type MarketDataProvider interface {
	TopTokens(ctx context.Context, vsCurrency string, n int) ([]adapter.MarketCoin, error)
	MarketChart(ctx context.Context, coinID, vsCurrency string, days int) ([]types.PricePoint, error)
}

// PriceWriter persists one token's prices atomically
type PriceWriter interface {
	UpsertPrices(ctx context.Context, tokenID string, points []types.PricePoint) (int, error)
}

// RunState serializes runs and records their outcome
type RunState interface {
	AcquireLock(ctx context.Context, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, token string) error
	SaveLastRun(ctx context.Context, summary *types.IngestRunSummary) error
}

// Options controls what a run ingests
type Options struct {
	TopN       int
	Days       int
	VsCurrency string
	// Tokens, when set, replaces the market-cap ranking
	Tokens  []string
	LockTTL time.Duration
}

// OptionsFromConfig builds run options, loading the token list file if one
// is configured.
func OptionsFromConfig(cfg *config.IngestConfig) (*Options, error) {
	opts := &Options{
		TopN:       cfg.TopN,
		Days:       cfg.Days,
		VsCurrency: cfg.VsCurrency,
		LockTTL:    cfg.LockTTL,
	}
	if cfg.TokensFile != "" {
		tokens, err := LoadTokenList(cfg.TokensFile)
		if err != nil {
			return nil, err
		}
		opts.Tokens = tokens
	}
	return opts, nil
}

// Ingester runs price ingestion
type Ingester struct {
	market MarketDataProvider
	writer PriceWriter
	state  RunState
	opts   Options
	now    func() time.Time
}

// NewIngester creates an ingester. state may be nil, in which case runs are
// neither locked nor recorded.
func NewIngester(market MarketDataProvider, writer PriceWriter, state RunState, opts *Options) *Ingester {
	return &Ingester{
		market: market,
		writer: writer,
		state:  state,
		opts:   *opts,
		now:    time.Now,
	}
}

// Run ingests every selected token. A token that fails is recorded in the
// summary and skipped; only failing to pick tokens at all, or to take the
// lock, fails the run.
func (i *Ingester) Run(ctx context.Context) (*types.IngestRunSummary, error) {
	summary := &types.IngestRunSummary{
		RunID:          uuid.NewString(),
		StartedAt:      i.now().UTC(),
		TokensIngested: []string{},
	}
	logger := logging.FromContext(ctx).WithField("runId", summary.RunID)

	if i.state != nil {
		lockToken, err := i.state.AcquireLock(ctx, i.opts.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("ingest run not started: %w", err)
		}
		defer func() {
			if err := i.state.ReleaseLock(context.WithoutCancel(ctx), lockToken); err != nil {
				logger.WithError(err).Warn("Failed to release ingest lock")
			}
		}()
	}

	tokens, err := i.selectTokens(ctx)
	if err != nil {
		return nil, err
	}
	logger.WithFields(map[string]interface{}{
		"tokens": len(tokens),
		"days":   i.opts.Days,
	}).Info("Starting price ingestion")

	for _, token := range tokens {
		if ctx.Err() != nil {
			summary.Failures = append(summary.Failures, types.IngestFailure{TokenID: token, Error: ctx.Err().Error()})
			continue
		}

		stored, err := i.ingestToken(ctx, token)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"tokenId": token,
				"error":   err.Error(),
			}).Error("Failed to ingest token prices")
			summary.Failures = append(summary.Failures, types.IngestFailure{TokenID: token, Error: err.Error()})
			continue
		}

		summary.TokensIngested = append(summary.TokensIngested, token)
		summary.PointsStored += stored
		logger.WithFields(map[string]interface{}{
			"tokenId": token,
			"points":  stored,
		}).Info("Data ingested for token")
	}

	summary.FinishedAt = i.now().UTC()

	if i.state != nil {
		if err := i.state.SaveLastRun(context.WithoutCancel(ctx), summary); err != nil {
			logger.WithError(err).Warn("Failed to record ingest run")
		}
	}

	logger.WithFields(map[string]interface{}{
		"tokensIngested": len(summary.TokensIngested),
		"pointsStored":   summary.PointsStored,
		"failures":       len(summary.Failures),
		"duration":       summary.FinishedAt.Sub(summary.StartedAt).String(),
	}).Info("Price ingestion finished")

	return summary, nil
}

func (i *Ingester) selectTokens(ctx context.Context) ([]string, error) {
	if len(i.opts.Tokens) > 0 {
		return i.opts.Tokens, nil
	}

	coins, err := i.market.TopTokens(ctx, i.opts.VsCurrency, i.opts.TopN)
	if err != nil {
		return nil, fmt.Errorf("failed to rank tokens: %w", err)
	}
	if len(coins) == 0 {
		return nil, errors.New("market data provider returned no tokens")
	}

	tokens := make([]string, 0, len(coins))
	for _, c := range coins {
		tokens = append(tokens, c.ID)
	}
	return tokens, nil
}

func (i *Ingester) ingestToken(ctx context.Context, token string) (int, error) {
	points, err := i.market.MarketChart(ctx, token, i.opts.VsCurrency, i.opts.Days)
	if err != nil {
		return 0, err
	}
	return i.writer.UpsertPrices(ctx, token, points)
}
