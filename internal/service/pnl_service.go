package service

import (
	"context"
	"time"

	"github.com/wallet-pnl/internal/config"
	apperrors "github.com/wallet-pnl/internal/errors"
	"github.com/wallet-pnl/internal/logging"
	"github.com/wallet-pnl/internal/pnl"
	"github.com/wallet-pnl/internal/types"
)

// BalanceSource returns a wallet's balance snapshots
type BalanceSource interface {
	FetchBalances(ctx context.Context, address string) ([]types.BalanceEvent, error)
}

// PnLService reconstructs a wallet's value and PnL history
type PnLService struct {
	balances BalanceSource
	merger   *pnl.PriceMerger
	cfg      config.PnLConfig
	now      func() time.Time
}

// NewPnLService creates a new PnL service
func NewPnLService(balances BalanceSource, prices pnl.PriceStore, cfg *config.PnLConfig) *PnLService {
	return &PnLService{
		balances: balances,
		merger:   pnl.NewPriceMerger(prices),
		cfg:      *cfg,
		now:      time.Now,
	}
}

// ComputePnLInput represents a PnL request. Nil times take their defaults.
type ComputePnLInput struct {
	Address   string  `json:"address"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
	Detail    bool    `json:"detail"`
}

// PnLResult is the shaped output of one computation
type PnLResult struct {
	Address   string            `json:"address"`
	StartTime string            `json:"startTime"`
	EndTime   string            `json:"endTime"`
	Detail    bool              `json:"detail"`
	Tokens    []string          `json:"tokens"`
	Rows      []types.OutputRow `json:"rows"`
}

// ComputePnL builds the hourly value and PnL series of a wallet over the
// requested range. StartTime defaults to now minus the configured lookback
// and EndTime to now. The range is checked before any upstream call; any
// later failure aborts the run with no partial output.
func (s *PnLService) ComputePnL(ctx context.Context, input *ComputePnLInput) (*PnLResult, error) {
	address, err := NormalizeAddress(input.Address, s.cfg.ValidateEVMAddress)
	if err != nil {
		return nil, err
	}

	start, end, err := s.resolveRange(input.StartTime, input.EndTime)
	if err != nil {
		return nil, err
	}
	startStr, endStr := types.FormatTime(start), types.FormatTime(end)
	if start.After(end) {
		return nil, apperrors.NewInvalidRangeError(startStr, endStr)
	}

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"address":   address,
		"startTime": startStr,
		"endTime":   endStr,
		"detail":    input.Detail,
	})
	logger.Debug("Computing PnL")

	events, err := s.balances.FetchBalances(ctx, address)
	if err != nil {
		return nil, asUpstream("balance source", err)
	}
	tokens := pnl.WalletTokens(events)
	logger.WithFields(map[string]interface{}{
		"events": len(events),
		"tokens": len(tokens),
	}).Debug("Fetched wallet balances")

	prices, err := s.merger.Merge(ctx, tokens, start, end)
	if err != nil {
		logger.WithError(err).Warn("Failed to build price table")
		return nil, err
	}

	holdings := pnl.ReconstructHoldings(events, prices.Timeline)
	rows, err := pnl.Valuate(prices, holdings)
	if err != nil {
		logger.WithError(err).Warn("Failed to value holdings")
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"tokens": len(tokens),
		"points": len(rows),
	}).Info("PnL computed")

	return &PnLResult{
		Address:   address,
		StartTime: startStr,
		EndTime:   endStr,
		Detail:    input.Detail,
		Tokens:    prices.Tokens,
		Rows:      pnl.ShapeRows(rows, prices.Tokens, input.Detail),
	}, nil
}

// resolveRange applies defaults and parses both bounds, which must be in the
// canonical format
func (s *PnLService) resolveRange(startTime, endTime *string) (time.Time, time.Time, error) {
	now := s.now().UTC().Truncate(time.Second)

	start := now.Add(-s.cfg.DefaultLookback)
	if startTime != nil {
		parsed, err := types.ParseTime(*startTime)
		if err != nil {
			return time.Time{}, time.Time{}, apperrors.NewInvalidParameterError("start_time", "expected format YYYY-MM-DD HH:MM:SS")
		}
		start = parsed
	}

	end := now
	if endTime != nil {
		parsed, err := types.ParseTime(*endTime)
		if err != nil {
			return time.Time{}, time.Time{}, apperrors.NewInvalidParameterError("end_time", "expected format YYYY-MM-DD HH:MM:SS")
		}
		end = parsed
	}

	return start, end, nil
}

// asUpstream keeps categorized errors and wraps anything else as an
// upstream failure of source
func asUpstream(source string, err error) error {
	if catErr := apperrors.Categorize(err); catErr != nil && catErr.Code != apperrors.CodeInternal {
		return catErr
	}
	return apperrors.NewUpstreamError(source, err)
}
