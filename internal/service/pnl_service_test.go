package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-pnl/internal/config"
	apperrors "github.com/wallet-pnl/internal/errors"
	"github.com/wallet-pnl/internal/types"
)

const testWallet = "0x52908400098527886E0F7030069857D2E4169EE7"

// Mock upstreams for testing

type mockBalanceSource struct {
	events []types.BalanceEvent
	err    error
	calls  []string
}

func (m *mockBalanceSource) FetchBalances(ctx context.Context, address string) ([]types.BalanceEvent, error) {
	m.calls = append(m.calls, address)
	return m.events, m.err
}

type priceQuery struct {
	token      string
	start, end time.Time
}

type mockPriceStore struct {
	series  map[string][]types.PricePoint
	queries []priceQuery
}

func (m *mockPriceStore) QueryPrices(ctx context.Context, tokenID string, start, end time.Time) ([]types.PricePoint, error) {
	m.queries = append(m.queries, priceQuery{token: tokenID, start: start, end: end})
	var out []types.PricePoint
	for _, p := range m.series[tokenID] {
		if !p.Timestamp.Before(start) && !p.Timestamp.After(end) {
			out = append(out, p)
		}
	}
	return out, nil
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(h int) time.Time { return t0.Add(time.Duration(h) * time.Hour) }

func strPtr(s string) *string { return &s }

func newTestService(balances *mockBalanceSource, prices *mockPriceStore) *PnLService {
	svc := NewPnLService(balances, prices, &config.PnLConfig{
		DefaultLookback:    7 * 24 * time.Hour,
		ValidateEVMAddress: true,
	})
	svc.now = func() time.Time { return time.Date(2024, 1, 8, 12, 30, 45, 500, time.UTC) }
	return svc
}

func scenarioUpstreams() (*mockBalanceSource, *mockPriceStore) {
	balances := &mockBalanceSource{events: []types.BalanceEvent{
		{TokenID: "A", Balance: decimal.NewFromInt(10), BlockTimestamp: t0},
		{TokenID: "B", Balance: decimal.NewFromInt(5), BlockTimestamp: at(3)},
	}}
	prices := &mockPriceStore{series: map[string][]types.PricePoint{
		"A": {
			{TokenID: "A", Timestamp: at(0), Price: decimal.NewFromInt(1)},
			{TokenID: "A", Timestamp: at(1), Price: decimal.NewFromInt(1)},
			{TokenID: "A", Timestamp: at(2), Price: decimal.NewFromInt(1)},
			{TokenID: "A", Timestamp: at(3), Price: decimal.NewFromInt(1)},
		},
		"B": {
			{TokenID: "B", Timestamp: at(3), Price: decimal.NewFromInt(2)},
		},
	}}
	return balances, prices
}

func TestPnLService_ComputePnL_Summary(t *testing.T) {
	balances, prices := scenarioUpstreams()
	svc := newTestService(balances, prices)

	result, err := svc.ComputePnL(context.Background(), &ComputePnLInput{
		Address:   testWallet,
		StartTime: strPtr("2024-01-01 00:00:00"),
		EndTime:   strPtr("2024-01-01 03:00:00"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"0x52908400098527886e0f7030069857d2e4169ee7"}, balances.calls)
	assert.Equal(t, []string{"A", "B"}, result.Tokens)
	require.Len(t, result.Rows, 4)

	wantPnL := []string{"0", "0", "0", "10"}
	for i, row := range result.Rows {
		require.Len(t, row, 2)
		ts, _ := row.Get("timestamp")
		assert.Equal(t, types.FormatTime(at(i)), ts)
		pnl, _ := row.Get("PnL")
		assert.Equal(t, wantPnL[i], pnl)
	}
}

func TestPnLService_ComputePnL_Detailed(t *testing.T) {
	balances, prices := scenarioUpstreams()
	svc := newTestService(balances, prices)

	result, err := svc.ComputePnL(context.Background(), &ComputePnLInput{
		Address:   testWallet,
		StartTime: strPtr("2024-01-01 00:00:00"),
		EndTime:   strPtr("2024-01-01 03:00:00"),
		Detail:    true,
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 4)

	last := result.Rows[3]
	for name, want := range map[string]string{
		"A_price": "1", "B_price": "2", "A": "10", "B": "5", "Value": "20", "PnL": "10",
	} {
		got, ok := last.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}

	first := result.Rows[0]
	v, _ := first.Get("Value")
	assert.Equal(t, "10", v)
	b, _ := first.Get("B")
	assert.Equal(t, "0", b)
}

func TestPnLService_ComputePnL_InvalidRangeMakesNoUpstreamCalls(t *testing.T) {
	balances, prices := scenarioUpstreams()
	svc := newTestService(balances, prices)

	_, err := svc.ComputePnL(context.Background(), &ComputePnLInput{
		Address:   testWallet,
		StartTime: strPtr("2024-01-02 00:00:00"),
		EndTime:   strPtr("2024-01-01 00:00:00"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidRange))
	assert.True(t, apperrors.IsUserError(err))
	assert.Empty(t, balances.calls)
	assert.Empty(t, prices.queries)
}

func TestPnLService_ComputePnL_EqualBoundsAllowed(t *testing.T) {
	balances, prices := scenarioUpstreams()
	svc := newTestService(balances, prices)

	result, err := svc.ComputePnL(context.Background(), &ComputePnLInput{
		Address:   testWallet,
		StartTime: strPtr("2024-01-01 03:00:00"),
		EndTime:   strPtr("2024-01-01 03:00:00"),
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	pnl, _ := result.Rows[0].Get("PnL")
	assert.Equal(t, "0", pnl)
}

func TestPnLService_ComputePnL_Defaults(t *testing.T) {
	balances, prices := scenarioUpstreams()
	svc := newTestService(balances, prices)

	_, err := svc.ComputePnL(context.Background(), &ComputePnLInput{Address: testWallet})
	// Scenario prices fall outside the default window
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEmptyTimeline))

	require.NotEmpty(t, prices.queries)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 30, 45, 0, time.UTC), prices.queries[0].start)
	assert.Equal(t, time.Date(2024, 1, 8, 12, 30, 45, 0, time.UTC), prices.queries[0].end)
}

func TestPnLService_ComputePnL_InputErrors(t *testing.T) {
	tests := []struct {
		name  string
		input *ComputePnLInput
		code  string
	}{
		{name: "missing address", input: &ComputePnLInput{Address: "  "}, code: apperrors.CodeInvalidParameter},
		{name: "not an EVM address", input: &ComputePnLInput{Address: "vitalik.eth"}, code: apperrors.CodeInvalidAddress},
		{name: "malformed start", input: &ComputePnLInput{Address: testWallet, StartTime: strPtr("2024-01-01")}, code: apperrors.CodeInvalidParameter},
		{name: "unpadded end", input: &ComputePnLInput{Address: testWallet, EndTime: strPtr("2024-1-1 00:00:00")}, code: apperrors.CodeInvalidParameter},
		{name: "iso separator", input: &ComputePnLInput{Address: testWallet, StartTime: strPtr("2024-01-01T00:00:00")}, code: apperrors.CodeInvalidParameter},
		{name: "one-digit hour end", input: &ComputePnLInput{Address: testWallet, StartTime: strPtr("2024-01-02 10:00:00"), EndTime: strPtr("2024-01-02 9:00:00")}, code: apperrors.CodeInvalidParameter},
		{name: "fractional seconds start", input: &ComputePnLInput{Address: testWallet, StartTime: strPtr("2024-01-01 00:00:00.999")}, code: apperrors.CodeInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			balances, prices := scenarioUpstreams()
			_, err := newTestService(balances, prices).ComputePnL(context.Background(), tt.input)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
			assert.Empty(t, balances.calls)
			assert.Empty(t, prices.queries)
		})
	}
}

func TestPnLService_ComputePnL_EmptyWallet(t *testing.T) {
	balances, prices := scenarioUpstreams()
	balances.events = nil

	_, err := newTestService(balances, prices).ComputePnL(context.Background(), &ComputePnLInput{
		Address:   testWallet,
		StartTime: strPtr("2024-01-01 00:00:00"),
		EndTime:   strPtr("2024-01-01 03:00:00"),
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEmptyTimeline))
	assert.Empty(t, prices.queries)
}

func TestPnLService_ComputePnL_MissingPriceData(t *testing.T) {
	balances, prices := scenarioUpstreams()
	balances.events = append(balances.events, types.BalanceEvent{TokenID: "C", Balance: decimal.NewFromInt(1), BlockTimestamp: t0})

	_, err := newTestService(balances, prices).ComputePnL(context.Background(), &ComputePnLInput{
		Address:   testWallet,
		StartTime: strPtr("2024-01-01 00:00:00"),
		EndTime:   strPtr("2024-01-01 03:00:00"),
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeMissingPriceData))
}

func TestPnLService_ComputePnL_BalanceSourceFailure(t *testing.T) {
	balances, prices := scenarioUpstreams()
	balances.err = errors.New("connection reset")

	_, err := newTestService(balances, prices).ComputePnL(context.Background(), &ComputePnLInput{
		Address:   testWallet,
		StartTime: strPtr("2024-01-01 00:00:00"),
		EndTime:   strPtr("2024-01-01 03:00:00"),
	})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUpstream))
	assert.Empty(t, prices.queries)

	// Already categorized errors pass through
	balances.err = apperrors.NewServiceUnavailableError("allium")
	_, err = newTestService(balances, prices).ComputePnL(context.Background(), &ComputePnLInput{Address: testWallet})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeServiceUnavailable))
}

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress(" "+testWallet+" ", true)
	require.NoError(t, err)
	assert.Equal(t, "0x52908400098527886e0f7030069857d2e4169ee7", got)

	_, err = NormalizeAddress("52908400098527886E0F7030069857D2E4169EE7", true)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidAddress))

	_, err = NormalizeAddress("0x1234", true)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidAddress))

	got, err = NormalizeAddress("SomeSolanaAddress", false)
	require.NoError(t, err)
	assert.Equal(t, "SomeSolanaAddress", got)
}
