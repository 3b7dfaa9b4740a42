package pnl

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wallet-pnl/internal/types"
)

// WalletTokens returns the distinct token IDs of a balance event list, sorted
func WalletTokens(events []types.BalanceEvent) []string {
	seen := make(map[string]struct{}, len(events))
	tokens := make([]string, 0, len(events))
	for _, e := range events {
		if _, ok := seen[e.TokenID]; ok {
			continue
		}
		seen[e.TokenID] = struct{}{}
		tokens = append(tokens, e.TokenID)
	}
	sort.Strings(tokens)
	return tokens
}

// ReconstructHoldings projects balance snapshots onto the timeline. Each
// emitted row holds, for every token in events, the balance of the latest
// event at or before the row's timestamp, or zero before the first one.
//
// Events are stably sorted once and consumed by a cursor that only moves
// forward, so the sweep is linear in events plus timeline length. Events
// sharing a timestamp apply in their input order.
func ReconstructHoldings(events []types.BalanceEvent, timeline []time.Time) []types.HoldingsRow {
	if len(timeline) == 0 {
		return nil
	}

	sorted := append([]types.BalanceEvent(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].BlockTimestamp.Before(sorted[j].BlockTimestamp)
	})

	current := make(map[string]decimal.Decimal)
	for _, token := range WalletTokens(sorted) {
		current[token] = decimal.Zero
	}

	cursor := 0
	advance := func(point time.Time) {
		for cursor < len(sorted) && !sorted[cursor].BlockTimestamp.After(point) {
			current[sorted[cursor].TokenID] = sorted[cursor].Balance
			cursor++
		}
	}

	// Seed with everything that happened up to the first point
	advance(timeline[0])

	rows := make([]types.HoldingsRow, 0, len(timeline))
	for _, point := range timeline {
		advance(point)

		balances := make(map[string]decimal.Decimal, len(current))
		for token, balance := range current {
			balances[token] = balance
		}
		rows = append(rows, types.HoldingsRow{Timestamp: point, Balances: balances})
	}

	return rows
}
