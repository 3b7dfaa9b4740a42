package pnl

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	apperrors "github.com/wallet-pnl/internal/errors"
	"github.com/wallet-pnl/internal/types"
)

// Output column names
const (
	ColumnTimestamp = "timestamp"
	ColumnValue     = "Value"
	ColumnPnL       = "PnL"
	priceSuffix     = "_price"
)

// PriceColumnName is the output column holding a token's price
func PriceColumnName(token string) string {
	return token + priceSuffix
}

// Valuate joins holdings onto the price table by timestamp and computes each
// row's value, the sum over wallet tokens of price times holding, and its PnL
// relative to the first row. Every price row needs a holdings row and every
// held token needs a price; either gap aborts the valuation.
func Valuate(prices *PriceTable, holdings []types.HoldingsRow) ([]types.ValuationRow, error) {
	if prices == nil || len(prices.Timeline) == 0 {
		return nil, apperrors.NewInternalError("valuation of an empty price table", nil)
	}

	byTime := make(map[int64]types.HoldingsRow, len(holdings))
	for _, h := range holdings {
		byTime[h.Timestamp.Unix()] = h
	}

	rows := make([]types.ValuationRow, 0, len(prices.Timeline))
	for i, ts := range prices.Timeline {
		h, ok := byTime[ts.Unix()]
		if !ok {
			return nil, apperrors.NewInternalError(
				fmt.Sprintf("no holdings row for %s", types.FormatTime(ts)), nil)
		}

		row := types.ValuationRow{
			Timestamp: ts,
			Prices:    make(map[string]decimal.Decimal, len(prices.Tokens)),
			Holdings:  h.Balances,
			Value:     decimal.Zero,
		}
		for _, token := range prices.Tokens {
			if p, ok := prices.PriceAt(token, i); ok {
				row.Prices[token] = p
			}
		}

		var missing []string
		for token, balance := range h.Balances {
			price, ok := row.Prices[token]
			if !ok {
				missing = append(missing, token)
				continue
			}
			row.Value = row.Value.Add(price.Mul(balance))
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return nil, apperrors.NewMissingPriceDataError(missing)
		}

		rows = append(rows, row)
	}

	initial := rows[0].Value
	for i := range rows {
		rows[i].PnL = rows[i].Value.Sub(initial)
	}

	return rows, nil
}

// Summarize reduces valuation rows to (timestamp, PnL) pairs
func Summarize(rows []types.ValuationRow) []types.PnLPoint {
	points := make([]types.PnLPoint, len(rows))
	for i, r := range rows {
		points[i] = types.PnLPoint{Timestamp: r.Timestamp, PnL: r.PnL}
	}
	return points
}

// ShapeRows renders valuation rows for output. Detailed rows carry every
// price and holding column followed by Value and PnL; summary rows carry
// only the timestamp and PnL. tokens fixes the column order.
func ShapeRows(rows []types.ValuationRow, tokens []string, detail bool) []types.OutputRow {
	out := make([]types.OutputRow, 0, len(rows))

	if !detail {
		for _, p := range Summarize(rows) {
			out = append(out, types.OutputRow{
				{Name: ColumnTimestamp, Value: types.FormatTime(p.Timestamp)},
				{Name: ColumnPnL, Value: p.PnL.String(), Numeric: true},
			})
		}
		return out
	}

	for _, r := range rows {
		row := make(types.OutputRow, 0, 2*len(tokens)+3)
		row = append(row, types.OutputColumn{Name: ColumnTimestamp, Value: types.FormatTime(r.Timestamp)})
		for _, token := range tokens {
			row = append(row, types.OutputColumn{Name: PriceColumnName(token), Value: r.Prices[token].String(), Numeric: true})
		}
		for _, token := range tokens {
			row = append(row, types.OutputColumn{Name: token, Value: r.Holdings[token].String(), Numeric: true})
		}
		row = append(row,
			types.OutputColumn{Name: ColumnValue, Value: r.Value.String(), Numeric: true},
			types.OutputColumn{Name: ColumnPnL, Value: r.PnL.String(), Numeric: true},
		)
		out = append(out, row)
	}
	return out
}
