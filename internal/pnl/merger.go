// Package pnl reconstructs wallet holdings on an hourly price grid and derives
// value and profit-and-loss curves from them.
//
// The package is pure: every function works on the values it is given, so
// independent requests can run it concurrently without coordination.
package pnl

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/wallet-pnl/internal/errors"
	"github.com/wallet-pnl/internal/types"
)

// PriceStore returns a token's price observations in [start, end] ordered by timestamp
type PriceStore interface {
	QueryPrices(ctx context.Context, tokenID string, start, end time.Time) ([]types.PricePoint, error)
}

// PriceColumn holds one token's prices aligned to a timeline. Invalid cells
// are hours at which the token had no observation.
type PriceColumn []decimal.NullDecimal

// PriceTable is a set of per-token price columns sharing one timeline
type PriceTable struct {
	Tokens   []string
	Timeline []time.Time
	Columns  map[string]PriceColumn
}

// FloorToHour truncates t to the start of its UTC hour
func FloorToHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// MergePriceSeries outer-joins per-token price series on their hour-floored
// timestamps. The timeline is the sorted union of every token's hours; cells
// where a token did not report stay invalid. Duplicate hours for one token
// keep the last value in input order.
func MergePriceSeries(tokenIDs []string, series map[string][]types.PricePoint) *PriceTable {
	tokens := append([]string(nil), tokenIDs...)
	sort.Strings(tokens)

	perToken := make(map[string]map[int64]decimal.Decimal, len(tokens))
	seen := make(map[int64]struct{})
	for _, token := range tokens {
		byHour := make(map[int64]decimal.Decimal, len(series[token]))
		for _, p := range series[token] {
			hour := FloorToHour(p.Timestamp).Unix()
			byHour[hour] = p.Price
			seen[hour] = struct{}{}
		}
		perToken[token] = byHour
	}

	hours := make([]int64, 0, len(seen))
	for h := range seen {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i] < hours[j] })

	timeline := make([]time.Time, len(hours))
	for i, h := range hours {
		timeline[i] = time.Unix(h, 0).UTC()
	}

	columns := make(map[string]PriceColumn, len(tokens))
	for _, token := range tokens {
		col := make(PriceColumn, len(hours))
		for i, h := range hours {
			if price, ok := perToken[token][h]; ok {
				col[i] = decimal.NullDecimal{Decimal: price, Valid: true}
			}
		}
		columns[token] = col
	}

	return &PriceTable{Tokens: tokens, Timeline: timeline, Columns: columns}
}

// FillGaps carries the last known price forward, then the first known price
// backward over any leading gap. A column with no valid cell stays empty.
// Filling an already filled column returns an equal column.
func FillGaps(col PriceColumn) PriceColumn {
	out := make(PriceColumn, len(col))
	copy(out, col)

	var last decimal.NullDecimal
	for i := range out {
		if out[i].Valid {
			last = out[i]
		} else if last.Valid {
			out[i] = last
		}
	}

	first := -1
	for i := range out {
		if out[i].Valid {
			first = i
			break
		}
	}
	if first > 0 {
		for i := 0; i < first; i++ {
			out[i] = out[first]
		}
	}

	return out
}

// Filled returns a copy of the table with every column gap-filled
func (t *PriceTable) Filled() *PriceTable {
	columns := make(map[string]PriceColumn, len(t.Columns))
	for token, col := range t.Columns {
		columns[token] = FillGaps(col)
	}
	return &PriceTable{
		Tokens:   append([]string(nil), t.Tokens...),
		Timeline: append([]time.Time(nil), t.Timeline...),
		Columns:  columns,
	}
}

// MissingTokens lists tokens whose column has an undefined cell
func (t *PriceTable) MissingTokens() []string {
	var missing []string
	for _, token := range t.Tokens {
		col, ok := t.Columns[token]
		if !ok || len(col) != len(t.Timeline) {
			missing = append(missing, token)
			continue
		}
		for _, cell := range col {
			if !cell.Valid {
				missing = append(missing, token)
				break
			}
		}
	}
	return missing
}

// PriceAt returns the token's price at timeline index i
func (t *PriceTable) PriceAt(token string, i int) (decimal.Decimal, bool) {
	col, ok := t.Columns[token]
	if !ok || i < 0 || i >= len(col) || !col[i].Valid {
		return decimal.Decimal{}, false
	}
	return col[i].Decimal, true
}

// PriceMerger builds gap-filled price tables from a price store
type PriceMerger struct {
	store PriceStore
}

// NewPriceMerger creates a merger reading from store
func NewPriceMerger(store PriceStore) *PriceMerger {
	return &PriceMerger{store: store}
}

// Merge fetches every token's prices in [start, end], aligns them on one
// timeline and fills the gaps. It fails with InvalidRangeError when start is
// after end, EmptyTimelineError when no token has a price in range, and
// MissingPriceDataError when some tokens have none.
func (m *PriceMerger) Merge(ctx context.Context, tokenIDs []string, start, end time.Time) (*PriceTable, error) {
	startStr, endStr := types.FormatTime(start), types.FormatTime(end)
	if start.After(end) {
		return nil, apperrors.NewInvalidRangeError(startStr, endStr)
	}
	if len(tokenIDs) == 0 {
		return nil, apperrors.NewEmptyTimelineError(startStr, endStr)
	}

	series := make(map[string][]types.PricePoint, len(tokenIDs))
	for _, token := range tokenIDs {
		points, err := m.store.QueryPrices(ctx, token, start, end)
		if err != nil {
			return nil, apperrors.NewUpstreamError("price store", err)
		}
		series[token] = points
	}

	table := MergePriceSeries(tokenIDs, series).Filled()
	if len(table.Timeline) == 0 {
		return nil, apperrors.NewEmptyTimelineError(startStr, endStr)
	}
	if missing := table.MissingTokens(); len(missing) > 0 {
		return nil, apperrors.NewMissingPriceDataError(missing)
	}

	return table, nil
}
