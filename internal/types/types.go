// Package types provides common type definitions for the wallet PnL service.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TimeFormat is the canonical textual timestamp format used in requests and
// responses. It is fixed-width and zero-padded, so two UTC timestamps in this
// format compare lexicographically in chronological order.
const TimeFormat = "2006-01-02 15:04:05"

// FormatTime renders t in the canonical UTC format
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a canonical timestamp as UTC. The layout parser also
// takes a one-digit hour and trailing fractional seconds, so the input must
// format back to itself exactly.
func ParseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimeFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	if FormatTime(t) != s {
		return time.Time{}, fmt.Errorf("timestamp %q is not in canonical form %q", s, TimeFormat)
	}
	return t, nil
}

// BalanceEvent is the holding amount of one token for a wallet, effective as
// of BlockTimestamp. It is a snapshot, not a delta.
type BalanceEvent struct {
	TokenID        string          `json:"token_id"`
	Balance        decimal.Decimal `json:"balance"`
	BlockTimestamp time.Time       `json:"block_timestamp"`
}

// PricePoint is one price observation for a token
type PricePoint struct {
	TokenID   string          `json:"token_id"`
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
}

// HoldingsRow is the as-of snapshot of every wallet token at one timeline point
type HoldingsRow struct {
	Timestamp time.Time
	Balances  map[string]decimal.Decimal
}

// ValuationRow is a holdings row joined with its prices, plus Value and PnL
type ValuationRow struct {
	Timestamp time.Time
	Prices    map[string]decimal.Decimal
	Holdings  map[string]decimal.Decimal
	Value     decimal.Decimal
	PnL       decimal.Decimal
}

// PnLPoint is the summary form of a valuation row
type PnLPoint struct {
	Timestamp time.Time
	PnL       decimal.Decimal
}

// OutputColumn is one named cell of a response row
type OutputColumn struct {
	Name    string
	Value   string
	Numeric bool
}

// OutputRow is an ordered set of columns. It serializes as a JSON object whose
// keys keep the column order.
type OutputRow []OutputColumn

// MarshalJSON writes the row as an ordered JSON object
func (r OutputRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if col.Numeric {
			buf.WriteString(col.Value)
			continue
		}
		val, err := json.Marshal(col.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the value of the named column
func (r OutputRow) Get(name string) (string, bool) {
	for _, col := range r {
		if col.Name == name {
			return col.Value, true
		}
	}
	return "", false
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// IngestFailure records one token whose prices could not be ingested
type IngestFailure struct {
	TokenID string `json:"tokenId"`
	Error   string `json:"error"`
}

// IngestRunSummary describes one price ingestion run
type IngestRunSummary struct {
	RunID          string          `json:"runId"`
	StartedAt      time.Time       `json:"startedAt"`
	FinishedAt     time.Time       `json:"finishedAt"`
	TokensIngested []string        `json:"tokensIngested"`
	PointsStored   int             `json:"pointsStored"`
	Failures       []IngestFailure `json:"failures,omitempty"`
}
