package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wallet-pnl/internal/config"
	"github.com/wallet-pnl/internal/retry"
	"github.com/wallet-pnl/internal/types"
)

// blockTimestampLayouts are the layouts the balance query has been seen to emit
var blockTimestampLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	types.TimeFormat,
}

// AlliumClient fetches a wallet's balance history from an Allium explorer query
type AlliumClient struct {
	apiKey     string
	queryURL   string
	httpClient *http.Client
	provider   *Provider
}

// NewAlliumClient creates a new Allium query client
func NewAlliumClient(cfg *config.AlliumConfig, retryConfig *retry.RetryConfig) *AlliumClient {
	return &AlliumClient{
		apiKey:     cfg.APIKey,
		queryURL:   cfg.QueryURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		provider:   NewProvider("allium", retryConfig, nil),
	}
}

// Provider exposes the guarded upstream for health reporting
func (c *AlliumClient) Provider() *Provider {
	return c.provider
}

type alliumQueryRequest struct {
	Address string `json:"address"`
}

type alliumQueryResponse struct {
	Data []alliumBalanceRow `json:"data"`
}

type alliumBalanceRow struct {
	TokenID        string          `json:"token_id"`
	Balance        decimal.Decimal `json:"balance"`
	BlockTimestamp string          `json:"block_timestamp"`
}

// FetchBalances returns every balance snapshot the query reports for address,
// in the order the upstream returned them.
func (c *AlliumClient) FetchBalances(ctx context.Context, address string) ([]types.BalanceEvent, error) {
	payload, err := json.Marshal(alliumQueryRequest{Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query body: %w", err)
	}

	var body []byte
	err = c.provider.Call(ctx, "FetchBalances", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.queryURL, bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-KEY", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to query Allium: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read Allium response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &StatusError{Source: "Allium", StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
		}

		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}

	events, err := parseAlliumBalances(body)
	if err != nil {
		return nil, c.provider.malformed(err)
	}

	c.provider.logger.WithFields(map[string]interface{}{
		"address": address,
		"events":  len(events),
	}).Debug("Fetched wallet balances")

	return events, nil
}

func parseAlliumBalances(body []byte) ([]types.BalanceEvent, error) {
	var resp alliumQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse Allium response: %w", err)
	}

	events := make([]types.BalanceEvent, 0, len(resp.Data))
	for i, row := range resp.Data {
		if row.TokenID == "" {
			return nil, fmt.Errorf("row %d has no token_id", i)
		}
		ts, err := parseBlockTimestamp(row.BlockTimestamp)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		events = append(events, types.BalanceEvent{
			TokenID:        row.TokenID,
			Balance:        row.Balance,
			BlockTimestamp: ts,
		})
	}
	return events, nil
}

func parseBlockTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range blockTimestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized block_timestamp %q", s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
