package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/wallet-pnl/internal/config"
	"github.com/wallet-pnl/internal/retry"
	"github.com/wallet-pnl/internal/types"
)

// CoinGeckoClient reads market rankings and price history from CoinGecko
type CoinGeckoClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	provider   *Provider
}

// MarketCoin is one entry of the market-cap ranking
type MarketCoin struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	MarketCap decimal.Decimal `json:"market_cap"`
}

type marketChartResponse struct {
	Prices [][]json.Number `json:"prices"`
}

// NewCoinGeckoClient creates a new CoinGecko client limited to cfg.RPS requests per second
func NewCoinGeckoClient(cfg *config.CoinGeckoConfig, retryConfig *retry.RetryConfig) *CoinGeckoClient {
	return &CoinGeckoClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RPS), 1),
		provider:   NewProvider("coingecko", retryConfig, nil),
	}
}

// Provider exposes the guarded upstream for health reporting
func (c *CoinGeckoClient) Provider() *Provider {
	return c.provider
}

// TopTokens returns the n largest coins by market cap, largest first
func (c *CoinGeckoClient) TopTokens(ctx context.Context, vsCurrency string, n int) ([]MarketCoin, error) {
	params := url.Values{}
	params.Set("vs_currency", vsCurrency)
	params.Set("order", "market_cap_desc")
	params.Set("per_page", strconv.Itoa(n))
	params.Set("page", "1")
	params.Set("sparkline", "false")

	body, err := c.get(ctx, "TopTokens", "/coins/markets", params)
	if err != nil {
		return nil, err
	}

	var coins []MarketCoin
	if err := json.Unmarshal(body, &coins); err != nil {
		return nil, c.provider.malformed(fmt.Errorf("failed to parse markets response: %w", err))
	}
	return coins, nil
}

// MarketChart returns the price history of coinID over the last days days.
// CoinGecko serves hourly granularity for ranges between 2 and 90 days.
func (c *CoinGeckoClient) MarketChart(ctx context.Context, coinID, vsCurrency string, days int) ([]types.PricePoint, error) {
	params := url.Values{}
	params.Set("vs_currency", vsCurrency)
	params.Set("days", strconv.Itoa(days))

	body, err := c.get(ctx, "MarketChart", "/coins/"+url.PathEscape(coinID)+"/market_chart", params)
	if err != nil {
		return nil, err
	}

	points, err := parseMarketChart(coinID, body)
	if err != nil {
		return nil, c.provider.malformed(err)
	}
	return points, nil
}

func (c *CoinGeckoClient) get(ctx context.Context, operation, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path + "?" + params.Encode()

	var body []byte
	err := c.provider.Call(ctx, operation, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("x-cg-demo-api-key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to fetch from CoinGecko: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read CoinGecko response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return &StatusError{Source: "CoinGecko", StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
		}

		body = data
		return nil
	})
	return body, err
}

func parseMarketChart(coinID string, body []byte) ([]types.PricePoint, error) {
	var chart marketChartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("failed to parse market_chart response: %w", err)
	}

	points := make([]types.PricePoint, 0, len(chart.Prices))
	for i, pair := range chart.Prices {
		if len(pair) != 2 {
			return nil, fmt.Errorf("price entry %d has %d fields", i, len(pair))
		}
		ms, err := pair[0].Int64()
		if err != nil {
			f, ferr := pair[0].Float64()
			if ferr != nil {
				return nil, fmt.Errorf("price entry %d: bad timestamp %q", i, pair[0])
			}
			ms = int64(f)
		}
		price, err := decimal.NewFromString(pair[1].String())
		if err != nil {
			return nil, fmt.Errorf("price entry %d: bad price %q", i, pair[1])
		}
		points = append(points, types.PricePoint{
			TokenID:   coinID,
			Timestamp: time.UnixMilli(ms).UTC(),
			Price:     price,
		})
	}
	return points, nil
}
