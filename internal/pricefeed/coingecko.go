package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/apperrors"
)

// CoinGecko's simple-price endpoint keys on coin ids, not ticker symbols.
var coingeckoIDs = map[string]string{
	"ETH":   "ethereum",
	"WETH":  "weth",
	"WBTC":  "wrapped-bitcoin",
	"USDC":  "usd-coin",
	"USDT":  "tether",
	"DAI":   "dai",
	"STETH": "staked-ether",
	"RETH":  "rocket-pool-eth",
}

// CoinGeckoClient implements a client for the CoinGecko API
type CoinGeckoClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
}

// NewCoinGeckoClient creates a new CoinGecko API client
func NewCoinGeckoClient(baseURL, apiKey string) *CoinGeckoClient {
	if baseURL == "" {
		baseURL = "https://api.coingecko.com"
	}
	return &CoinGeckoClient{
		baseURL:    baseURL,
		httpClient: StandardClient(newRetryClient()),
		apiKey:     apiKey,
	}
}

// Name identifies the provider.
func (c *CoinGeckoClient) Name() string { return "coingecko" }

// Prices retrieves USD prices from the simple/price endpoint.
func (c *CoinGeckoClient) Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	idToSymbol := make(map[string]string, len(symbols))
	var ids []string
	for _, symbol := range symbols {
		upper := strings.ToUpper(symbol)
		id, ok := coingeckoIDs[upper]
		if !ok {
			continue
		}
		idToSymbol[id] = upper
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	endpoint := fmt.Sprintf("%s/api/v3/simple/price?ids=%s&vs_currencies=usd",
		c.baseURL, url.QueryEscape(strings.Join(ids, ",")))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	logrus.Debugf("Fetching %d prices from CoinGecko", len(ids))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.API("error fetching prices from CoinGecko", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperrors.RateLimit("CoinGecko rate limit exceeded")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperrors.API(fmt.Sprintf("CoinGecko API error: status %d, body: %s", resp.StatusCode, string(body)), nil)
	}

	var response map[string]struct {
		USD decimal.Decimal `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, apperrors.API("error decoding CoinGecko response", err)
	}

	prices := make(map[string]decimal.Decimal, len(response))
	for id, quote := range response {
		if symbol, ok := idToSymbol[id]; ok && quote.USD.IsPositive() {
			prices[symbol] = quote.USD
		}
	}
	return prices, nil
}
