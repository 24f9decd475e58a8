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

// CoinMarketCapClient implements a client for the CoinMarketCap API
type CoinMarketCapClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
}

// NewCoinMarketCapClient creates a new CoinMarketCap API client
func NewCoinMarketCapClient(baseURL, apiKey string) *CoinMarketCapClient {
	if baseURL == "" {
		baseURL = "https://pro-api.coinmarketcap.com"
	}
	return &CoinMarketCapClient{
		baseURL:    baseURL,
		httpClient: StandardClient(newRetryClient()),
		apiKey:     apiKey,
	}
}

// Name identifies the provider.
func (c *CoinMarketCapClient) Name() string { return "coinmarketcap" }

// Prices retrieves USD quotes for the given ticker symbols.
func (c *CoinMarketCapClient) Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	upper := make([]string, len(symbols))
	for i, s := range symbols {
		upper[i] = strings.ToUpper(s)
	}

	endpoint := fmt.Sprintf("%s/v2/cryptocurrency/quotes/latest?symbol=%s",
		c.baseURL, url.QueryEscape(strings.Join(upper, ",")))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	logrus.Debugf("Fetching %d prices from CoinMarketCap", len(upper))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.API("error fetching prices from CoinMarketCap", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperrors.RateLimit("CoinMarketCap rate limit exceeded")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperrors.API(fmt.Sprintf("CoinMarketCap API error: status %d, body: %s", resp.StatusCode, string(body)), nil)
	}

	var response struct {
		Data map[string][]struct {
			Quote map[string]struct {
				Price decimal.Decimal `json:"price"`
			} `json:"quote"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, apperrors.API("error decoding CoinMarketCap response", err)
	}

	prices := make(map[string]decimal.Decimal)
	for symbol, listings := range response.Data {
		if len(listings) == 0 {
			continue
		}
		if quote, ok := listings[0].Quote["USD"]; ok && quote.Price.IsPositive() {
			prices[strings.ToUpper(symbol)] = quote.Price
		}
	}
	return prices, nil
}
