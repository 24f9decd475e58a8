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

// CryptoCompareClient implements a client for the CryptoCompare API
type CryptoCompareClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
}

// NewCryptoCompareClient creates a new CryptoCompare API client
func NewCryptoCompareClient(baseURL, apiKey string) *CryptoCompareClient {
	if baseURL == "" {
		baseURL = "https://min-api.cryptocompare.com"
	}
	return &CryptoCompareClient{
		baseURL:    baseURL,
		httpClient: StandardClient(newRetryClient()),
		apiKey:     apiKey,
	}
}

// Name identifies the provider.
func (c *CryptoCompareClient) Name() string { return "cryptocompare" }

// Prices retrieves USD prices from the pricemulti endpoint.
func (c *CryptoCompareClient) Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	upper := make([]string, len(symbols))
	for i, s := range symbols {
		upper[i] = strings.ToUpper(s)
	}

	endpoint := fmt.Sprintf("%s/data/pricemulti?fsyms=%s&tsyms=USD",
		c.baseURL, url.QueryEscape(strings.Join(upper, ",")))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Apikey "+c.apiKey)
	}

	logrus.Debugf("Fetching %d prices from CryptoCompare", len(upper))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.API("error fetching prices from CryptoCompare", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperrors.RateLimit("CryptoCompare rate limit exceeded")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperrors.API(fmt.Sprintf("CryptoCompare API error: status %d, body: %s", resp.StatusCode, string(body)), nil)
	}

	var response map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, apperrors.API("error decoding CryptoCompare response", err)
	}

	prices := make(map[string]decimal.Decimal, len(response))
	for symbol, quotes := range response {
		if usd, ok := quotes["USD"]; ok && usd.IsPositive() {
			prices[strings.ToUpper(symbol)] = usd
		}
	}
	return prices, nil
}
