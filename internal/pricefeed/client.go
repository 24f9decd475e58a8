// Package pricefeed retrieves USD token prices from external market data
// APIs with provider fallback and short-lived caching.
package pricefeed

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
)

// Provider is implemented by each price API client.
type Provider interface {
	// Name identifies the provider in logs and metrics
	Name() string

	// Prices returns USD prices keyed by the requested symbols. Symbols
	// the provider does not know are absent from the map, not an error.
	Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// newRetryClient creates a new HTTP client with retry capabilities
func newRetryClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = nil
	return c
}

// StandardClient converts a retryablehttp.Client to a standard http.Client
func StandardClient(retryClient *retryablehttp.Client) *http.Client {
	return retryClient.StandardClient()
}
