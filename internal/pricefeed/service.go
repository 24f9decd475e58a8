package pricefeed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/apperrors"
)

const (
	cacheTTL       = time.Minute
	staleTolerance = 10 * time.Minute
)

type cachedPrice struct {
	price   decimal.Decimal
	fetched time.Time
}

// Service resolves USD prices through an ordered provider chain with a
// short cache. A provider failure falls through to the next provider;
// when every provider fails, a recent-enough stale cache entry is better
// than no price at all.
type Service struct {
	providers []Provider
	mutex     sync.RWMutex
	cache     map[string]cachedPrice
}

// NewService creates a price service over the given providers, tried in
// order.
func NewService(providers ...Provider) *Service {
	return &Service{
		providers: providers,
		cache:     make(map[string]cachedPrice),
	}
}

// USDPrice returns the USD price for one symbol.
func (s *Service) USDPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := s.USDPrices(ctx, []string{symbol})
	if err != nil {
		return decimal.Zero, err
	}
	price, ok := prices[strings.ToUpper(symbol)]
	if !ok {
		return decimal.Zero, apperrors.NotFound(fmt.Sprintf("no price available for %q", symbol))
	}
	return price, nil
}

// USDPrices resolves a batch of symbols, serving from cache where fresh
// and querying providers for the remainder.
func (s *Service) USDPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	result := make(map[string]decimal.Decimal, len(symbols))
	var missing []string

	s.mutex.RLock()
	for _, symbol := range symbols {
		upper := strings.ToUpper(symbol)
		if entry, ok := s.cache[upper]; ok && time.Since(entry.fetched) < cacheTTL {
			result[upper] = entry.price
		} else {
			missing = append(missing, upper)
		}
	}
	s.mutex.RUnlock()

	if len(missing) == 0 {
		return result, nil
	}

	fetched, err := s.fetchWithFallback(ctx, missing)
	if err != nil {
		// All providers down; serve stale cache entries within tolerance.
		stale := s.staleFallback(missing)
		if len(stale) == 0 {
			return nil, err
		}
		logrus.Warnf("All price providers failed, serving %d stale price(s): %v", len(stale), err)
		for symbol, price := range stale {
			result[symbol] = price
		}
		return result, nil
	}

	s.mutex.Lock()
	now := time.Now()
	for symbol, price := range fetched {
		s.cache[symbol] = cachedPrice{price: price, fetched: now}
		result[symbol] = price
	}
	s.mutex.Unlock()

	return result, nil
}

// fetchWithFallback walks the provider chain until one returns prices.
func (s *Service) fetchWithFallback(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	var lastErr error
	for _, provider := range s.providers {
		prices, err := provider.Prices(ctx, symbols)
		if err != nil {
			logrus.Warnf("Price provider %s failed: %v", provider.Name(), err)
			lastErr = err
			continue
		}
		if len(prices) > 0 {
			return prices, nil
		}
		lastErr = apperrors.NotFound(fmt.Sprintf("provider %s returned no prices for %v", provider.Name(), symbols))
	}
	if lastErr == nil {
		lastErr = apperrors.Config("no price providers configured")
	}
	return nil, apperrors.API("all price providers failed", lastErr)
}

func (s *Service) staleFallback(symbols []string) map[string]decimal.Decimal {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stale := make(map[string]decimal.Decimal)
	for _, symbol := range symbols {
		if entry, ok := s.cache[symbol]; ok && time.Since(entry.fetched) < staleTolerance {
			stale[symbol] = entry.price
		}
	}
	return stale
}
