package adapters

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/apperrors"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/circuitbreaker"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
)

const (
	defaultCacheTTL   = 5 * time.Minute
	perAdapterTimeout = 10 * time.Second
)

type cacheKey struct {
	protocol string
	address  common.Address
}

type cacheEntry struct {
	summary model.AccountSummary
	fetched time.Time
	ttl     time.Duration
}

// Registry holds the registered protocol adapters and fans position
// fetches out across them. Results are cached per protocol and address,
// and each adapter sits behind its own circuit breaker so one failing
// protocol cannot drag the rest down.
type Registry struct {
	mutex    sync.RWMutex
	adapters map[string]Adapter
	breakers map[string]*circuitbreaker.CircuitBreaker
	ttls     map[string]time.Duration
	cache    map[cacheKey]cacheEntry
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		breakers: make(map[string]*circuitbreaker.CircuitBreaker),
		ttls:     make(map[string]time.Duration),
		cache:    make(map[cacheKey]cacheEntry),
	}
}

// Register adds an adapter with the given cache TTL. A zero TTL uses the
// default. Registering the same protocol twice replaces the previous
// adapter and resets its breaker.
func (r *Registry) Register(adapter Adapter, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	name := adapter.Protocol()
	r.adapters[name] = adapter
	r.ttls[name] = ttl
	r.breakers[name] = circuitbreaker.New(name, 5, 60*time.Second)
	logrus.Infof("Registered adapter for protocol %s (chain %s, cache TTL %s)", name, adapter.Chain(), ttl)
}

// Protocols returns the registered protocol names.
func (r *Registry) Protocols() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// BreakerState reports the circuit breaker state for one protocol.
func (r *Registry) BreakerState(protocol string) (circuitbreaker.State, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	cb, ok := r.breakers[protocol]
	if !ok {
		return circuitbreaker.StateClosed, false
	}
	return cb.GetState(), true
}

// Fetch reads one protocol's summary for an address, honoring the cache
// and the protocol's circuit breaker.
func (r *Registry) Fetch(ctx context.Context, protocol string, address common.Address) (model.AccountSummary, error) {
	r.mutex.RLock()
	adapter, ok := r.adapters[protocol]
	cb := r.breakers[protocol]
	r.mutex.RUnlock()

	if !ok {
		return model.AccountSummary{}, apperrors.NotFound(fmt.Sprintf("no adapter registered for protocol %q", protocol))
	}

	if summary, ok := r.cached(protocol, address); ok {
		return summary, nil
	}

	if !cb.CanExecute() {
		return model.AccountSummary{}, apperrors.API(fmt.Sprintf("adapter %s unavailable", protocol), circuitbreaker.ErrOpen)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, perAdapterTimeout)
	defer cancel()

	summary, err := adapter.FetchSummary(fetchCtx, address)
	if err != nil {
		cb.RecordFailure()
		return model.AccountSummary{}, err
	}
	cb.RecordSuccess()

	r.store(protocol, address, summary)
	return summary, nil
}

// FetchAll fans out across every registered adapter concurrently and
// collects the summaries that succeeded. Per-protocol errors come back
// separately so one broken protocol does not fail the whole portfolio.
func (r *Registry) FetchAll(ctx context.Context, address common.Address) ([]model.AccountSummary, map[string]error) {
	protocols := r.Protocols()

	type result struct {
		protocol string
		summary  model.AccountSummary
		err      error
	}

	resultCh := make(chan result, len(protocols))
	var wg sync.WaitGroup

	for _, protocol := range protocols {
		wg.Add(1)
		go func(protocol string) {
			defer wg.Done()
			summary, err := r.Fetch(ctx, protocol, address)
			resultCh <- result{protocol, summary, err}
		}(protocol)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	summaries := make([]model.AccountSummary, 0, len(protocols))
	errs := make(map[string]error)
	for res := range resultCh {
		if res.err != nil {
			errs[res.protocol] = res.err
			logrus.Warnf("Error fetching positions from %s for %s: %v", res.protocol, address.Hex(), res.err)
			continue
		}
		summaries = append(summaries, res.summary)
	}

	logrus.Infof("Fetched positions from %d/%d protocols for %s", len(summaries), len(protocols), address.Hex())
	return summaries, errs
}

// InvalidateAddress drops every cached summary for an address, used after
// a known state change (e.g. a monitored transaction).
func (r *Registry) InvalidateAddress(address common.Address) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for key := range r.cache {
		if key.address == address {
			delete(r.cache, key)
		}
	}
}

func (r *Registry) cached(protocol string, address common.Address) (model.AccountSummary, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entry, ok := r.cache[cacheKey{protocol, address}]
	if !ok || time.Since(entry.fetched) >= entry.ttl {
		return model.AccountSummary{}, false
	}
	return entry.summary, true
}

func (r *Registry) store(protocol string, address common.Address, summary model.AccountSummary) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.cache[cacheKey{protocol, address}] = cacheEntry{
		summary: summary,
		fetched: time.Now(),
		ttl:     r.ttls[protocol],
	}
}
