package adapters

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/apperrors"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/circuitbreaker"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/types"
)

type stubAdapter struct {
	protocol string
	calls    atomic.Int64
	err      error
	value    float64
}

func (s *stubAdapter) Protocol() string            { return s.protocol }
func (s *stubAdapter) Chain() types.SupportedChain { return types.ChainEthereum }

func (s *stubAdapter) FetchSummary(_ context.Context, address common.Address) (model.AccountSummary, error) {
	s.calls.Add(1)
	if s.err != nil {
		return model.AccountSummary{}, s.err
	}
	return model.AccountSummary{
		Protocol:       s.protocol,
		Address:        address.Hex(),
		TotalSupplyUSD: s.value,
	}, nil
}

var testAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")

func TestRegistry_FetchCachesWithinTTL(t *testing.T) {
	r := NewRegistry()
	stub := &stubAdapter{protocol: "lido", value: 100}
	r.Register(stub, time.Minute)

	for i := 0; i < 3; i++ {
		summary, err := r.Fetch(context.Background(), "lido", testAddr)
		require.NoError(t, err)
		assert.Equal(t, 100.0, summary.TotalSupplyUSD)
	}

	assert.Equal(t, int64(1), stub.calls.Load(), "repeated fetches inside the TTL must hit the cache")
}

func TestRegistry_CacheExpires(t *testing.T) {
	r := NewRegistry()
	stub := &stubAdapter{protocol: "lido", value: 100}
	r.Register(stub, 10*time.Millisecond)

	_, err := r.Fetch(context.Background(), "lido", testAddr)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = r.Fetch(context.Background(), "lido", testAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stub.calls.Load())
}

func TestRegistry_UnknownProtocol(t *testing.T) {
	r := NewRegistry()

	_, err := r.Fetch(context.Background(), "ghost", testAddr)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestRegistry_FetchAllIsolatesFailures(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAdapter{protocol: "lido", value: 100}, time.Minute)
	r.Register(&stubAdapter{protocol: "aave_v3", err: errors.New("rpc timeout")}, time.Minute)

	summaries, errs := r.FetchAll(context.Background(), testAddr)

	require.Len(t, summaries, 1)
	assert.Equal(t, "lido", summaries[0].Protocol)
	require.Len(t, errs, 1)
	assert.Error(t, errs["aave_v3"])
}

func TestRegistry_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	r := NewRegistry()
	stub := &stubAdapter{protocol: "aave_v3", err: errors.New("rpc down")}
	r.Register(stub, time.Minute)

	for i := 0; i < 5; i++ {
		_, err := r.Fetch(context.Background(), "aave_v3", testAddr)
		require.Error(t, err)
	}

	state, ok := r.BreakerState("aave_v3")
	require.True(t, ok)
	assert.Equal(t, circuitbreaker.StateOpen, state)

	// Further fetches short-circuit without touching the adapter.
	calls := stub.calls.Load()
	_, err := r.Fetch(context.Background(), "aave_v3", testAddr)
	require.Error(t, err)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, calls, stub.calls.Load())
}

func TestRegistry_InvalidateAddress(t *testing.T) {
	r := NewRegistry()
	stub := &stubAdapter{protocol: "lido", value: 100}
	r.Register(stub, time.Minute)

	_, err := r.Fetch(context.Background(), "lido", testAddr)
	require.NoError(t, err)

	r.InvalidateAddress(testAddr)

	_, err = r.Fetch(context.Background(), "lido", testAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stub.calls.Load())
}
