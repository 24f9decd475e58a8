package adapters

import (
	"context"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/types"
)

var (
	erc20BalanceOf    = selector("balanceOf(address)")
	aggregatorAnswer  = selector("latestAnswer()")
	curvePoolBalances = selector("balances(uint256)")
)

// LidoAdapter reads stETH balances and the stETH/ETH peg state. The peg
// comes from the Chainlink stETH/ETH aggregator; pool liquidity from the
// primary Curve stETH pool.
type LidoAdapter struct {
	caller     ContractCaller
	prices     PriceSource
	chain      types.SupportedChain
	steth      common.Address
	aggregator common.Address
	curvePool  common.Address
}

// NewLidoAdapter creates an adapter for the given contract deployments.
func NewLidoAdapter(caller ContractCaller, prices PriceSource, chain types.SupportedChain, steth, aggregator, curvePool common.Address) *LidoAdapter {
	return &LidoAdapter{caller: caller, prices: prices, chain: chain, steth: steth, aggregator: aggregator, curvePool: curvePool}
}

// Protocol returns the protocol identifier.
func (a *LidoAdapter) Protocol() string { return "lido" }

// Chain returns the chain this adapter reads from.
func (a *LidoAdapter) Chain() types.SupportedChain { return a.chain }

// FetchSummary reads the stETH balance plus the metadata fields the risk
// calculator consumes: the stETH/ETH ratio and Curve pool depth.
func (a *LidoAdapter) FetchSummary(ctx context.Context, address common.Address) (model.AccountSummary, error) {
	out, err := call(ctx, a.caller, a.steth, callData(erc20BalanceOf, address.Bytes()))
	if err != nil {
		return model.AccountSummary{}, err
	}
	rawBalance, err := word(out, 0)
	if err != nil {
		return model.AccountSummary{}, err
	}

	summary := model.AccountSummary{
		Protocol:     a.Protocol(),
		Address:      address.Hex(),
		HealthFactor: math.Inf(1),
	}
	if rawBalance.Sign() == 0 {
		return summary, nil
	}

	ratio, err := a.pegRatio(ctx)
	if err != nil {
		return model.AccountSummary{}, err
	}
	poolLiquidityUSD, err := a.poolLiquidity(ctx)
	if err != nil {
		return model.AccountSummary{}, err
	}

	ethPrice, err := a.prices.USDPrice(ctx, "ETH")
	if err != nil {
		return model.AccountSummary{}, err
	}

	balance := toDecimal(rawBalance, 18)
	valueUSD := usdValue(balance, ethPrice) * ratio

	p := model.NewPosition(a.Protocol(), model.PositionStaking, "stETH", valueUSD)
	p.Metadata["steth_eth_ratio"] = ratio
	p.Metadata["pool_liquidity_usd"] = poolLiquidityUSD
	summary.Positions = append(summary.Positions, p)
	summary.TotalSupplyUSD = valueUSD
	summary.NetWorthUSD = valueUSD

	logrus.Debugf("Lido summary for %s: %.2f USD at ratio %.4f", address.Hex(), valueUSD, ratio)
	return summary, nil
}

// pegRatio reads the stETH/ETH exchange rate from the Chainlink
// aggregator, an 18-decimal answer.
func (a *LidoAdapter) pegRatio(ctx context.Context) (float64, error) {
	out, err := call(ctx, a.caller, a.aggregator, callData(aggregatorAnswer))
	if err != nil {
		return 0, err
	}
	raw, err := word(out, 0)
	if err != nil {
		return 0, err
	}
	return ratioFloat(raw), nil
}

// poolLiquidity sums both sides of the Curve stETH pool in USD.
func (a *LidoAdapter) poolLiquidity(ctx context.Context) (float64, error) {
	ethPrice, err := a.prices.USDPrice(ctx, "ETH")
	if err != nil {
		return 0, err
	}

	var total float64
	for i := int64(0); i < 2; i++ {
		out, err := call(ctx, a.caller, a.curvePool, callData(curvePoolBalances, big.NewInt(i).Bytes()))
		if err != nil {
			return 0, err
		}
		raw, err := word(out, 0)
		if err != nil {
			return 0, err
		}
		total += usdValue(toDecimal(raw, 18), ethPrice)
	}
	return total, nil
}
