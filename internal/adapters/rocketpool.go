package adapters

import (
	"context"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/types"
)

var (
	rethExchangeRate    = selector("getExchangeRate()")
	rethTotalCollateral = selector("getTotalCollateral()")
)

// RocketPoolAdapter reads rETH balances and the rETH/ETH exchange rate
// from the rETH token contract.
type RocketPoolAdapter struct {
	caller ContractCaller
	prices PriceSource
	chain  types.SupportedChain
	reth   common.Address

	// Network-average node bond ratio. Computing this on-chain needs a
	// walk of the full minipool registry, so it is operator-configured
	// and refreshed out of band.
	nodeCollateralRatio float64
}

// NewRocketPoolAdapter creates an adapter for the given rETH deployment.
func NewRocketPoolAdapter(caller ContractCaller, prices PriceSource, chain types.SupportedChain, reth common.Address, nodeCollateralRatio float64) *RocketPoolAdapter {
	return &RocketPoolAdapter{caller: caller, prices: prices, chain: chain, reth: reth, nodeCollateralRatio: nodeCollateralRatio}
}

// Protocol returns the protocol identifier.
func (a *RocketPoolAdapter) Protocol() string { return "rocket_pool" }

// Chain returns the chain this adapter reads from.
func (a *RocketPoolAdapter) Chain() types.SupportedChain { return a.chain }

// FetchSummary reads the rETH balance, the exchange rate the token
// reports, and the ETH the contract holds for instant burns.
func (a *RocketPoolAdapter) FetchSummary(ctx context.Context, address common.Address) (model.AccountSummary, error) {
	out, err := call(ctx, a.caller, a.reth, callData(erc20BalanceOf, address.Bytes()))
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

	out, err = call(ctx, a.caller, a.reth, callData(rethExchangeRate))
	if err != nil {
		return model.AccountSummary{}, err
	}
	rawRate, err := word(out, 0)
	if err != nil {
		return model.AccountSummary{}, err
	}

	out, err = call(ctx, a.caller, a.reth, callData(rethTotalCollateral))
	if err != nil {
		return model.AccountSummary{}, err
	}
	rawCollateral, err := word(out, 0)
	if err != nil {
		return model.AccountSummary{}, err
	}

	ethPrice, err := a.prices.USDPrice(ctx, "ETH")
	if err != nil {
		return model.AccountSummary{}, err
	}

	rate := ratioFloat(rawRate)
	valueUSD := usdValue(toDecimal(rawBalance, 18), ethPrice) * rate
	burnLiquidityUSD := usdValue(toDecimal(rawCollateral, 18), ethPrice)

	p := model.NewPosition(a.Protocol(), model.PositionStaking, "rETH", valueUSD)
	p.Metadata["reth_eth_ratio"] = rate
	p.Metadata["pool_liquidity_usd"] = burnLiquidityUSD
	p.Metadata["node_collateral_ratio"] = a.nodeCollateralRatio
	summary.Positions = append(summary.Positions, p)
	summary.TotalSupplyUSD = valueUSD
	summary.NetWorthUSD = valueUSD

	logrus.Debugf("Rocket Pool summary for %s: %.2f USD at rate %.4f", address.Hex(), valueUSD, rate)
	return summary, nil
}
