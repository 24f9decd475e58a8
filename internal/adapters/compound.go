package adapters

import (
	"context"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/types"
)

var (
	cometBalanceOf       = selector("balanceOf(address)")
	cometBorrowBalanceOf = selector("borrowBalanceOf(address)")
	cometTotalSupply     = selector("totalSupply()")
)

// CompoundAdapter reads account state from a Compound v3 Comet market.
// Comet is single-borrowable-asset: balanceOf is the supplied base asset
// and borrowBalanceOf the borrowed base asset, mutually exclusive.
type CompoundAdapter struct {
	caller ContractCaller
	prices PriceSource
	chain  types.SupportedChain
	comet  common.Address

	baseSymbol   string
	baseDecimals int32
	liqThreshold float64
}

// NewCompoundAdapter creates an adapter for one Comet market deployment.
func NewCompoundAdapter(caller ContractCaller, prices PriceSource, chain types.SupportedChain, comet common.Address, baseSymbol string, baseDecimals int32) *CompoundAdapter {
	return &CompoundAdapter{
		caller:       caller,
		prices:       prices,
		chain:        chain,
		comet:        comet,
		baseSymbol:   baseSymbol,
		baseDecimals: baseDecimals,
		liqThreshold: 0.85,
	}
}

// Protocol returns the protocol identifier.
func (a *CompoundAdapter) Protocol() string { return "compound_v3" }

// Chain returns the chain this adapter reads from.
func (a *CompoundAdapter) Chain() types.SupportedChain { return a.chain }

// FetchSummary reads the account's base-asset supply and borrow balances
// plus the market's total supply for the liquidity metadata the risk
// calculator consumes.
func (a *CompoundAdapter) FetchSummary(ctx context.Context, address common.Address) (model.AccountSummary, error) {
	price, err := a.prices.USDPrice(ctx, a.baseSymbol)
	if err != nil {
		return model.AccountSummary{}, err
	}

	supplied, err := a.balance(ctx, cometBalanceOf, address)
	if err != nil {
		return model.AccountSummary{}, err
	}
	borrowed, err := a.balance(ctx, cometBorrowBalanceOf, address)
	if err != nil {
		return model.AccountSummary{}, err
	}
	marketSupply, err := a.marketSupply(ctx)
	if err != nil {
		return model.AccountSummary{}, err
	}

	supplyUSD := usdValue(supplied, price)
	debtUSD := usdValue(borrowed, price)
	marketUSD := usdValue(marketSupply, price)

	healthFactor := math.Inf(1)
	if debtUSD > 0 {
		healthFactor = supplyUSD * a.liqThreshold / debtUSD
	}

	summary := model.AccountSummary{
		Protocol:           a.Protocol(),
		Address:            address.Hex(),
		TotalCollateralUSD: supplyUSD,
		TotalDebtUSD:       debtUSD,
		NetWorthUSD:        supplyUSD - debtUSD,
		HealthFactor:       healthFactor,
	}

	if supplyUSD > 0 {
		p := model.NewPosition(a.Protocol(), model.PositionCollateral, a.baseSymbol, supplyUSD)
		p.Metadata["market_liquidity_usd"] = marketUSD
		summary.Positions = append(summary.Positions, p)
	}
	if debtUSD > 0 {
		p := model.NewPosition(a.Protocol(), model.PositionBorrow, a.baseSymbol, -debtUSD)
		p.Metadata["market_liquidity_usd"] = marketUSD
		summary.Positions = append(summary.Positions, p)
	}

	logrus.Debugf("Compound summary for %s: supply=%.2f debt=%.2f hf=%.4f", address.Hex(), supplyUSD, debtUSD, healthFactor)
	return summary, nil
}

func (a *CompoundAdapter) balance(ctx context.Context, sel []byte, address common.Address) (decimal.Decimal, error) {
	out, err := call(ctx, a.caller, a.comet, callData(sel, address.Bytes()))
	if err != nil {
		return decimal.Zero, err
	}
	raw, err := word(out, 0)
	if err != nil {
		return decimal.Zero, err
	}
	return toDecimal(raw, a.baseDecimals), nil
}

func (a *CompoundAdapter) marketSupply(ctx context.Context) (decimal.Decimal, error) {
	out, err := call(ctx, a.caller, a.comet, callData(cometTotalSupply))
	if err != nil {
		return decimal.Zero, err
	}
	raw, err := word(out, 0)
	if err != nil {
		return decimal.Zero, err
	}
	return toDecimal(raw, a.baseDecimals), nil
}
