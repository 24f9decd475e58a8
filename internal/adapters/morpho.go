package adapters

import (
	"context"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/types"
)

var (
	morphoPosition = selector("position(bytes32,address)")
	morphoMarket   = selector("market(bytes32)")
)

// MorphoMarket describes one isolated Morpho Blue market the adapter
// watches. Markets are isolated by construction, so the watch list is
// static configuration rather than on-chain discovery.
type MorphoMarket struct {
	ID                 common.Hash
	Label              string
	LoanSymbol         string
	LoanDecimals       int32
	CollateralSymbol   string
	CollateralDecimals int32
	LLTV               float64
	OracleType         string
}

// MorphoAdapter reads positions from the Morpho Blue singleton across a
// configured set of isolated markets.
type MorphoAdapter struct {
	caller   ContractCaller
	prices   PriceSource
	chain    types.SupportedChain
	contract common.Address
	markets  []MorphoMarket
}

// NewMorphoAdapter creates an adapter for the given singleton deployment
// and market watch list.
func NewMorphoAdapter(caller ContractCaller, prices PriceSource, chain types.SupportedChain, contract common.Address, markets []MorphoMarket) *MorphoAdapter {
	return &MorphoAdapter{caller: caller, prices: prices, chain: chain, contract: contract, markets: markets}
}

// Protocol returns the protocol identifier.
func (a *MorphoAdapter) Protocol() string { return "morpho_blue" }

// Chain returns the chain this adapter reads from.
func (a *MorphoAdapter) Chain() types.SupportedChain { return a.chain }

// FetchSummary reads the account's position in every watched market and
// aggregates them. The worst per-market health factor becomes the account
// health factor since markets are isolated and do not cross-collateralize.
func (a *MorphoAdapter) FetchSummary(ctx context.Context, address common.Address) (model.AccountSummary, error) {
	summary := model.AccountSummary{
		Protocol:     a.Protocol(),
		Address:      address.Hex(),
		HealthFactor: math.Inf(1),
	}

	for _, market := range a.markets {
		collateralUSD, debtUSD, err := a.marketPosition(ctx, market, address)
		if err != nil {
			return model.AccountSummary{}, err
		}
		if collateralUSD == 0 && debtUSD == 0 {
			continue
		}

		marketHF := math.Inf(1)
		if debtUSD > 0 {
			marketHF = collateralUSD * market.LLTV / debtUSD
		}
		if marketHF < summary.HealthFactor {
			summary.HealthFactor = marketHF
		}

		summary.TotalCollateralUSD += collateralUSD
		summary.TotalDebtUSD += debtUSD

		if collateralUSD > 0 {
			p := model.NewPosition(a.Protocol(), model.PositionCollateral, market.Label, collateralUSD)
			p.Metadata["market_id"] = market.ID.Hex()
			p.Metadata["oracle_type"] = market.OracleType
			p.Metadata["lltv"] = market.LLTV
			summary.Positions = append(summary.Positions, p)
		}
		if debtUSD > 0 {
			p := model.NewPosition(a.Protocol(), model.PositionBorrow, market.Label, -debtUSD)
			p.Metadata["market_id"] = market.ID.Hex()
			p.Metadata["oracle_type"] = market.OracleType
			summary.Positions = append(summary.Positions, p)
		}
	}

	summary.NetWorthUSD = summary.TotalCollateralUSD - summary.TotalDebtUSD

	logrus.Debugf("Morpho summary for %s: %d positions across %d watched markets",
		address.Hex(), len(summary.Positions), len(a.markets))
	return summary, nil
}

// marketPosition resolves one market's collateral and debt in USD. Borrow
// shares convert to assets through the market's running totals.
func (a *MorphoAdapter) marketPosition(ctx context.Context, market MorphoMarket, address common.Address) (float64, float64, error) {
	out, err := call(ctx, a.caller, a.contract, callData(morphoPosition, market.ID.Bytes(), address.Bytes()))
	if err != nil {
		return 0, 0, err
	}
	borrowShares, err := word(out, 1)
	if err != nil {
		return 0, 0, err
	}
	rawCollateral, err := word(out, 2)
	if err != nil {
		return 0, 0, err
	}

	var collateralUSD float64
	if rawCollateral.Sign() > 0 {
		price, err := a.prices.USDPrice(ctx, market.CollateralSymbol)
		if err != nil {
			return 0, 0, err
		}
		collateralUSD = usdValue(toDecimal(rawCollateral, market.CollateralDecimals), price)
	}

	var debtUSD float64
	if borrowShares.Sign() > 0 {
		mkt, err := call(ctx, a.caller, a.contract, callData(morphoMarket, market.ID.Bytes()))
		if err != nil {
			return 0, 0, err
		}
		totalBorrowAssets, err := word(mkt, 2)
		if err != nil {
			return 0, 0, err
		}
		totalBorrowShares, err := word(mkt, 3)
		if err != nil {
			return 0, 0, err
		}
		if totalBorrowShares.Sign() == 0 {
			return 0, 0, fmt.Errorf("market %s reports borrow shares with zero total shares", market.Label)
		}

		assets := decimal.NewFromBigInt(borrowShares, 0).
			Mul(decimal.NewFromBigInt(totalBorrowAssets, 0)).
			Div(decimal.NewFromBigInt(totalBorrowShares, 0)).
			Shift(-market.LoanDecimals)

		price, err := a.prices.USDPrice(ctx, market.LoanSymbol)
		if err != nil {
			return 0, 0, err
		}
		debtUSD = usdValue(assets, price)
	}

	return collateralUSD, debtUSD, nil
}
