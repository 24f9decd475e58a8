package adapters

import (
	"context"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/types"
)

// Aave v3's base currency oracle reports in 8 decimals.
const aaveBaseDecimals = 8

var aaveGetUserAccountData = selector("getUserAccountData(address)")

// AaveAdapter reads account state from an Aave v3 Pool contract.
type AaveAdapter struct {
	caller ContractCaller
	chain  types.SupportedChain
	pool   common.Address
}

// NewAaveAdapter creates an adapter for the given Pool deployment.
func NewAaveAdapter(caller ContractCaller, chain types.SupportedChain, pool common.Address) *AaveAdapter {
	return &AaveAdapter{caller: caller, chain: chain, pool: pool}
}

// Protocol returns the protocol identifier.
func (a *AaveAdapter) Protocol() string { return "aave_v3" }

// Chain returns the chain this adapter reads from.
func (a *AaveAdapter) Chain() types.SupportedChain { return a.chain }

// FetchSummary reads getUserAccountData and maps the six return words
// into an account summary. The pool reports collateral and debt in the
// base currency and the health factor as an 18-decimal fixed point.
func (a *AaveAdapter) FetchSummary(ctx context.Context, address common.Address) (model.AccountSummary, error) {
	out, err := call(ctx, a.caller, a.pool, callData(aaveGetUserAccountData, address.Bytes()))
	if err != nil {
		return model.AccountSummary{}, err
	}

	rawCollateral, err := word(out, 0)
	if err != nil {
		return model.AccountSummary{}, err
	}
	rawDebt, err := word(out, 1)
	if err != nil {
		return model.AccountSummary{}, err
	}
	rawLiqThreshold, err := word(out, 3)
	if err != nil {
		return model.AccountSummary{}, err
	}
	rawLTV, err := word(out, 4)
	if err != nil {
		return model.AccountSummary{}, err
	}
	rawHealthFactor, err := word(out, 5)
	if err != nil {
		return model.AccountSummary{}, err
	}

	collateral, _ := toDecimal(rawCollateral, aaveBaseDecimals).Float64()
	debt, _ := toDecimal(rawDebt, aaveBaseDecimals).Float64()

	healthFactor := math.Inf(1)
	if debt > 0 {
		healthFactor = ratioFloat(rawHealthFactor)
	}

	summary := model.AccountSummary{
		Protocol:           a.Protocol(),
		Address:            address.Hex(),
		TotalCollateralUSD: collateral,
		TotalDebtUSD:       debt,
		NetWorthUSD:        collateral - debt,
		HealthFactor:       healthFactor,
	}

	// Liquidation threshold and LTV arrive in basis points.
	if collateral > 0 {
		p := model.NewPosition(a.Protocol(), model.PositionCollateral, "aave-collateral", collateral)
		p.Metadata["liquidation_threshold"] = float64(rawLiqThreshold.Int64()) / 10000
		p.Metadata["ltv"] = float64(rawLTV.Int64()) / 10000
		summary.Positions = append(summary.Positions, p)
	}
	if debt > 0 {
		summary.Positions = append(summary.Positions, model.NewPosition(a.Protocol(), model.PositionBorrow, "aave-debt", -debt))
	}

	logrus.Debugf("Aave summary for %s: collateral=%.2f debt=%.2f hf=%.4f", address.Hex(), collateral, debt, healthFactor)
	return summary, nil
}
