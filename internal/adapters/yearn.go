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
	vaultBalanceOf     = selector("balanceOf(address)")
	vaultPricePerShare = selector("pricePerShare()")
	vaultTotalAssets   = selector("totalAssets()")
)

// YearnVault describes one watched vault deployment.
type YearnVault struct {
	Address             common.Address
	Symbol              string
	UnderlyingSymbol    string
	Decimals            int32
	Version             string
	StrategyCount       int
	UnderlyingProtocols []string
}

// YearnAdapter reads share balances from a configured set of Yearn V2 and
// V3 vaults and values them through pricePerShare.
type YearnAdapter struct {
	caller ContractCaller
	prices PriceSource
	chain  types.SupportedChain
	vaults []YearnVault
}

// NewYearnAdapter creates an adapter for the given vault watch list.
func NewYearnAdapter(caller ContractCaller, prices PriceSource, chain types.SupportedChain, vaults []YearnVault) *YearnAdapter {
	return &YearnAdapter{caller: caller, prices: prices, chain: chain, vaults: vaults}
}

// Protocol returns the protocol identifier.
func (a *YearnAdapter) Protocol() string { return "yearn" }

// Chain returns the chain this adapter reads from.
func (a *YearnAdapter) Chain() types.SupportedChain { return a.chain }

// FetchSummary reads the share balance of every watched vault. Vault
// deposits carry no debt, so the health factor is always infinite.
func (a *YearnAdapter) FetchSummary(ctx context.Context, address common.Address) (model.AccountSummary, error) {
	summary := model.AccountSummary{
		Protocol:     a.Protocol(),
		Address:      address.Hex(),
		HealthFactor: math.Inf(1),
	}

	for _, vault := range a.vaults {
		out, err := call(ctx, a.caller, vault.Address, callData(vaultBalanceOf, address.Bytes()))
		if err != nil {
			return model.AccountSummary{}, err
		}
		rawShares, err := word(out, 0)
		if err != nil {
			return model.AccountSummary{}, err
		}
		if rawShares.Sign() == 0 {
			continue
		}

		out, err = call(ctx, a.caller, vault.Address, callData(vaultPricePerShare))
		if err != nil {
			return model.AccountSummary{}, err
		}
		rawPPS, err := word(out, 0)
		if err != nil {
			return model.AccountSummary{}, err
		}

		out, err = call(ctx, a.caller, vault.Address, callData(vaultTotalAssets))
		if err != nil {
			return model.AccountSummary{}, err
		}
		rawTVL, err := word(out, 0)
		if err != nil {
			return model.AccountSummary{}, err
		}

		price, err := a.prices.USDPrice(ctx, vault.UnderlyingSymbol)
		if err != nil {
			return model.AccountSummary{}, err
		}

		// pricePerShare uses the vault's own decimal count.
		underlying := toDecimal(rawShares, vault.Decimals).Mul(toDecimal(rawPPS, vault.Decimals))
		valueUSD := usdValue(underlying, price)
		tvlUSD := usdValue(toDecimal(rawTVL, vault.Decimals), price)

		p := model.NewPosition(a.Protocol(), model.PositionSupply, vault.Symbol, valueUSD)
		p.Metadata["vault_version"] = vault.Version
		p.Metadata["strategy_count"] = float64(vault.StrategyCount)
		p.Metadata["underlying_protocols"] = vault.UnderlyingProtocols
		p.Metadata["vault_tvl_usd"] = tvlUSD
		summary.Positions = append(summary.Positions, p)
		summary.TotalSupplyUSD += valueUSD
	}

	summary.NetWorthUSD = summary.TotalSupplyUSD

	logrus.Debugf("Yearn summary for %s: %d vault positions worth %.2f USD",
		address.Hex(), len(summary.Positions), summary.TotalSupplyUSD)
	return summary, nil
}
