package risk

import (
	"math"
	"testing"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func yearnSummary(version string, strategyCount float64, protocols []interface{}) model.AccountSummary {
	return model.AccountSummary{
		Protocol: "yearn", Address: "0xvault",
		TotalSupplyUSD: 25000, HealthFactor: math.Inf(1),
		Positions: []model.Position{
			{
				Protocol: "yearn", Type: model.PositionSupply, Pair: "yvUSDC",
				ValueUSD: 25000, LastUpdated: 1700000000,
				Metadata: map[string]interface{}{
					"vault_version":        version,
					"strategy_count":       strategyCount,
					"underlying_protocols": protocols,
					"vault_tvl_usd":        5000000.0,
				},
			},
		},
	}
}

func TestYearn_V3HasMultiStrategyFactor(t *testing.T) {
	calc := NewYearnCalculator()

	v3 := calc.Calculate(yearnSummary("v3", 5, []interface{}{"curve", "aave", "balancer"}))
	v2 := calc.Calculate(yearnSummary("v2", 5, []interface{}{"curve", "aave", "balancer"}))

	msd, ok := v3.RiskFactors["multi_strategy_dependency_risk"]
	require.True(t, ok, "V3 vaults must carry the multi-strategy dependency factor")
	assert.Greater(t, msd.Score, 0.0)
	assert.Equal(t, yearnMultiStrategyWeight, msd.Weight)

	_, ok = v2.RiskFactors["multi_strategy_dependency_risk"]
	assert.False(t, ok, "V2 vaults must not carry the factor")
}

func TestYearn_WeightsSumToOneBothVersions(t *testing.T) {
	calc := NewYearnCalculator()

	for _, version := range []string{"v2", "v3"} {
		a := calc.Calculate(yearnSummary(version, 3, []interface{}{"aave"}))
		var total float64
		for _, f := range a.RiskFactors {
			total += f.Weight
		}
		assert.InDelta(t, 1.0, total, 1e-9, "weights must sum to 1.0 for %s", version)
	}
}

func TestYearn_V3RescalesSharedFactors(t *testing.T) {
	calc := NewYearnCalculator()

	v2 := calc.Calculate(yearnSummary("v2", 2, []interface{}{"aave"}))
	v3 := calc.Calculate(yearnSummary("v3", 2, []interface{}{"aave"}))

	for name, f2 := range v2.RiskFactors {
		f3, ok := v3.RiskFactors[name]
		require.True(t, ok, "shared factor %s must exist in both versions", name)
		assert.InDelta(t, f2.Weight*yearnV3Rescale, f3.Weight, 1e-9,
			"V3 must scale the %s weight by %.2f", name, yearnV3Rescale)
	}
}

func TestYearn_StrategyComplexityScaling(t *testing.T) {
	calc := NewYearnCalculator()

	single := calc.Calculate(yearnSummary("v2", 1, []interface{}{"aave"}))
	many := calc.Calculate(yearnSummary("v2", 8, []interface{}{"aave"}))

	assert.Greater(t,
		many.RiskFactors["strategy_complexity_risk"].Score,
		single.RiskFactors["strategy_complexity_risk"].Score)
}

func TestYearn_UnknownUnderlyingIsConservative(t *testing.T) {
	calc := NewYearnCalculator()

	known := calc.Calculate(yearnSummary("v2", 2, []interface{}{"aave"}))
	unknown := calc.Calculate(yearnSummary("v2", 2, []interface{}{"obscure_fork"}))

	assert.Greater(t,
		unknown.RiskFactors["underlying_protocol_risk"].Score,
		known.RiskFactors["underlying_protocol_risk"].Score)
}

func TestYearn_DefaultsToV2WithoutMetadata(t *testing.T) {
	summary := model.AccountSummary{
		TotalSupplyUSD: 1000, HealthFactor: math.Inf(1),
		Positions: []model.Position{
			{Type: model.PositionSupply, ValueUSD: 1000, LastUpdated: 1700000000},
		},
	}

	a := NewYearnCalculator().Calculate(summary)
	_, ok := a.RiskFactors["multi_strategy_dependency_risk"]
	assert.False(t, ok)
}
