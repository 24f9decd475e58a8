package risk

import (
	"testing"

	"github.com/scr1ptjunk13/defi-risk-monitor-sub003/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAave_NearLiquidationScenario(t *testing.T) {
	summary := model.AccountSummary{
		Protocol: "aave_v3", Address: "0xabc",
		TotalCollateralUSD: 10000, TotalDebtUSD: 9000, HealthFactor: 0.95,
		Positions: []model.Position{
			{Type: model.PositionCollateral, Pair: "WETH", ValueUSD: 10000, LastUpdated: 1700000000},
			{Type: model.PositionBorrow, Pair: "USDC", ValueUSD: -9000, LastUpdated: 1700000000},
		},
	}

	a := NewAaveCalculator().Calculate(summary)

	hf := a.RiskFactors["health_factor_risk"]
	assert.Equal(t, 100.0, hf.Score, "liquidatable account gets the maximum health factor risk")
	assert.Equal(t, model.SeverityCritical, hf.Severity)

	assert.Greater(t, a.OverallRiskScore, 50.0, "weighted score must reflect the 100-scored factor")
	require.NotEmpty(t, a.Recommendations)
	assert.Contains(t, a.Recommendations[0], "IMMEDIATE ACTION", "most urgent recommendation comes first")
}

func TestAave_HealthFactorScaling(t *testing.T) {
	base := model.AccountSummary{
		TotalCollateralUSD: 10000, TotalDebtUSD: 5000,
		Positions: []model.Position{{Type: model.PositionCollateral, ValueUSD: 10000, LastUpdated: 1700000000}},
	}

	calc := NewAaveCalculator()

	base.HealthFactor = 1.1
	risky := calc.Calculate(base).RiskFactors["health_factor_risk"].Score

	base.HealthFactor = 1.8
	moderate := calc.Calculate(base).RiskFactors["health_factor_risk"].Score

	base.HealthFactor = 3.0
	safe := calc.Calculate(base).RiskFactors["health_factor_risk"].Score

	assert.Greater(t, risky, moderate)
	assert.Greater(t, moderate, safe)
	assert.Equal(t, 5.0, safe, "score floors at 5 for very safe health factors")
}

func TestAave_UtilizationRisk(t *testing.T) {
	summary := model.AccountSummary{
		TotalCollateralUSD: 10000, TotalDebtUSD: 8000, HealthFactor: 1.2,
		Positions: []model.Position{{Type: model.PositionCollateral, ValueUSD: 10000, LastUpdated: 1700000000}},
	}

	a := NewAaveCalculator().Calculate(summary)
	util := a.RiskFactors["utilization_risk"]
	assert.InDelta(t, 100.0, util.Score, 1e-9, "80%% utilization saturates the factor")

	found := false
	for _, r := range a.Recommendations {
		if r == "Reduce borrow utilization to leave a larger liquidation buffer" {
			found = true
		}
	}
	assert.True(t, found, "high utilization must produce a recommendation")
}

func TestAave_StableCollateralLowersVolatilityRisk(t *testing.T) {
	volatile := model.AccountSummary{
		TotalCollateralUSD: 10000, TotalDebtUSD: 1000, HealthFactor: 8,
		Positions: []model.Position{
			{Type: model.PositionCollateral, Pair: "WETH", ValueUSD: 10000, LastUpdated: 1700000000},
		},
	}
	stable := model.AccountSummary{
		TotalCollateralUSD: 10000, TotalDebtUSD: 1000, HealthFactor: 8,
		Positions: []model.Position{
			{Type: model.PositionCollateral, Pair: "USDC", ValueUSD: 10000, LastUpdated: 1700000000,
				Metadata: map[string]interface{}{"is_stable": true}},
		},
	}

	calc := NewAaveCalculator()
	vScore := calc.Calculate(volatile).RiskFactors["volatility_risk"].Score
	sScore := calc.Calculate(stable).RiskFactors["volatility_risk"].Score

	assert.Greater(t, vScore, sScore)
	assert.Equal(t, 0.0, sScore, "fully stable collateral carries no volatility risk")
}

func TestAave_ConfidencePenalties(t *testing.T) {
	large := model.AccountSummary{
		TotalCollateralUSD: 50000, TotalDebtUSD: 10000, HealthFactor: 3,
		Positions: []model.Position{
			{Type: model.PositionCollateral, ValueUSD: 50000, LastUpdated: 1700000000},
			{Type: model.PositionBorrow, ValueUSD: -10000, LastUpdated: 1700000000},
		},
	}
	tiny := model.AccountSummary{
		TotalCollateralUSD: 50, HealthFactor: 3,
		Positions: []model.Position{{Type: model.PositionCollateral, ValueUSD: 50, LastUpdated: 1700000000}},
	}

	calc := NewAaveCalculator()
	assert.Greater(t, calc.Calculate(large).ConfidenceScore, calc.Calculate(tiny).ConfidenceScore)
	assert.GreaterOrEqual(t, calc.Calculate(tiny).ConfidenceScore, 0.5, "confidence never drops below the floor")
}
